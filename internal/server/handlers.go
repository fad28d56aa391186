package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/tcxstat/internal/archive"
	"github.com/meltforce/tcxstat/internal/ingest"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
	"github.com/meltforce/tcxstat/internal/storage"
)

var errBodyTooLarge = errors.New("request body too large")

func (s *Server) handleIngestTCX(w http.ResponseWriter, r *http.Request) {
	uid := userIDFromContext(r)
	start := time.Now()

	body, err := s.readBody(w, r)
	if err != nil {
		ingestFiles.WithLabelValues("rejected").Inc()
		writeJSON(w, bodyErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	ingestBytes.Observe(float64(len(body)))

	result, err := s.tcx.Ingest(r.Context(), bytes.NewReader(body), uid)
	durationMs := int(time.Since(start).Milliseconds())
	if err != nil {
		go s.logImport(uid, "tcx_upload", &ingest.Result{ActivitiesReceived: 1}, err, durationMs)
		if tcx.IsInvalidDocument(err) {
			ingestFiles.WithLabelValues("invalid").Inc()
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		ingestFiles.WithLabelValues("error").Inc()
		s.log.Error("tcx ingest error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if result.ActivitiesInserted > 0 {
		ingestFiles.WithLabelValues("inserted").Inc()
	} else {
		ingestFiles.WithLabelValues("duplicate").Inc()
	}
	ingestTrackpoints.Add(float64(result.TrackpointsInserted))
	go s.logImport(uid, "tcx_upload", result, nil, durationMs)

	writeJSON(w, http.StatusOK, result)
}

// handleDecode decodes a TCX body without storing it. only_gps and
// null_handling query parameters override the configured defaults.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	onlyGPS := s.opts.OnlyGPS
	if v := r.URL.Query().Get("only_gps"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid only_gps: " + v})
			return
		}
		onlyGPS = b
	}
	nullHandling := s.opts.NullHandling
	if v := r.URL.Query().Get("null_handling"); v != "" {
		nullHandling = v
	}
	opts, err := tcx.Options(onlyGPS, nullHandling)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		writeJSON(w, bodyErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}

	act, err := tcx.Decode(bytes.NewReader(body), append(opts, tcx.WithLogger(s.log))...)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleQueryActivities(w http.ResponseWriter, r *http.Request) {
	f := storage.ActivityFilter{Sport: r.URL.Query().Get("sport")}
	if r.URL.Query().Get("start") != "" {
		start, end, err := parseTimeRange(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		f.Start, f.End = start, end
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	acts, err := s.db.QueryActivities(r.Context(), f, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, acts)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}
	detail, err := s.db.GetActivity(r.Context(), id, userIDFromContext(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "activity not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}
	err := s.db.DeleteActivity(r.Context(), id, userIDFromContext(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "activity not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTrackpoints returns an activity's stored trackpoints, optionally
// restricted to one lap with ?lap=N.
func (s *Server) handleTrackpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := activityID(w, r)
	if !ok {
		return
	}
	lap := -1
	if v := r.URL.Query().Get("lap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid lap"})
			return
		}
		lap = n
	}

	points, err := s.db.QueryTrackpoints(r.Context(), id, lap, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func activityID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid activity ID"})
		return uuid.Nil, false
	}
	return id, true
}

// readBody returns the decompressed request body. Content-Encoding gzip and
// zstd are accepted; both the raw and the decompressed size are bounded.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.opts.MaxUploadBytes
	rc, err := archive.Decompress(http.MaxBytesReader(w, r.Body, limit), r.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	body, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, errBodyTooLarge
		}
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	return body, nil
}

func bodyErrorStatus(err error) int {
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, archive.ErrUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseTimeRange reads start and end as RFC 3339 or YYYY-MM-DD. A missing
// start means the last 7 days; a date-only end covers that whole day.
func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = parseFlexTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}

	if endStr == "" {
		return start, time.Now(), nil
	}
	end, err = time.Parse(time.RFC3339, endStr)
	if err != nil {
		end, err = time.Parse(time.DateOnly, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
