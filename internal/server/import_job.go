package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meltforce/tcxstat/internal/importer"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
	"github.com/meltforce/tcxstat/internal/storage"
)

var errImportCancelled = errors.New("import canceled by user")

// importState tracks the current directory import. The server keeps only
// the latest one so its status stays readable after it finishes.
type importState struct {
	mu        sync.Mutex
	running   bool
	done      bool
	err       error
	progress  importer.Progress
	cancel    context.CancelFunc
	doneCh    chan struct{}
	logID     int64
	dir       string
	dryRun    bool
	startedAt time.Time

	events eventHub
}

// importStatus is the JSON view of an importState.
type importStatus struct {
	Running   bool              `json:"running"`
	Done      bool              `json:"done"`
	Dir       string            `json:"dir,omitempty"`
	DryRun    bool              `json:"dry_run"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	Progress  importer.Progress `json:"progress"`
	LogID     int64             `json:"log_id,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (st *importState) snapshot() importStatus {
	st.mu.Lock()
	defer st.mu.Unlock()
	started := st.startedAt
	out := importStatus{
		Running:   st.running,
		Done:      st.done,
		Dir:       st.dir,
		DryRun:    st.dryRun,
		StartedAt: &started,
		Progress:  st.progress,
		LogID:     st.logID,
	}
	if st.err != nil {
		out.Error = st.err.Error()
	}
	return out
}

func (st *importState) isRunning() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

// importRequest is the JSON body for starting a directory import. Dir is
// relative to the configured import root.
type importRequest struct {
	Dir    string `json:"dir"`
	DryRun bool   `json:"dry_run"`
}

// resolveImportDir maps a client path onto the import root. The path is
// cleaned as if absolute so it cannot climb out of root.
func resolveImportDir(root, dir string) string {
	return filepath.Join(root, filepath.Clean("/"+dir))
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	if s.opts.ImportRoot == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "directory import is disabled (import.root not set)"})
		return
	}
	uid := userIDFromContext(r)

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	dir := resolveImportDir(s.opts.ImportRoot, req.Dir)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "not a directory: " + req.Dir})
		return
	}

	s.importMu.Lock()
	if s.activeImport != nil && s.activeImport.isRunning() {
		prev := s.activeImport
		s.importMu.Unlock()
		select {
		case <-prev.doneCh:
		case <-time.After(5 * time.Second):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "an import is already running"})
			return
		}
		s.importMu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &importState{
		running:   true,
		cancel:    cancel,
		doneCh:    make(chan struct{}),
		dir:       req.Dir,
		dryRun:    req.DryRun,
		startedAt: time.Now(),
	}

	metaJSON, _ := json.Marshal(map[string]any{"dir": req.Dir, "dry_run": req.DryRun})
	rawMeta := json.RawMessage(metaJSON)
	logID, logErr := s.db.InsertImportLog(r.Context(), storage.ImportLog{
		UserID:   uid,
		Source:   "directory",
		Status:   "running",
		Metadata: &rawMeta,
	})
	if logErr != nil {
		s.log.Error("failed to create import log", "error", logErr)
	}
	state.logID = logID

	s.activeImport = state
	s.importMu.Unlock()

	go s.runImport(ctx, state, uid, dir)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "started",
		"dir":    req.Dir,
		"log_id": logID,
	})
}

func (s *Server) runImport(ctx context.Context, state *importState, userID int, dir string) {
	importsRunning.Inc()
	defer func() {
		importsRunning.Dec()
		state.mu.Lock()
		state.running = false
		state.done = true
		state.mu.Unlock()
		close(state.doneCh)
	}()

	opts, err := tcx.Options(s.opts.OnlyGPS, s.opts.NullHandling)
	if err != nil {
		s.failImport(state, userID, err)
		return
	}

	imp := importer.New(s.tcx, s.log, state.dryRun, opts...)
	imp.UserID = userID
	imp.OnProgress = func(p importer.Progress) {
		state.mu.Lock()
		state.progress = p
		state.mu.Unlock()
		state.events.publish("progress", p)
	}

	stats, err := imp.Import(ctx, dir)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			err = errImportCancelled
		}
		s.failImport(state, userID, err)
		return
	}

	state.events.publish("complete", stats)
	s.finalizeImport(state, userID)
}

func (s *Server) failImport(state *importState, userID int, err error) {
	state.mu.Lock()
	state.err = err
	state.mu.Unlock()
	state.events.publish("error", map[string]string{"error": err.Error()})
	s.finalizeImport(state, userID)
}

// finalizeImport updates the import_logs row with final results.
func (s *Server) finalizeImport(state *importState, userID int) {
	if state.logID == 0 {
		return
	}

	state.mu.Lock()
	stats := state.progress.Stats
	importErr := state.err
	state.mu.Unlock()

	durationMs := int(time.Since(state.startedAt).Milliseconds())
	status := "success"
	var errMsg *string
	if importErr != nil {
		msg := importErr.Error()
		errMsg = &msg
		if errors.Is(importErr, errImportCancelled) {
			status = "cancelled"
		} else {
			status = "error"
		}
	}

	metaJSON, _ := json.Marshal(map[string]any{
		"dir":                   state.dir,
		"dry_run":               state.dryRun,
		"files_errored":         stats.FilesErrored,
		"activities_duplicated": stats.ActivitiesDuplicated,
	})
	rawMeta := json.RawMessage(metaJSON)

	ctx, cancel := contextWithTimeout()
	defer cancel()

	if err := s.db.UpdateImportLog(ctx, state.logID, storage.ImportLog{
		UserID:              userID,
		Status:              status,
		FilesReceived:       stats.FilesFound,
		ActivitiesInserted:  stats.ActivitiesInserted,
		LapsInserted:        stats.LapsInserted,
		TrackpointsInserted: stats.TrackpointsInserted,
		DurationMs:          &durationMs,
		ErrorMessage:        errMsg,
		Metadata:            &rawMeta,
	}); err != nil {
		s.log.Error("failed to finalize import log", "log_id", state.logID, "error", err)
	}
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	s.importMu.Lock()
	if s.activeImport == nil || !s.activeImport.isRunning() {
		s.importMu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no import running"})
		return
	}

	state := s.activeImport
	state.cancel()
	s.importMu.Unlock()

	select {
	case <-state.doneCh:
	case <-time.After(3 * time.Second):
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	s.importMu.Lock()
	state := s.activeImport
	s.importMu.Unlock()

	if state == nil {
		writeJSON(w, http.StatusOK, importStatus{})
		return
	}
	writeJSON(w, http.StatusOK, state.snapshot())
}

func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	s.importMu.Lock()
	state := s.activeImport
	s.importMu.Unlock()

	if state == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no import running"})
		return
	}
	// A run that already ended replays its terminal event.
	state.events.stream(w, r, sseEvent{Event: "status", Data: mustJSON(state.snapshot())})
}
