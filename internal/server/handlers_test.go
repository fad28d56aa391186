package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/meltforce/tcxstat/internal/ingest"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
)

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale middleware is active.
func TestHandleMeDefault(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "local", DisplayName: "Local Dev User"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "local" {
		t.Errorf("login = %q, want %q", info.Login, "local")
	}
	if info.DisplayName != "Local Dev User" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Local Dev User")
	}
}

// TestHandleMeTailscaleUser verifies the /api/v1/me endpoint returns the
// Tailscale user identity when set in context.
func TestHandleMeTailscaleUser(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	ctx := context.WithValue(req.Context(), userInfoKey, UserInfo{Login: "alice@example.com", DisplayName: "Alice"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleMe(rec, req)

	var info UserInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Login != "alice@example.com" {
		t.Errorf("login = %q, want %q", info.Login, "alice@example.com")
	}
	if info.DisplayName != "Alice" {
		t.Errorf("display_name = %q, want %q", info.DisplayName, "Alice")
	}
}

func gzipBody(t *testing.T, data string) *bytes.Buffer {
	t.Helper()
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	if _, err := zw.Write([]byte(data)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return &b
}

// waitForLogs polls until n import logs were written by logImport goroutines.
func waitForLogs(t *testing.T, db *fakeStore, n int) []storage.ImportLog {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if logs := db.importLogs(); len(logs) >= n {
			return logs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d import logs", n)
	return nil
}

// TestIngestTCX verifies an authorised upload is ingested and logged.
func TestIngestTCX(t *testing.T) {
	db := &fakeStore{}
	ing := &decodeIngester{}
	s := newTestServer(db, ing)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/tcx", strings.NewReader(minimalTCX))
	req.Header.Set("X-API-Key", "test-key")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var res ingest.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Sport != "Running" || res.TrackpointsInserted != 3 {
		t.Errorf("result = %+v", res)
	}

	logs := waitForLogs(t, db, 1)
	if logs[0].Source != "tcx_upload" || logs[0].Status != "success" || logs[0].TrackpointsInserted != 3 {
		t.Errorf("import log = %+v", logs[0])
	}
}

// TestIngestTCXGzip verifies gzip Content-Encoding is decoded before parsing.
func TestIngestTCXGzip(t *testing.T) {
	s := newTestServer(&fakeStore{}, &decodeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/tcx", gzipBody(t, minimalTCX))
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
}

// TestIngestTCXRejections verifies auth and body errors map to their status codes.
func TestIngestTCXRejections(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		encoding string
		body     string
		want     int
	}{
		{"missing key", "", "", minimalTCX, http.StatusUnauthorized},
		{"wrong key", "nope", "", minimalTCX, http.StatusForbidden},
		{"empty body", "test-key", "", "", http.StatusBadRequest},
		{"unknown encoding", "test-key", "br", minimalTCX, http.StatusUnsupportedMediaType},
		{"broken xml", "test-key", "", "<TrainingCenterDatabase>", http.StatusUnprocessableEntity},
		{"too large", "test-key", "", minimalTCX + strings.Repeat(" ", 1<<20), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeStore{}, &decodeIngester{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/tcx", strings.NewReader(tt.body))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

// TestIngestTCXBearer verifies the API key is also accepted as a Bearer token.
func TestIngestTCXBearer(t *testing.T) {
	s := newTestServer(&fakeStore{}, &decodeIngester{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/tcx", strings.NewReader(minimalTCX))
	req.Header.Set("Authorization", "Bearer test-key")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestDecode verifies the stateless decode endpoint and its query overrides.
func TestDecode(t *testing.T) {
	s := newTestServer(&fakeStore{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decode?null_handling=linear", strings.NewReader(minimalTCX))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var act models.Activity
	if err := json.NewDecoder(rec.Body).Decode(&act); err != nil {
		t.Fatal(err)
	}
	if act.Sport != "Running" || len(act.Trackpoints) != 3 {
		t.Fatalf("activity sport=%q points=%d", act.Sport, len(act.Trackpoints))
	}
	if hr := act.Trackpoints[1].HeartRate; hr == nil || *hr != 130 {
		t.Errorf("interpolated heart rate = %v, want 130", hr)
	}
	if act.Calories != 3 {
		t.Errorf("calories = %d, want 3", act.Calories)
	}
}

// TestDecodeBadOptions verifies invalid query overrides are rejected before decoding.
func TestDecodeBadOptions(t *testing.T) {
	s := newTestServer(&fakeStore{}, nil)
	for _, q := range []string{"only_gps=maybe", "null_handling=cubic"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/decode?"+q, strings.NewReader(minimalTCX))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

// TestActivityEndpoints verifies list, get, trackpoints and delete against the store.
func TestActivityEndpoints(t *testing.T) {
	id := uuid.New()
	db := &fakeStore{
		activities: []models.ActivityRow{
			{ID: id, UserID: 1, Sport: "Biking"},
			{ID: uuid.New(), UserID: 1, Sport: "Running"},
			{ID: uuid.New(), UserID: 2, Sport: "Biking"},
		},
		points: []models.TrackpointRow{
			{ActivityID: id, UserID: 1, Seq: 0, LapIndex: 0},
			{ActivityID: id, UserID: 1, Seq: 1, LapIndex: 1},
		},
	}
	s := newTestServer(db, nil)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/api/v1/activities?sport=Biking&limit=5")
	var acts []models.ActivityRow
	if err := json.NewDecoder(rec.Body).Decode(&acts); err != nil {
		t.Fatal(err)
	}
	if len(acts) != 1 || acts[0].ID != id {
		t.Errorf("activities = %+v, want only %s", acts, id)
	}
	if db.lastFilter.Limit != 5 || !db.lastFilter.Start.IsZero() {
		t.Errorf("filter = %+v", db.lastFilter)
	}

	if rec := get("/api/v1/activities?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
	if rec := get("/api/v1/activities/" + id.String()); rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}
	if rec := get("/api/v1/activities/" + uuid.NewString()); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
	if rec := get("/api/v1/activities/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	rec = get("/api/v1/activities/" + id.String() + "/trackpoints?lap=1")
	var pts []models.TrackpointRow
	if err := json.NewDecoder(rec.Body).Decode(&pts); err != nil {
		t.Fatal(err)
	}
	if len(pts) != 1 || pts[0].Seq != 1 || db.lastLap != 1 {
		t.Errorf("trackpoints = %+v (lap %d)", pts, db.lastLap)
	}

	del := httptest.NewRecorder()
	s.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/v1/activities/"+id.String(), nil))
	if del.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", del.Code)
	}
	if rec := get("/api/v1/activities/" + id.String()); rec.Code != http.StatusNotFound {
		t.Errorf("after delete status = %d, want 404", rec.Code)
	}
}

// TestStatsEndpoints verifies the stats and sport totals routes respond.
func TestStatsEndpoints(t *testing.T) {
	s := newTestServer(&fakeStore{activities: []models.ActivityRow{{ID: uuid.New(), UserID: 1}}}, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	var stats storage.DataStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalActivities != 1 {
		t.Errorf("total_activities = %d, want 1", stats.TotalActivities)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats/sports?start=2024-01-01&end=2024-01-31", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("sport totals status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats/sports?start=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad start status = %d, want 400", rec.Code)
	}
}

// TestParseTimeRange verifies defaults, RFC 3339 and inclusive date-only ends.
func TestParseTimeRange(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?start=2024-03-01&end=2024-03-02", nil)
	start, end, err := parseTimeRange(req)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}

	req = httptest.NewRequest(http.MethodGet, "/?start=2024-03-01T10:00:00Z&end=2024-03-01T12:00:00Z", nil)
	start, end, err = parseTimeRange(req)
	if err != nil {
		t.Fatal(err)
	}
	if end.Sub(start) != 2*time.Hour {
		t.Errorf("range = %v, want 2h", end.Sub(start))
	}

	start, end, err = parseTimeRange(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if d := end.Sub(start); d < 167*time.Hour || d > 169*time.Hour {
		t.Errorf("default range = %v, want ~7 days", d)
	}
}

// TestMetricsEndpoint verifies Prometheus metrics are exposed after a request.
func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeStore{}, nil)
	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `tcxstat_http_requests_total{code="200",method="GET",route="/api/v1/me"}`) {
		t.Error("request counter for /api/v1/me not exported")
	}
}
