package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/tcxstat/internal/ingest"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
)

var discard = slog.New(slog.DiscardHandler)

const minimalTCX = `<?xml version="1.0"?>
<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2">
  <Activities><Activity Sport="Running"><Id>2024-05-01T07:00:00Z</Id>
    <Lap><DistanceMeters>20</DistanceMeters><Calories>3</Calories><Track>
      <Trackpoint><Time>2024-05-01T07:00:00Z</Time><Position><LatitudeDegrees>1</LatitudeDegrees><LongitudeDegrees>2</LongitudeDegrees></Position><HeartRateBpm><Value>120</Value></HeartRateBpm></Trackpoint>
      <Trackpoint><Time>2024-05-01T07:00:05Z</Time><Position><LatitudeDegrees>1</LatitudeDegrees><LongitudeDegrees>2</LongitudeDegrees></Position></Trackpoint>
      <Trackpoint><Time>2024-05-01T07:00:10Z</Time><Position><LatitudeDegrees>1</LatitudeDegrees><LongitudeDegrees>2</LongitudeDegrees></Position><HeartRateBpm><Value>140</Value></HeartRateBpm></Trackpoint>
    </Track></Lap>
  </Activity></Activities>
</TrainingCenterDatabase>`

// fakeStore is an in-memory store. Calls may arrive from logImport goroutines.
type fakeStore struct {
	mu         sync.Mutex
	activities []models.ActivityRow
	points     []models.TrackpointRow
	logs       []storage.ImportLog
	updates    []storage.ImportLog
	users      map[string]int
	lastFilter storage.ActivityFilter
	lastLap    int
}

func (f *fakeStore) QueryActivities(_ context.Context, fl storage.ActivityFilter, userID int) ([]models.ActivityRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = fl
	var out []models.ActivityRow
	for _, a := range f.activities {
		if a.UserID == userID && (fl.Sport == "" || a.Sport == fl.Sport) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetActivity(_ context.Context, id uuid.UUID, userID int) (*storage.ActivityDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.activities {
		if a.ID == id && a.UserID == userID {
			return &storage.ActivityDetail{ActivityRow: a, Laps: []models.LapRow{}}, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) QueryTrackpoints(_ context.Context, id uuid.UUID, lapIndex, userID int) ([]models.TrackpointRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLap = lapIndex
	out := []models.TrackpointRow{}
	for _, p := range f.points {
		if p.ActivityID == id && p.UserID == userID && (lapIndex < 0 || p.LapIndex == lapIndex) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteActivity(_ context.Context, id uuid.UUID, userID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.activities {
		if a.ID == id && a.UserID == userID {
			f.activities = append(f.activities[:i], f.activities[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) GetDataStats(_ context.Context, userID int) (*storage.DataStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &storage.DataStats{TotalActivities: int64(len(f.activities))}, nil
}

func (f *fakeStore) SportTotals(_ context.Context, start, end time.Time, userID int) ([]storage.SportStat, error) {
	return []storage.SportStat{{Sport: "Running", Count: 1}}, nil
}

func (f *fakeStore) InsertImportLog(_ context.Context, l storage.ImportLog) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	return int64(len(f.logs)), nil
}

func (f *fakeStore) UpdateImportLog(_ context.Context, id int64, l storage.ImportLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, l)
	return nil
}

func (f *fakeStore) QueryImportLogs(_ context.Context, userID, limit int) ([]storage.ImportLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit < len(f.logs) {
		return f.logs[:limit], nil
	}
	return f.logs, nil
}

func (f *fakeStore) GetOrCreateUser(_ context.Context, login, displayName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users == nil {
		f.users = map[string]int{}
	}
	if id, ok := f.users[login]; ok {
		return id, nil
	}
	f.users[login] = len(f.users) + 2
	return f.users[login], nil
}

func (f *fakeStore) importLogs() []storage.ImportLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.ImportLog(nil), f.logs...)
}

// decodeIngester decodes like the real provider but keeps nothing.
type decodeIngester struct {
	mu    sync.Mutex
	users []int
}

func (d *decodeIngester) Ingest(_ context.Context, r io.Reader, userID int) (*ingest.Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	act, err := tcx.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.users = append(d.users, userID)
	d.mu.Unlock()
	return &ingest.Result{
		ActivitiesReceived:  1,
		ActivitiesInserted:  1,
		Sport:               act.Sport,
		LapsInserted:        int64(len(act.Laps)),
		TrackpointsReceived: len(act.Trackpoints),
		TrackpointsInserted: int64(len(act.Trackpoints)),
	}, nil
}

// newTestServer wires a Server around fakes without a database.
func newTestServer(db *fakeStore, ing ingester) *Server {
	s := &Server{
		db:     db,
		tcx:    ing,
		log:    discard,
		opts:   Options{APIKey: "test-key", MaxUploadBytes: 1 << 20, OnlyGPS: true},
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}
