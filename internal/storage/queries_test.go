package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return &DB{Pool: mock}, mock
}

// TestGetOrCreateUser verifies the upsert passes login and display name and
// returns the row id.
func TestGetOrCreateUser(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("alice@example.com", "Alice").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(7))

	id, err := db.GetOrCreateUser(context.Background(), "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	if id != 7 {
		t.Errorf("id = %d, want 7", id)
	}
}

// TestDeleteActivity verifies a delete that matches nothing is ErrNotFound.
func TestDeleteActivity(t *testing.T) {
	db, mock := newMockDB(t)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM activities`).WithArgs(id, 3).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM activities`).WithArgs(id, 4).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := db.DeleteActivity(context.Background(), id, 3); err != nil {
		t.Errorf("owner delete: %v", err)
	}
	if err := db.DeleteActivity(context.Background(), id, 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user delete = %v, want ErrNotFound", err)
	}
}

// TestSportTotals verifies open bounds are sent as NULL and rows scan in order.
func TestSportTotals(t *testing.T) {
	db, mock := newMockDB(t)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM activities`).
		WithArgs(2, (*time.Time)(nil), &end).
		WillReturnRows(pgxmock.NewRows([]string{"sport", "count", "duration", "distance", "calories", "ascent"}).
			AddRow("Running", int64(3), 5400.0, 30000.0, int64(2100), 120.5).
			AddRow("Biking", int64(1), 3600.0, 40000.0, int64(900), 300.0))

	got, err := db.SportTotals(context.Background(), time.Time{}, end, 2)
	if err != nil {
		t.Fatalf("SportTotals: %v", err)
	}
	if len(got) != 2 || got[0].Sport != "Running" || got[0].Count != 3 || got[1].TotalDistance != 40000 {
		t.Errorf("totals = %+v", got)
	}
}

// TestQueryActivitiesDefaults verifies an empty filter applies the default
// limit and an empty result is a non-nil slice.
func TestQueryActivitiesDefaults(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM activities`).
		WithArgs(1, (*time.Time)(nil), (*time.Time)(nil), "", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := db.QueryActivities(context.Background(), ActivityFilter{}, 1)
	if err != nil {
		t.Fatalf("QueryActivities: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("activities = %#v, want empty slice", got)
	}
}

// TestInsertImportLogError verifies driver errors are wrapped with context.
func TestInsertImportLogError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("connection reset")
	arg := pgxmock.AnyArg()
	mock.ExpectQuery(`INSERT INTO import_logs`).
		WithArgs(arg, arg, arg, arg, arg, arg, arg, arg, arg, arg).
		WillReturnError(boom)

	_, err := db.InsertImportLog(context.Background(), ImportLog{UserID: 1, Source: "tcx_upload", Status: "success"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}
