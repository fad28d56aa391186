package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/meltforce/tcxstat/internal/models"
)

// ErrNotFound is returned when a requested row does not exist for the user.
var ErrNotFound = errors.New("not found")

// maxParams is PostgreSQL's bind parameter limit per statement.
const maxParams = 65535

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const activityColumns = `id, user_id, source_hash, external_id, sport, calories, distance,
	author_name, author_version, lap_count, trackpoint_count, start_time, end_time, duration_sec,
	avg_speed, max_speed, hr_min, hr_max, hr_avg, altitude_min, altitude_max, altitude_avg,
	cadence_max, cadence_avg, ascent, descent, lx, ext_stats`

// StoreResult counts what StoreActivity wrote.
type StoreResult struct {
	Inserted    bool
	Laps        int64
	Trackpoints int64
}

// StoreActivity inserts an activity with its laps and trackpoints in one
// transaction. A duplicate activity (same user and source hash) is skipped
// entirely and reported with Inserted false.
func (db *DB) StoreActivity(ctx context.Context, act models.ActivityRow, laps []models.LapRow, points []models.TrackpointRow) (StoreResult, error) {
	var res StoreResult
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		inserted, err := insertActivity(ctx, tx, act)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		res.Inserted = true

		if res.Laps, err = insertLaps(ctx, tx, laps); err != nil {
			return err
		}
		res.Trackpoints, err = insertTrackpoints(ctx, tx, points)
		return err
	})
	if err != nil {
		return StoreResult{}, err
	}
	return res, nil
}

func insertActivity(ctx context.Context, ex execer, r models.ActivityRow) (bool, error) {
	tag, err := ex.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)
		 ON CONFLICT DO NOTHING`,
		r.ID, r.UserID, r.SourceHash, r.ExternalID, r.Sport, r.Calories, r.Distance,
		r.AuthorName, r.AuthorVer, r.LapCount, r.PointCount, r.StartTime, r.EndTime, r.DurationSec,
		r.AvgSpeed, r.MaxSpeed, r.HRMin, r.HRMax, r.HRAvg, r.AltitudeMin, r.AltitudeMax, r.AltitudeAvg,
		r.CadenceMax, r.CadenceAvg, r.Ascent, r.Descent, r.LX, r.ExtStats)
	if err != nil {
		return false, fmt.Errorf("inserting activity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func insertLaps(ctx context.Context, ex execer, rows []models.LapRow) (int64, error) {
	const cols = 18
	n, err := batchInsert(ctx, ex,
		`INSERT INTO activity_laps (activity_id, user_id, lap_index, calories, distance, trackpoint_count,
		 start_time, end_time, duration_sec, avg_speed, max_speed, hr_min, hr_max, hr_avg,
		 ascent, descent, lx, ext_stats) VALUES `,
		cols, len(rows), func(i int) []any {
			r := rows[i]
			return []any{r.ActivityID, r.UserID, r.LapIndex, r.Calories, r.Distance, r.PointCount,
				r.StartTime, r.EndTime, r.DurationSec, r.AvgSpeed, r.MaxSpeed, r.HRMin, r.HRMax, r.HRAvg,
				r.Ascent, r.Descent, r.LX, r.ExtStats}
		})
	if err != nil {
		return 0, fmt.Errorf("inserting laps: %w", err)
	}
	return n, nil
}

func insertTrackpoints(ctx context.Context, ex execer, rows []models.TrackpointRow) (int64, error) {
	const cols = 12
	n, err := batchInsert(ctx, ex,
		`INSERT INTO activity_trackpoints (activity_id, user_id, seq, lap_index, time, latitude, longitude,
		 elevation, distance, heart_rate, cadence, extensions) VALUES `,
		cols, len(rows), func(i int) []any {
			r := rows[i]
			return []any{r.ActivityID, r.UserID, r.Seq, r.LapIndex, r.Time, r.Latitude, r.Longitude,
				r.Elevation, r.Distance, r.HeartRate, r.Cadence, r.Extensions}
		})
	if err != nil {
		return 0, fmt.Errorf("inserting trackpoints: %w", err)
	}
	return n, nil
}

// batchInsert runs multi-row INSERTs of n rows, split so no statement
// exceeds maxParams. Returns the number of rows actually inserted.
func batchInsert(ctx context.Context, ex execer, prefix string, cols, n int, argsFor func(i int) []any) (int64, error) {
	var total int64
	perStmt := maxParams / cols
	for start := 0; start < n; start += perStmt {
		end := min(start+perStmt, n)
		args := make([]any, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			args = append(args, argsFor(i)...)
		}
		query := prefix + valuesClause(end-start, cols) + " ON CONFLICT DO NOTHING"
		tag, err := ex.Exec(ctx, query, args...)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// valuesClause renders "($1,$2),($3,$4)" for rows x cols placeholders.
func valuesClause(rows, cols int) string {
	var b strings.Builder
	for i := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", i*cols+c+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// ActivityFilter narrows QueryActivities. Zero fields are ignored.
type ActivityFilter struct {
	Start time.Time
	End   time.Time
	Sport string
	Limit int
}

// QueryActivities retrieves activities by start time, newest first.
func (db *DB) QueryActivities(ctx context.Context, f ActivityFilter, userID int) ([]models.ActivityRow, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+activityColumns+`, created_at
		 FROM activities
		 WHERE user_id = $1
		   AND ($2::timestamptz IS NULL OR start_time >= $2)
		   AND ($3::timestamptz IS NULL OR start_time < $3)
		   AND ($4 = '' OR sport = $4)
		 ORDER BY start_time DESC NULLS LAST, created_at DESC
		 LIMIT $5`,
		userID, nullTime(f.Start), nullTime(f.End), f.Sport, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

// ActivityDetail is an activity with its laps.
type ActivityDetail struct {
	models.ActivityRow
	Laps []models.LapRow `json:"laps"`
}

// GetActivity retrieves a single activity by ID with its laps.
func (db *DB) GetActivity(ctx context.Context, id uuid.UUID, userID int) (*ActivityDetail, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+activityColumns+`, created_at
		 FROM activities
		 WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	acts, err := scanActivityRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(acts) == 0 {
		return nil, ErrNotFound
	}

	detail := &ActivityDetail{ActivityRow: acts[0], Laps: []models.LapRow{}}

	lapRows, err := db.Pool.Query(ctx,
		`SELECT activity_id, user_id, lap_index, calories, distance, trackpoint_count,
		 start_time, end_time, duration_sec, avg_speed, max_speed, hr_min, hr_max, hr_avg,
		 ascent, descent, lx, ext_stats
		 FROM activity_laps
		 WHERE activity_id = $1 AND user_id = $2
		 ORDER BY lap_index ASC`,
		id, userID)
	if err != nil {
		return nil, fmt.Errorf("querying laps: %w", err)
	}
	defer lapRows.Close()

	for lapRows.Next() {
		var l models.LapRow
		if err := lapRows.Scan(&l.ActivityID, &l.UserID, &l.LapIndex, &l.Calories, &l.Distance, &l.PointCount,
			&l.StartTime, &l.EndTime, &l.DurationSec, &l.AvgSpeed, &l.MaxSpeed, &l.HRMin, &l.HRMax, &l.HRAvg,
			&l.Ascent, &l.Descent, &l.LX, &l.ExtStats); err != nil {
			return nil, fmt.Errorf("scanning lap: %w", err)
		}
		detail.Laps = append(detail.Laps, l)
	}
	return detail, lapRows.Err()
}

// QueryTrackpoints returns an activity's trackpoints in recorded order.
// A negative lapIndex returns every point.
func (db *DB) QueryTrackpoints(ctx context.Context, id uuid.UUID, lapIndex, userID int) ([]models.TrackpointRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT activity_id, user_id, seq, lap_index, time, latitude, longitude,
		 elevation, distance, heart_rate, cadence, extensions
		 FROM activity_trackpoints
		 WHERE activity_id = $1 AND user_id = $2 AND ($3 < 0 OR lap_index = $3)
		 ORDER BY seq ASC`,
		id, userID, lapIndex)
	if err != nil {
		return nil, fmt.Errorf("querying trackpoints: %w", err)
	}
	defer rows.Close()

	result := []models.TrackpointRow{}
	for rows.Next() {
		var p models.TrackpointRow
		if err := rows.Scan(&p.ActivityID, &p.UserID, &p.Seq, &p.LapIndex, &p.Time, &p.Latitude, &p.Longitude,
			&p.Elevation, &p.Distance, &p.HeartRate, &p.Cadence, &p.Extensions); err != nil {
			return nil, fmt.Errorf("scanning trackpoint: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeleteActivity removes an activity; laps and trackpoints cascade.
func (db *DB) DeleteActivity(ctx context.Context, id uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM activities WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanActivityRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.ActivityRow, error) {
	result := []models.ActivityRow{}
	for rows.Next() {
		var a models.ActivityRow
		if err := rows.Scan(&a.ID, &a.UserID, &a.SourceHash, &a.ExternalID, &a.Sport, &a.Calories, &a.Distance,
			&a.AuthorName, &a.AuthorVer, &a.LapCount, &a.PointCount, &a.StartTime, &a.EndTime, &a.DurationSec,
			&a.AvgSpeed, &a.MaxSpeed, &a.HRMin, &a.HRMax, &a.HRAvg, &a.AltitudeMin, &a.AltitudeMax, &a.AltitudeAvg,
			&a.CadenceMax, &a.CadenceAvg, &a.Ascent, &a.Descent, &a.LX, &a.ExtStats, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
