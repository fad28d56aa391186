package storage

import (
	"context"
	"fmt"
	"time"
)

// DataStats holds aggregate statistics about all stored data.
type DataStats struct {
	TotalActivities  int64       `json:"total_activities"`
	TotalLaps        int64       `json:"total_laps"`
	TotalTrackpoints int64       `json:"total_trackpoints"`
	EarliestData     *time.Time  `json:"earliest_data"`
	LatestData       *time.Time  `json:"latest_data"`
	BySport          []SportStat `json:"by_sport"`
}

// SportStat holds summed totals for a single sport.
type SportStat struct {
	Sport         string  `json:"sport"`
	Count         int64   `json:"count"`
	TotalDuration float64 `json:"total_duration_sec"`
	TotalDistance float64 `json:"total_distance"`
	TotalCalories int64   `json:"total_calories"`
	TotalAscent   float64 `json:"total_ascent"`
}

// GetDataStats returns aggregate statistics for a user's stored data.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{BySport: []SportStat{}}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(start_time), MAX(start_time) FROM activities WHERE user_id = $1`, userID,
	).Scan(&stats.TotalActivities, &stats.EarliestData, &stats.LatestData)
	if err != nil {
		return nil, fmt.Errorf("counting activities: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_laps WHERE user_id = $1`, userID,
	).Scan(&stats.TotalLaps)
	if err != nil {
		return nil, fmt.Errorf("counting laps: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activity_trackpoints WHERE user_id = $1`, userID,
	).Scan(&stats.TotalTrackpoints)
	if err != nil {
		return nil, fmt.Errorf("counting trackpoints: %w", err)
	}

	stats.BySport, err = db.SportTotals(ctx, time.Time{}, time.Time{}, userID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SportTotals sums activities per sport, optionally bounded by start time.
// Zero bounds are open.
func (db *DB) SportTotals(ctx context.Context, start, end time.Time, userID int) ([]SportStat, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT sport, COUNT(*), COALESCE(SUM(duration_sec), 0), COALESCE(SUM(distance), 0),
		 COALESCE(SUM(calories), 0), COALESCE(SUM(ascent), 0)
		 FROM activities
		 WHERE user_id = $1
		   AND ($2::timestamptz IS NULL OR start_time >= $2)
		   AND ($3::timestamptz IS NULL OR start_time < $3)
		 GROUP BY sport
		 ORDER BY COUNT(*) DESC, sport`,
		userID, nullTime(start), nullTime(end))
	if err != nil {
		return nil, fmt.Errorf("querying sport totals: %w", err)
	}
	defer rows.Close()

	result := []SportStat{}
	for rows.Next() {
		var s SportStat
		if err := rows.Scan(&s.Sport, &s.Count, &s.TotalDuration, &s.TotalDistance, &s.TotalCalories, &s.TotalAscent); err != nil {
			return nil, fmt.Errorf("scanning sport stat: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
