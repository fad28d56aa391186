package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityRow is a row ready for insertion into the activities table.
// Statistics columns mirror Stats; LX and ExtStats are stored as JSON.
type ActivityRow struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int             `json:"user_id"`
	SourceHash  string          `json:"source_hash"`
	ExternalID  string          `json:"external_id"`
	Sport       string          `json:"sport"`
	Calories    int             `json:"calories"`
	Distance    float64         `json:"distance"`
	AuthorName  *string         `json:"author_name,omitempty"`
	AuthorVer   *string         `json:"author_version,omitempty"`
	LapCount    int             `json:"lap_count"`
	PointCount  int             `json:"trackpoint_count"`
	StartTime   *time.Time      `json:"start_time"`
	EndTime     *time.Time      `json:"end_time"`
	DurationSec *float64        `json:"duration_sec"`
	AvgSpeed    *float64        `json:"avg_speed"`
	MaxSpeed    *float64        `json:"max_speed"`
	HRMin       *int            `json:"hr_min"`
	HRMax       *int            `json:"hr_max"`
	HRAvg       *float64        `json:"hr_avg"`
	AltitudeMin *float64        `json:"altitude_min"`
	AltitudeMax *float64        `json:"altitude_max"`
	AltitudeAvg *float64        `json:"altitude_avg"`
	CadenceMax  *int            `json:"cadence_max"`
	CadenceAvg  *float64        `json:"cadence_avg"`
	Ascent      float64         `json:"ascent"`
	Descent     float64         `json:"descent"`
	LX          json.RawMessage `json:"lx"`
	ExtStats    json.RawMessage `json:"ext_stats"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LapRow is a row ready for insertion into the activity_laps table.
type LapRow struct {
	ActivityID  uuid.UUID       `json:"activity_id"`
	UserID      int             `json:"user_id"`
	LapIndex    int             `json:"lap_index"`
	Calories    int             `json:"calories"`
	Distance    float64         `json:"distance"`
	PointCount  int             `json:"trackpoint_count"`
	StartTime   *time.Time      `json:"start_time"`
	EndTime     *time.Time      `json:"end_time"`
	DurationSec *float64        `json:"duration_sec"`
	AvgSpeed    *float64        `json:"avg_speed"`
	MaxSpeed    *float64        `json:"max_speed"`
	HRMin       *int            `json:"hr_min"`
	HRMax       *int            `json:"hr_max"`
	HRAvg       *float64        `json:"hr_avg"`
	Ascent      float64         `json:"ascent"`
	Descent     float64         `json:"descent"`
	LX          json.RawMessage `json:"lx"`
	ExtStats    json.RawMessage `json:"ext_stats"`
}

// TrackpointRow is a row ready for insertion into the activity_trackpoints
// table. Seq orders points within the activity.
type TrackpointRow struct {
	ActivityID uuid.UUID       `json:"activity_id"`
	UserID     int             `json:"user_id"`
	Seq        int             `json:"seq"`
	LapIndex   int             `json:"lap_index"`
	Time       *time.Time      `json:"time"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	Elevation  *float64        `json:"elevation"`
	Distance   *float64        `json:"distance"`
	HeartRate  *int            `json:"heart_rate"`
	Cadence    *int            `json:"cadence"`
	Extensions json.RawMessage `json:"extensions,omitempty"`
}
