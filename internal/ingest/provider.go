package ingest

// Result holds the outcome of an ingest operation.
type Result struct {
	ActivitiesReceived int    `json:"activities_received"`
	ActivitiesInserted int    `json:"activities_inserted"`
	ActivityID         string `json:"activity_id,omitempty"`
	Sport              string `json:"sport,omitempty"`

	LapsInserted        int64 `json:"laps_inserted"`
	TrackpointsReceived int   `json:"trackpoints_received"`
	TrackpointsInserted int64 `json:"trackpoints_inserted"`

	Message string `json:"message,omitempty"`
}
