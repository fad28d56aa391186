package mcp

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
)

// timeRange parses optional start/end strings. A missing end is now and a
// missing start is defaultDays before end.
func timeRange(startStr, endStr string, defaultDays int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -defaultDays)
	}

	return start, end, nil
}

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	return timeRange(startStr, endStr, 7)
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// --- Tool definitions ---

var toolListActivities = mcp.NewTool("list_activities",
	mcp.WithDescription("List recorded activities, newest first. Each entry has sport, start/end time, duration, distance, calories, speed, heart rate, cadence, altitude and climb summaries."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithString("sport", mcp.Description("Filter by TCX sport (e.g. 'Running', 'Biking', 'Other')")),
	mcp.WithNumber("limit", mcp.Description("Maximum activities to return. Defaults to 50.")),
)

var toolGetActivity = mcp.NewTool("get_activity",
	mcp.WithDescription("Get one activity with per-lap statistics."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Activity UUID from list_activities")),
)

var toolGetTrackpoints = mcp.NewTool("get_trackpoints",
	mcp.WithDescription("Get an activity's trackpoints (time, position, elevation, distance, heart rate, cadence, extensions). Long tracks are evenly sampled down to max_points."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Activity UUID")),
	mcp.WithNumber("lap", mcp.Description("Zero-based lap index. Omit for the whole activity.")),
	mcp.WithNumber("max_points", mcp.Description("Upper bound on returned points. Defaults to 500.")),
)

var toolGetSportTotals = mcp.NewTool("get_sport_totals",
	mcp.WithDescription("Per-sport totals (count, duration, distance, calories, ascent) for activities started in a time range."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 30 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

var toolComparePeriods = mcp.NewTool("compare_periods",
	mcp.WithDescription("Compare per-sport totals between two time periods (e.g. this month vs last month)."),
	mcp.WithString("period_a_start", mcp.Required(), mcp.Description("Period A start date")),
	mcp.WithString("period_a_end", mcp.Required(), mcp.Description("Period A end date")),
	mcp.WithString("period_b_start", mcp.Required(), mcp.Description("Period B start date")),
	mcp.WithString("period_b_end", mcp.Required(), mcp.Description("Period B end date")),
)

var toolDecodeTCXFile = mcp.NewTool("decode_tcx_file",
	mcp.WithDescription("Decode a TCX file (.tcx, .tcx.gz or .tcx.zst) from the local disk and return activity and lap statistics. Nothing is stored."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to the TCX file")),
	mcp.WithBoolean("only_gps", mcp.Description("Drop trackpoints without a position before computing statistics. Defaults to true.")),
	mcp.WithString("null_handling", mcp.Description("Missing sample handling. Defaults to 'none'."), mcp.Enum("none", "linear")),
	mcp.WithBoolean("include_trackpoints", mcp.Description("Include the processed trackpoints in the result. Defaults to false.")),
)

// --- Tool handlers ---

func (h *handlers) listActivities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := timeRange(req.GetString("start", ""), req.GetString("end", ""), 30)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	f := storage.ActivityFilter{
		Start: start,
		End:   end,
		Sport: req.GetString("sport", ""),
		Limit: req.GetInt("limit", 50),
	}
	acts, err := h.ds.QueryActivities(ctx, f, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp list_activities", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(acts)
}

func (h *handlers) getActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireID(req)
	if errResult != nil {
		return errResult, nil
	}

	detail, err := h.ds.GetActivity(ctx, id, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_activity", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(detail)
}

func (h *handlers) getTrackpoints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireID(req)
	if errResult != nil {
		return errResult, nil
	}

	points, err := h.ds.QueryTrackpoints(ctx, id, req.GetInt("lap", -1), UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_trackpoints", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(map[string]any{
		"total":       len(points),
		"trackpoints": samplePoints(points, req.GetInt("max_points", 500)),
	})
}

func (h *handlers) getSportTotals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := timeRange(req.GetString("start", ""), req.GetString("end", ""), 30)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	totals, err := h.ds.SportTotals(ctx, start, end, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_sport_totals", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(totals)
}

// sportComparison pairs one sport's totals across two periods.
type sportComparison struct {
	Sport             string            `json:"sport"`
	PeriodA           storage.SportStat `json:"period_a"`
	PeriodB           storage.SportStat `json:"period_b"`
	CountChange       int64             `json:"count_change"`
	DurationChangePct *float64          `json:"duration_change_pct"`
	DistanceChangePct *float64          `json:"distance_change_pct"`
}

func (h *handlers) comparePeriods(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var bounds [4]time.Time
	for i, key := range []string{"period_a_start", "period_a_end", "period_b_start", "period_b_end"} {
		s, err := req.RequireString(key)
		if err != nil {
			return mcp.NewToolResultError(key + " parameter is required"), nil
		}
		if bounds[i], err = parseFlexTime(s); err != nil {
			return mcp.NewToolResultError("invalid " + key + ": " + err.Error()), nil
		}
	}

	uid := UserIDFromContext(ctx)
	a, err := h.ds.SportTotals(ctx, bounds[0], bounds[1], uid)
	if err != nil {
		h.log.Error("mcp compare_periods", "period", "a", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	b, err := h.ds.SportTotals(ctx, bounds[2], bounds[3], uid)
	if err != nil {
		h.log.Error("mcp compare_periods", "period", "b", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(compareTotals(a, b))
}

// compareTotals joins two per-sport total lists by sport. Percent changes
// are relative to period A and omitted when A is zero.
func compareTotals(a, b []storage.SportStat) []sportComparison {
	bySport := map[string]*sportComparison{}
	get := func(sport string) *sportComparison {
		c, ok := bySport[sport]
		if !ok {
			c = &sportComparison{Sport: sport}
			c.PeriodA.Sport, c.PeriodB.Sport = sport, sport
			bySport[sport] = c
		}
		return c
	}
	for _, s := range a {
		get(s.Sport).PeriodA = s
	}
	for _, s := range b {
		get(s.Sport).PeriodB = s
	}

	out := make([]sportComparison, 0, len(bySport))
	for _, c := range bySport {
		c.CountChange = c.PeriodB.Count - c.PeriodA.Count
		c.DurationChangePct = pctChange(c.PeriodA.TotalDuration, c.PeriodB.TotalDuration)
		c.DistanceChangePct = pctChange(c.PeriodA.TotalDistance, c.PeriodB.TotalDistance)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sport < out[j].Sport })
	return out
}

func pctChange(from, to float64) *float64 {
	if from == 0 {
		return nil
	}
	v := (to - from) / from * 100
	return &v
}

func (h *handlers) decodeTCXFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path parameter is required"), nil
	}
	opts, err := tcx.Options(req.GetBool("only_gps", true), req.GetString("null_handling", "none"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	act, err := tcx.ReadFile(path, append(opts, tcx.WithLogger(h.log))...)
	if err != nil {
		return mcp.NewToolResultError("decode failed: " + err.Error()), nil
	}
	if !req.GetBool("include_trackpoints", false) {
		stripTrackpoints(act)
	}
	return jsonResult(act)
}

func stripTrackpoints(act *models.Activity) {
	act.Trackpoints = nil
	for i := range act.Laps {
		act.Laps[i].Trackpoints = nil
	}
}

// samplePoints keeps at most limit points, evenly spaced, always including
// the first and last.
func samplePoints(points []models.TrackpointRow, limit int) []models.TrackpointRow {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	if limit == 1 {
		return points[:1]
	}
	out := make([]models.TrackpointRow, 0, limit)
	step := float64(len(points)-1) / float64(limit-1)
	for i := range limit {
		out = append(out, points[int(float64(i)*step+0.5)])
	}
	return out
}

func requireID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	s, err := req.RequireString("id")
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("id parameter is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("invalid activity id: " + s)
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
