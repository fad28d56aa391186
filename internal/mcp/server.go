package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("TCXStat", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("TCXStat activity server. Query recorded TCX activities, their laps and trackpoints, and per-sport training totals. decode_tcx_file reads a TCX file from the local disk without storing it. All stored data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListActivities, Handler: h.listActivities},
		server.ServerTool{Tool: toolGetActivity, Handler: h.getActivity},
		server.ServerTool{Tool: toolGetTrackpoints, Handler: h.getTrackpoints},
		server.ServerTool{Tool: toolGetSportTotals, Handler: h.getSportTotals},
		server.ServerTool{Tool: toolComparePeriods, Handler: h.comparePeriods},
		server.ServerTool{Tool: toolDecodeTCXFile, Handler: h.decodeTCXFile},
	)

	s.AddResources(
		server.ServerResource{Resource: resRecentActivities, Handler: h.recentActivities},
		server.ServerResource{Resource: resDataStats, Handler: h.dataStats},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resRecentActivities = mcp.NewResource(
	"tcxstat://recent_activities",
	"Recent Activities",
	mcp.WithResourceDescription("Activities started in the last 14 days, newest first"),
	mcp.WithMIMEType("application/json"),
)

var resDataStats = mcp.NewResource(
	"tcxstat://data_stats",
	"Data Stats",
	mcp.WithResourceDescription("Stored activity, lap and trackpoint counts, the covered date range, and per-sport totals"),
	mcp.WithMIMEType("application/json"),
)
