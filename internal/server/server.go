package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/meltforce/tcxstat/internal/ingest"
	"github.com/meltforce/tcxstat/internal/ingest/tcx"
	tcxmcp "github.com/meltforce/tcxstat/internal/mcp"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// store is the subset of *storage.DB the handlers use.
type store interface {
	QueryActivities(ctx context.Context, f storage.ActivityFilter, userID int) ([]models.ActivityRow, error)
	GetActivity(ctx context.Context, id uuid.UUID, userID int) (*storage.ActivityDetail, error)
	QueryTrackpoints(ctx context.Context, id uuid.UUID, lapIndex, userID int) ([]models.TrackpointRow, error)
	DeleteActivity(ctx context.Context, id uuid.UUID, userID int) error
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
	SportTotals(ctx context.Context, start, end time.Time, userID int) ([]storage.SportStat, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log storage.ImportLog) error
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
}

type ingester interface {
	Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error)
}

// Options carries the settings the handlers need from the config file.
type Options struct {
	APIKey string
	// MaxUploadBytes bounds an ingest or decode body after decompression.
	MaxUploadBytes int64
	// ImportRoot is the directory server-side imports may read from.
	// Empty disables POST /api/v1/import.
	ImportRoot string
	// OnlyGPS and NullHandling are the decode defaults; /api/v1/decode
	// accepts per-request overrides.
	OnlyGPS      bool
	NullHandling string
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db     store
	tcx    ingester
	log    *slog.Logger
	opts   Options
	router chi.Router

	whoIs whoIser

	importMu     sync.Mutex
	activeImport *importState
}

// New creates a new Server with all routes configured.
func New(db *storage.DB, provider *tcx.Provider, opts Options, log *slog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	s := &Server{
		db:     db,
		tcx:    provider,
		log:    log,
		opts:   opts,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(Instrument)
	s.router.Use(CORS)

	s.router.Handle("/metrics", promhttp.Handler())

	// Ingest (API key required)
	s.router.Route("/api/v1/ingest", func(r chi.Router) {
		r.Use(s.identity)
		r.Use(APIKeyAuth(s.opts.APIKey))
		r.Post("/tcx", s.handleIngestTCX)
	})

	// Query API (no key; tsnet handles access)
	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)

		r.Get("/api/v1/me", s.handleMe)
		r.Post("/api/v1/decode", s.handleDecode)

		r.Get("/api/v1/activities", s.handleQueryActivities)
		r.Get("/api/v1/activities/{id}", s.handleGetActivity)
		r.Delete("/api/v1/activities/{id}", s.handleDeleteActivity)
		r.Get("/api/v1/activities/{id}/trackpoints", s.handleTrackpoints)

		r.Get("/api/v1/stats", s.handleStats)
		r.Get("/api/v1/stats/sports", s.handleSportTotals)
		r.Get("/api/v1/import-logs", s.handleImportLogs)

		r.Post("/api/v1/import", s.handleStartImport)
		r.Get("/api/v1/import/status", s.handleImportStatus)
		r.Get("/api/v1/import/events", s.handleImportEvents)
		r.Post("/api/v1/import/cancel", s.handleCancelImport)
	})
}

// MountMCP serves m over streamable HTTP at /mcp. Requests pass through
// the identity middleware so tool calls are scoped to the caller.
func (s *Server) MountMCP(m *mcpserver.MCPServer) {
	h := mcpserver.NewStreamableHTTPServer(m,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return tcxmcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)
	s.router.With(s.identity).Handle("/mcp", h)
}
