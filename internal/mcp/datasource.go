package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QueryActivities(ctx context.Context, f storage.ActivityFilter, userID int) ([]models.ActivityRow, error)
	GetActivity(ctx context.Context, id uuid.UUID, userID int) (*storage.ActivityDetail, error)
	QueryTrackpoints(ctx context.Context, id uuid.UUID, lapIndex, userID int) ([]models.TrackpointRow, error)
	SportTotals(ctx context.Context, start, end time.Time, userID int) ([]storage.SportStat, error)
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
