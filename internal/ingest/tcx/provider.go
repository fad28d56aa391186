package tcx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/meltforce/tcxstat/internal/ingest"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/meltforce/tcxstat/internal/ingest/tcx")

type activityStore interface {
	StoreActivity(ctx context.Context, act models.ActivityRow, laps []models.LapRow, points []models.TrackpointRow) (storage.StoreResult, error)
}

// Provider decodes uploaded TCX files and stores the activity, its laps and
// its processed trackpoints.
type Provider struct {
	db   activityStore
	log  *slog.Logger
	opts []Option
}

// NewProvider creates a new TCX ingest provider. opts apply to every decode.
func NewProvider(db *storage.DB, log *slog.Logger, opts ...Option) *Provider {
	return &Provider{db: db, log: log, opts: opts}
}

// Ingest decodes one TCX document and stores it. Re-uploading identical
// bytes for the same user is a no-op reported with zero inserts.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int) (_ *ingest.Result, err error) {
	ctx, span := tracer.Start(ctx, "tcx.Provider.Ingest", trace.WithAttributes(attribute.Int("user_id", userID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ingest failed")
		}
		span.End()
	}()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	span.SetAttributes(attribute.Int("bytes", len(raw)))

	opts := append([]Option{WithLogger(p.log)}, p.opts...)
	_, decodeSpan := tracer.Start(ctx, "tcx.Decode")
	act, err := Decode(bytes.NewReader(raw), opts...)
	decodeSpan.End()
	if err != nil {
		return nil, err
	}

	row, laps, points, err := ToRows(act, userID, hash)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sport", act.Sport),
		attribute.Int("laps", len(laps)),
		attribute.Int("trackpoints", len(points)),
	)

	stored, err := p.db.StoreActivity(ctx, row, laps, points)
	if err != nil {
		return nil, fmt.Errorf("storing activity: %w", err)
	}
	span.SetAttributes(attribute.Bool("inserted", stored.Inserted))

	result := &ingest.Result{
		ActivitiesReceived:  1,
		ActivityID:          row.ID.String(),
		Sport:               act.Sport,
		TrackpointsReceived: len(points),
		LapsInserted:        stored.Laps,
		TrackpointsInserted: stored.Trackpoints,
	}
	if stored.Inserted {
		result.ActivitiesInserted = 1
	} else {
		result.Message = "activity already imported"
	}

	p.log.Info("tcx ingest complete",
		"activity_id", result.ActivityID,
		"sport", act.Sport,
		"laps", len(laps),
		"trackpoints", len(points),
		"inserted", stored.Inserted,
		"user_id", userID)
	return result, nil
}

// ActivityID derives a stable activity ID from the user and the file hash,
// so a retried upload maps onto the same row.
func ActivityID(userID int, sourceHash string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "tcxstat:%d:%s", userID, sourceHash))
}

// ToRows flattens a decoded activity into storage rows. Trackpoints are
// taken from the laps so each keeps its lap index; Seq runs across laps.
func ToRows(act *models.Activity, userID int, sourceHash string) (models.ActivityRow, []models.LapRow, []models.TrackpointRow, error) {
	id := ActivityID(userID, sourceHash)

	lx, err := json.Marshal(act.LX)
	if err != nil {
		return models.ActivityRow{}, nil, nil, fmt.Errorf("encoding LX: %w", err)
	}
	extStats, err := json.Marshal(act.ExtStats)
	if err != nil {
		return models.ActivityRow{}, nil, nil, fmt.Errorf("encoding extension stats: %w", err)
	}

	row := models.ActivityRow{
		ID:          id,
		UserID:      userID,
		SourceHash:  sourceHash,
		ExternalID:  act.ID,
		Sport:       act.Sport,
		Calories:    act.Calories,
		Distance:    act.Distance,
		LapCount:    len(act.Laps),
		PointCount:  len(act.Trackpoints),
		StartTime:   act.StartTime,
		EndTime:     act.EndTime,
		DurationSec: act.Duration,
		AvgSpeed:    act.AvgSpeed,
		MaxSpeed:    act.MaxSpeed,
		HRMin:       act.HRMin,
		HRMax:       act.HRMax,
		HRAvg:       act.HRAvg,
		AltitudeMin: act.AltitudeMin,
		AltitudeMax: act.AltitudeMax,
		AltitudeAvg: act.AltitudeAvg,
		CadenceMax:  act.CadenceMax,
		CadenceAvg:  act.CadenceAvg,
		Ascent:      act.Ascent,
		Descent:     act.Descent,
		LX:          lx,
		ExtStats:    extStats,
	}
	if act.Author != nil {
		row.AuthorName = act.Author.Name
		if v := act.Author.Version(); v != "" {
			row.AuthorVer = &v
		}
	}

	laps := make([]models.LapRow, 0, len(act.Laps))
	var points []models.TrackpointRow
	for i, lap := range act.Laps {
		lapLX, err := json.Marshal(lap.LX)
		if err != nil {
			return models.ActivityRow{}, nil, nil, fmt.Errorf("encoding lap %d LX: %w", i, err)
		}
		lapStats, err := json.Marshal(lap.ExtStats)
		if err != nil {
			return models.ActivityRow{}, nil, nil, fmt.Errorf("encoding lap %d extension stats: %w", i, err)
		}
		laps = append(laps, models.LapRow{
			ActivityID:  id,
			UserID:      userID,
			LapIndex:    i,
			Calories:    lap.Calories,
			Distance:    lap.Distance,
			PointCount:  len(lap.Trackpoints),
			StartTime:   lap.StartTime,
			EndTime:     lap.EndTime,
			DurationSec: lap.Duration,
			AvgSpeed:    lap.AvgSpeed,
			MaxSpeed:    lap.MaxSpeed,
			HRMin:       lap.HRMin,
			HRMax:       lap.HRMax,
			HRAvg:       lap.HRAvg,
			Ascent:      lap.Ascent,
			Descent:     lap.Descent,
			LX:          lapLX,
			ExtStats:    lapStats,
		})

		for _, tp := range lap.Trackpoints {
			var ext json.RawMessage
			if len(tp.Extensions) > 0 {
				if ext, err = json.Marshal(tp.Extensions); err != nil {
					return models.ActivityRow{}, nil, nil, fmt.Errorf("encoding trackpoint extensions: %w", err)
				}
			}
			points = append(points, models.TrackpointRow{
				ActivityID: id,
				UserID:     userID,
				Seq:        len(points),
				LapIndex:   i,
				Time:       tp.Time,
				Latitude:   tp.Latitude,
				Longitude:  tp.Longitude,
				Elevation:  tp.Elevation,
				Distance:   tp.Distance,
				HeartRate:  tp.HeartRate,
				Cadence:    tp.Cadence,
				Extensions: ext,
			})
		}
	}
	return row, laps, points, nil
}
