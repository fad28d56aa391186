// Package tcx decodes Training Center XML activity files and derives
// activity and lap statistics from their trackpoints.
package tcx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meltforce/tcxstat/internal/archive"
	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/xmltree"
)

const (
	nsTCX = "http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2"
	nsExt = "http://www.garmin.com/xmlschemas/ActivityExtension/v2"
)

type options struct {
	onlyGPS      bool
	nullHandling NullHandling
	log          *slog.Logger
}

// Option configures a decode.
type Option func(*options)

// WithOnlyGPS controls whether trackpoints without a longitude are dropped
// before statistics are computed. Enabled by default.
func WithOnlyGPS(onlyGPS bool) Option {
	return func(o *options) { o.onlyGPS = onlyGPS }
}

// WithNullHandling selects how missing samples are treated. Defaults to NullNone.
func WithNullHandling(h NullHandling) Option {
	return func(o *options) { o.nullHandling = h }
}

// WithLogger receives debug records for fields that failed to parse.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// Options builds the option set for an only_gps flag and a null handling
// name as accepted by ParseNullHandling.
func Options(onlyGPS bool, nullHandling string) ([]Option, error) {
	h, err := ParseNullHandling(nullHandling)
	if err != nil {
		return nil, err
	}
	return []Option{WithOnlyGPS(onlyGPS), WithNullHandling(h)}, nil
}

// IsInvalidDocument reports whether err came from bad input rather than
// from I/O or storage.
func IsInvalidDocument(err error) bool {
	return errors.Is(err, xmltree.ErrMalformedDocument) || errors.Is(err, ErrMalformedTimestamp)
}

func newOptions(opts []Option) options {
	o := options{
		onlyGPS: true,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Decode reads a TCX document and returns the assembled activity with
// statistics computed for the activity and for every lap.
func Decode(r io.Reader, opts ...Option) (*models.Activity, error) {
	o := newOptions(opts)

	root, err := xmltree.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing TCX: %w", err)
	}

	act, err := assemble(root, o.log)
	if err != nil {
		return nil, fmt.Errorf("decoding TCX: %w", err)
	}

	act.Trackpoints, act.Stats = process(act.Trackpoints, act.Distance, o)
	for i := range act.Laps {
		lap := &act.Laps[i]
		lap.Trackpoints, lap.Stats = process(lap.Trackpoints, lap.Distance, o)
	}
	return act, nil
}

// ReadFile decodes the TCX file at path. Files ending in .gz or .zst are
// decompressed transparently.
func ReadFile(path string, opts ...Option) (*models.Activity, error) {
	r, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer r.Close()

	act, err := Decode(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return act, nil
}

// assemble walks the document root. Laps from every Activity element are
// collected in document order; the last Sport attribute and Id win.
func assemble(root *xmltree.Node, log *slog.Logger) (*models.Activity, error) {
	act := &models.Activity{
		Laps: []models.Lap{},
		LX:   make(map[string]models.ExtValue),
	}

	lapIndex := 0
	for _, node := range root.Children {
		switch {
		case node.Is(nsTCX, "Activities"):
			for _, a := range node.Children {
				if !a.Is(nsTCX, "Activity") {
					continue
				}
				if sport, ok := a.Attr("Sport"); ok {
					act.Sport = sport
				}
				if id := a.Child(nsTCX, "Id"); id != nil {
					act.ID = id.Text
				}
				for _, l := range a.Children {
					if !l.Is(nsTCX, "Lap") {
						continue
					}
					lap, err := buildLap(l, lapIndex, log)
					if err != nil {
						return nil, err
					}
					lapIndex++

					act.Calories += lap.Calories
					act.Distance += lap.Distance
					rollUpLX(act.LX, lap.LX)
					act.Trackpoints = append(act.Trackpoints, cloneTrackpoints(lap.Trackpoints)...)

					// Empty laps are dropped but their totals stay in the activity.
					if len(lap.Trackpoints) > 0 {
						act.Laps = append(act.Laps, lap)
					}
				}
			}
		case node.Is(nsTCX, "Author"):
			act.Author = buildAuthor(node)
		}
	}

	return act, nil
}

// process runs the post-assembly pipeline on one trackpoint sequence:
// GPS trimming, optional gap filling, then statistics.
func process(points []models.Trackpoint, distance float64, o options) ([]models.Trackpoint, models.Stats) {
	if o.onlyGPS {
		points = TrimGPS(points)
	}
	if o.nullHandling == NullLinearInterpolation {
		points = Interpolate(points)
	}
	return Aggregate(points, distance, o.onlyGPS)
}
