package tcx

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/meltforce/tcxstat/internal/models"
)

// NullHandling selects what happens to samples a device did not report.
type NullHandling int

const (
	// NullNone leaves missing samples empty.
	NullNone NullHandling = iota
	// NullLinearInterpolation fills missing samples from their neighbours.
	NullLinearInterpolation
)

func (h NullHandling) String() string {
	switch h {
	case NullNone:
		return "none"
	case NullLinearInterpolation:
		return "linear"
	default:
		return fmt.Sprintf("NullHandling(%d)", int(h))
	}
}

// ParseNullHandling maps a config or query value onto a mode. The empty
// string selects NullNone.
func ParseNullHandling(s string) (NullHandling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NullNone, nil
	case "linear", "linear_interpolation":
		return NullLinearInterpolation, nil
	}
	return NullNone, fmt.Errorf("unknown null handling %q (want none or linear)", s)
}

// Interpolate returns a new sequence in which every run of missing values
// in longitude, latitude, elevation, distance, heart rate, cadence and each
// extension key is filled linearly between its neighbours. A run at the
// start interpolates up from 0; a run at the end repeats the last value.
// Integer columns are rounded. Columns with no value at all stay empty.
// Timestamps are carried over unchanged.
func Interpolate(points []models.Trackpoint) []models.Trackpoint {
	out := cloneTrackpoints(points)

	floatColumn(out, func(p *models.Trackpoint) **float64 { return &p.Longitude })
	floatColumn(out, func(p *models.Trackpoint) **float64 { return &p.Latitude })
	floatColumn(out, func(p *models.Trackpoint) **float64 { return &p.Elevation })
	floatColumn(out, func(p *models.Trackpoint) **float64 { return &p.Distance })
	intColumn(out, func(p *models.Trackpoint) **int { return &p.HeartRate })
	intColumn(out, func(p *models.Trackpoint) **int { return &p.Cadence })

	for _, key := range extensionKeys(out) {
		extColumn(out, key)
	}
	return out
}

// fillRuns returns a copy of col with each maximal run of nil entries
// replaced. It returns nil when col holds no value at all.
func fillRuns(col []*float64) []*float64 {
	if !slices.ContainsFunc(col, func(v *float64) bool { return v != nil }) {
		return nil
	}

	out := slices.Clone(col)
	for i := 0; i < len(col); {
		if col[i] != nil {
			i++
			continue
		}
		start := i
		for i < len(col) && col[i] == nil {
			i++
		}
		length := i - start

		before := 0.0
		if start > 0 {
			before = *col[start-1]
		}
		after := before
		if i < len(col) {
			after = *col[i]
		}

		step := (after - before) / float64(length+1)
		for k := range length {
			v := before + step*float64(k+1)
			out[start+k] = &v
		}
	}
	return out
}

func floatColumn(points []models.Trackpoint, field func(*models.Trackpoint) **float64) {
	col := make([]*float64, len(points))
	for i := range points {
		col[i] = *field(&points[i])
	}
	filled := fillRuns(col)
	if filled == nil {
		return
	}
	for i := range points {
		*field(&points[i]) = filled[i]
	}
}

func intColumn(points []models.Trackpoint, field func(*models.Trackpoint) **int) {
	col := make([]*float64, len(points))
	for i := range points {
		if v := *field(&points[i]); v != nil {
			f := float64(*v)
			col[i] = &f
		}
	}
	filled := fillRuns(col)
	if filled == nil {
		return
	}
	for i := range points {
		p := field(&points[i])
		if *p != nil {
			continue
		}
		v := int(math.Round(*filled[i]))
		*p = &v
	}
}

func extColumn(points []models.Trackpoint, key string) {
	col := make([]*float64, len(points))
	isInt := true
	for i := range points {
		v, ok := points[i].Extensions[key]
		if !ok {
			continue
		}
		if f, valid := v.Float64(); valid {
			col[i] = &f
			if v.IsFloat {
				isInt = false
			}
		}
	}
	filled := fillRuns(col)
	if filled == nil {
		return
	}
	for i := range points {
		if col[i] != nil {
			continue
		}
		if points[i].Extensions == nil {
			points[i].Extensions = make(map[string]models.ExtValue)
		}
		if isInt {
			points[i].Extensions[key] = models.IntExt(int64(math.Round(*filled[i])))
		} else {
			points[i].Extensions[key] = models.FloatExt(*filled[i])
		}
	}
}

// extensionKeys lists every extension key in the sequence, sorted.
func extensionKeys(points []models.Trackpoint) []string {
	seen := make(map[string]struct{})
	for _, p := range points {
		for k := range p.Extensions {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
