package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ExtValue is a vendor extension reading. Extensions carry either integer or
// floating-point literals; a literal that fails to parse is kept as an
// invalid (null) value so the key is still visible.
type ExtValue struct {
	Valid   bool
	IsFloat bool
	Int     int64
	Float   float64
}

// IntExt returns a valid integer extension value.
func IntExt(v int64) ExtValue { return ExtValue{Valid: true, Int: v} }

// FloatExt returns a valid floating-point extension value.
func FloatExt(v float64) ExtValue { return ExtValue{Valid: true, IsFloat: true, Float: v} }

// NullExt is an extension whose literal could not be parsed.
var NullExt = ExtValue{}

// Float64 returns the numeric value regardless of representation.
func (v ExtValue) Float64() (float64, bool) {
	if !v.Valid {
		return 0, false
	}
	if v.IsFloat {
		return v.Float, true
	}
	return float64(v.Int), true
}

// Add sums two values. The result is integer only when both operands are;
// a null operand yields the other operand unchanged.
func (v ExtValue) Add(o ExtValue) ExtValue {
	switch {
	case !v.Valid:
		return o
	case !o.Valid:
		return v
	case !v.IsFloat && !o.IsFloat:
		return IntExt(v.Int + o.Int)
	}
	a, _ := v.Float64()
	b, _ := o.Float64()
	return FloatExt(a + b)
}

func (v ExtValue) String() string {
	switch {
	case !v.Valid:
		return "null"
	case v.IsFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return strconv.FormatInt(v.Int, 10)
	}
}

// MarshalJSON renders null, an integer, or a float. Floats always carry a
// decimal point so the representation survives a round trip; non-finite
// floats have no JSON form and render as null.
func (v ExtValue) MarshalJSON() ([]byte, error) {
	switch {
	case !v.Valid:
		return []byte("null"), nil
	case v.IsFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return []byte("null"), nil
		}
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return []byte(s), nil
	default:
		return []byte(strconv.FormatInt(v.Int, 10)), nil
	}
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (v *ExtValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = NullExt
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		*v = IntExt(i)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("extension value %s: %w", s, err)
	}
	*v = FloatExt(f)
	return nil
}

// ExtStat is the min/max/avg of one extension key over a sequence.
type ExtStat struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Trackpoint is one sample. Every field is optional; nil means the device
// did not report it.
type Trackpoint struct {
	Time       *time.Time          `json:"time,omitempty"`
	Latitude   *float64            `json:"latitude,omitempty"`
	Longitude  *float64            `json:"longitude,omitempty"`
	Elevation  *float64            `json:"elevation,omitempty"`
	Distance   *float64            `json:"distance,omitempty"`
	HeartRate  *int                `json:"heart_rate,omitempty"`
	Cadence    *int                `json:"cadence,omitempty"`
	Extensions map[string]ExtValue `json:"extensions,omitempty"`
}

// Stats are the derived statistics shared by activities and laps.
type Stats struct {
	HRMin       *int               `json:"hr_min"`
	HRMax       *int               `json:"hr_max"`
	HRAvg       *float64           `json:"hr_avg"`
	AltitudeMin *float64           `json:"altitude_min"`
	AltitudeMax *float64           `json:"altitude_max"`
	AltitudeAvg *float64           `json:"altitude_avg"`
	CadenceMax  *int               `json:"cadence_max"`
	CadenceAvg  *float64           `json:"cadence_avg"`
	Ascent      float64            `json:"ascent"`
	Descent     float64            `json:"descent"`
	StartTime   *time.Time         `json:"start_time"`
	EndTime     *time.Time         `json:"end_time"`
	Duration    *float64           `json:"duration"`
	AvgSpeed    *float64           `json:"avg_speed"`
	MaxSpeed    *float64           `json:"max_speed"`
	ExtStats    map[string]ExtStat `json:"ext_stats"`
}

// Lap is a device-marked segment of an activity.
type Lap struct {
	Trackpoints []Trackpoint        `json:"trackpoints"`
	Calories    int                 `json:"calories"`
	Distance    float64             `json:"distance"`
	LX          map[string]ExtValue `json:"lx"`
	Stats
}

// Author identifies the recording device or software.
type Author struct {
	Name         *string `json:"name"`
	VersionMajor *int    `json:"version_major"`
	VersionMinor *int    `json:"version_minor"`
	BuildMajor   *int    `json:"build_major"`
	BuildMinor   *int    `json:"build_minor"`
}

// Version formats the author version as major.minor.buildMajor.buildMinor,
// with missing components as 0. Returns "" when no component is present.
func (a *Author) Version() string {
	if a == nil || (a.VersionMajor == nil && a.VersionMinor == nil && a.BuildMajor == nil && a.BuildMinor == nil) {
		return ""
	}
	part := func(p *int) string {
		if p == nil {
			return "0"
		}
		return strconv.Itoa(*p)
	}
	return part(a.VersionMajor) + "." + part(a.VersionMinor) + "." + part(a.BuildMajor) + "." + part(a.BuildMinor)
}

// Activity is a fully decoded activity file.
type Activity struct {
	ID          string              `json:"id,omitempty"`
	Sport       string              `json:"sport"`
	Trackpoints []Trackpoint        `json:"trackpoints"`
	Laps        []Lap               `json:"laps"`
	Calories    int                 `json:"calories"`
	Distance    float64             `json:"distance"`
	Author      *Author             `json:"author"`
	LX          map[string]ExtValue `json:"lx"`
	Stats
}
