package tcx

import (
	"math"

	"github.com/meltforce/tcxstat/internal/models"
)

// msToKmh converts metres per second to kilometres per hour.
const msToKmh = 3.6

// Aggregate computes statistics for one trackpoint sequence. distance is the
// lap-recorded distance for the sequence and feeds the average speed. With
// onlyGPS the sequence is trimmed first; the (possibly trimmed) sequence is
// returned alongside the statistics.
//
// Temporal and speed fields are only set for sequences of more than two
// trackpoints.
func Aggregate(points []models.Trackpoint, distance float64, onlyGPS bool) ([]models.Trackpoint, models.Stats) {
	if onlyGPS {
		points = TrimGPS(points)
	}

	var s models.Stats

	var hr, cadence []int
	var altitude []float64
	for _, p := range points {
		if p.HeartRate != nil {
			hr = append(hr, *p.HeartRate)
		}
		if p.Elevation != nil {
			altitude = append(altitude, *p.Elevation)
		}
		if p.Cadence != nil {
			cadence = append(cadence, *p.Cadence)
		}
	}

	if len(hr) > 0 {
		lo, hi, avg := intSummary(hr)
		s.HRMin, s.HRMax, s.HRAvg = &lo, &hi, &avg
	}
	if len(altitude) > 0 {
		lo, hi, avg := floatSummary(altitude)
		s.AltitudeMin, s.AltitudeMax, s.AltitudeAvg = &lo, &hi, &avg
	}
	if len(cadence) > 0 {
		_, hi, avg := intSummary(cadence)
		s.CadenceMax, s.CadenceAvg = &hi, &avg
	}

	s.Ascent, s.Descent = climb(altitude)
	s.ExtStats = extensionStats(points)

	if len(points) > 2 {
		temporal(points, distance, &s)
	}
	return points, s
}

// climb sums positive and negative altitude changes between consecutive
// present samples. Equal neighbours contribute to neither.
func climb(altitude []float64) (ascent, descent float64) {
	for i := 1; i < len(altitude); i++ {
		switch d := altitude[i] - altitude[i-1]; {
		case d > 0:
			ascent += d
		case d < 0:
			descent -= d
		}
	}
	return ascent, descent
}

type extAccumulator struct {
	min, max, sum float64
	n             int
}

// extensionStats returns min/max/avg per extension key over valid values.
// Keys that never carry a valid value are omitted.
func extensionStats(points []models.Trackpoint) map[string]models.ExtStat {
	acc := make(map[string]*extAccumulator)
	for _, p := range points {
		for key, v := range p.Extensions {
			f, ok := v.Float64()
			if !ok {
				continue
			}
			a, seen := acc[key]
			if !seen {
				acc[key] = &extAccumulator{min: f, max: f, sum: f, n: 1}
				continue
			}
			a.min = math.Min(a.min, f)
			a.max = math.Max(a.max, f)
			a.sum += f
			a.n++
		}
	}

	out := make(map[string]models.ExtStat, len(acc))
	for key, a := range acc {
		out[key] = models.ExtStat{Min: a.min, Max: a.max, Avg: a.sum / float64(a.n)}
	}
	return out
}

// temporal fills start, end, duration and speeds. Average speed is the
// recorded distance over the elapsed time; maximum speed is the fastest
// consecutive pair, skipping pairs without distance or time and pairs with
// no elapsed time.
func temporal(points []models.Trackpoint, distance float64, s *models.Stats) {
	first, last := points[0].Time, points[len(points)-1].Time
	s.StartTime, s.EndTime = first, last

	if first != nil && last != nil {
		duration := math.Abs(last.Sub(*first).Seconds())
		avg := 0.0
		if duration > 0 {
			avg = distance / duration * msToKmh
		}
		s.Duration, s.AvgSpeed = &duration, &avg
	}

	maxSpeed := 0.0
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if prev.Time == nil || cur.Time == nil || prev.Distance == nil || cur.Distance == nil {
			continue
		}
		dt := math.Abs(cur.Time.Sub(*prev.Time).Seconds())
		if dt == 0 {
			continue
		}
		speed := math.Abs(*cur.Distance-*prev.Distance) / dt * msToKmh
		if speed > maxSpeed {
			maxSpeed = speed
		}
	}
	s.MaxSpeed = &maxSpeed
}

func intSummary(vals []int) (lo, hi int, avg float64) {
	lo, hi = vals[0], vals[0]
	sum := 0
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}
	return lo, hi, float64(sum) / float64(len(vals))
}

func floatSummary(vals []float64) (lo, hi, avg float64) {
	lo, hi = vals[0], vals[0]
	sum := 0.0
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += v
	}
	return lo, hi, sum / float64(len(vals))
}
