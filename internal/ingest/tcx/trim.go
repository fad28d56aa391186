package tcx

import (
	"maps"

	"github.com/meltforce/tcxstat/internal/models"
)

// TrimGPS returns the trackpoints that carry a longitude, in order.
// Applying it to an already trimmed sequence returns an equal sequence.
func TrimGPS(points []models.Trackpoint) []models.Trackpoint {
	out := make([]models.Trackpoint, 0, len(points))
	for _, p := range points {
		if p.Longitude != nil {
			out = append(out, p)
		}
	}
	return out
}

// cloneTrackpoints copies a sequence so that the copy owns its extension
// maps. Scalar pointers are never written after decode and stay shared.
func cloneTrackpoints(points []models.Trackpoint) []models.Trackpoint {
	out := make([]models.Trackpoint, len(points))
	for i, p := range points {
		out[i] = p
		out[i].Extensions = maps.Clone(p.Extensions)
	}
	return out
}
