package tcx

import (
	"fmt"
	"log/slog"

	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/xmltree"
)

// buildTrackpoint decodes one Trackpoint element. Only Time is fatal; every
// other field that fails to parse is left nil.
func buildTrackpoint(n *xmltree.Node, log *slog.Logger) (models.Trackpoint, error) {
	var tp models.Trackpoint

	for _, c := range n.Children {
		if c.Space != nsTCX {
			continue
		}
		switch c.Name {
		case "Time":
			t, err := parseTime(c.Text)
			if err != nil {
				return models.Trackpoint{}, err
			}
			tp.Time = &t
		case "Position":
			if lat := c.Child(nsTCX, "LatitudeDegrees"); lat != nil {
				tp.Latitude = floatPtr(lat.Text)
				logDropped(log, "LatitudeDegrees", lat.Text, tp.Latitude == nil)
			}
			if lon := c.Child(nsTCX, "LongitudeDegrees"); lon != nil {
				tp.Longitude = floatPtr(lon.Text)
				logDropped(log, "LongitudeDegrees", lon.Text, tp.Longitude == nil)
			}
		case "AltitudeMeters":
			tp.Elevation = floatPtr(c.Text)
			logDropped(log, c.Name, c.Text, tp.Elevation == nil)
		case "DistanceMeters":
			tp.Distance = floatPtr(c.Text)
			logDropped(log, c.Name, c.Text, tp.Distance == nil)
		case "HeartRateBpm":
			if v := c.Child(nsTCX, "Value"); v != nil {
				tp.HeartRate = truncIntPtr(v.Text)
				logDropped(log, "HeartRateBpm", v.Text, tp.HeartRate == nil)
			}
		case "Cadence":
			tp.Cadence = truncIntPtr(c.Text)
			logDropped(log, c.Name, c.Text, tp.Cadence == nil)
		case "Extensions":
			for _, tpx := range c.Children {
				if !tpx.Is(nsExt, "TPX") {
					continue
				}
				for _, e := range tpx.Children {
					key, val := parseExtension(e)
					if tp.Extensions == nil {
						tp.Extensions = make(map[string]models.ExtValue)
					}
					tp.Extensions[key] = val
					logDropped(log, key, e.Text, !val.Valid)
				}
			}
		}
	}

	return tp, nil
}

func logDropped(log *slog.Logger, field, text string, dropped bool) {
	if dropped {
		log.Debug("unparseable field left empty", "field", field, "value", text)
	}
}

// trackpointError adds position context to a fatal trackpoint error.
func trackpointError(lap, index int, err error) error {
	return fmt.Errorf("lap %d trackpoint %d: %w", lap, index, err)
}
