package tcx

import (
	"log/slog"
	"math"

	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/xmltree"
)

// buildLap decodes one Lap element. Calories and DistanceMeters are summed
// when repeated; LX children are recorded verbatim. The caller rolls the
// lap totals into the activity and decides whether to keep the lap.
func buildLap(n *xmltree.Node, lapIndex int, log *slog.Logger) (models.Lap, error) {
	lap := models.Lap{LX: make(map[string]models.ExtValue)}

	for _, c := range n.Children {
		if c.Space != nsTCX {
			continue
		}
		switch c.Name {
		case "Calories":
			if f, ok := parseFloat(c.Text); ok {
				lap.Calories += int(math.RoundToEven(f))
			} else {
				logDropped(log, "Calories", c.Text, true)
			}
		case "DistanceMeters":
			if f, ok := parseFloat(c.Text); ok {
				lap.Distance += f
			} else {
				logDropped(log, "DistanceMeters", c.Text, true)
			}
		case "Track":
			for _, t := range c.Children {
				if !t.Is(nsTCX, "Trackpoint") {
					continue
				}
				tp, err := buildTrackpoint(t, log)
				if err != nil {
					return models.Lap{}, trackpointError(lapIndex, len(lap.Trackpoints), err)
				}
				lap.Trackpoints = append(lap.Trackpoints, tp)
			}
		case "Extensions":
			for _, lx := range c.Children {
				if !lx.Is(nsExt, "LX") {
					continue
				}
				for _, e := range lx.Children {
					key, val := parseExtension(e)
					lap.LX[key] = val
					logDropped(log, key, e.Text, !val.Valid)
				}
			}
		}
	}

	return lap, nil
}

// rollUpLX adds the lap's summable LX values into the activity totals.
// Aggregate-named tags and null values are skipped.
func rollUpLX(total, lapLX map[string]models.ExtValue) {
	for key, val := range lapLX {
		if !val.Valid || isAggregateTag(key) {
			continue
		}
		total[key] = total[key].Add(val)
	}
}
