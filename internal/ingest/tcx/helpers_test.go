package tcx

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/xmltree"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

func ptrTime(sec int) *time.Time {
	t := baseTime.Add(time.Duration(sec) * time.Second)
	return &t
}

var baseTime = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// mustNode parses an XML fragment whose root declares the TCX and
// extension namespaces.
func mustNode(t *testing.T, xml string) *xmltree.Node {
	t.Helper()
	n, err := xmltree.Parse(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	return n
}

// wrap turns an element body into a namespaced element.
func wrap(tag, body string) string {
	return fmt.Sprintf(`<%s xmlns="%s" xmlns:ns3="%s">%s</%s>`, tag, nsTCX, nsExt, body, tag)
}

// tp renders a trackpoint at baseTime+sec. Empty strings omit the field.
func tp(sec int, lon, alt, dist, hr string) string {
	var b strings.Builder
	b.WriteString("<Trackpoint>")
	fmt.Fprintf(&b, "<Time>%s</Time>", baseTime.Add(time.Duration(sec)*time.Second).Format(time.RFC3339))
	if lon != "" {
		fmt.Fprintf(&b, "<Position><LatitudeDegrees>46.0</LatitudeDegrees><LongitudeDegrees>%s</LongitudeDegrees></Position>", lon)
	}
	if alt != "" {
		fmt.Fprintf(&b, "<AltitudeMeters>%s</AltitudeMeters>", alt)
	}
	if dist != "" {
		fmt.Fprintf(&b, "<DistanceMeters>%s</DistanceMeters>", dist)
	}
	if hr != "" {
		fmt.Fprintf(&b, "<HeartRateBpm><Value>%s</Value></HeartRateBpm>", hr)
	}
	b.WriteString("</Trackpoint>")
	return b.String()
}

// lapXML renders a lap with the given distance and trackpoints.
func lapXML(distance string, points ...string) string {
	return "<Lap><DistanceMeters>" + distance + "</DistanceMeters><Track>" + strings.Join(points, "") + "</Track></Lap>"
}

// activityDoc renders a full document with one Running activity.
func activityDoc(laps ...string) string {
	return wrap("TrainingCenterDatabase",
		`<Activities><Activity Sport="Running"><Id>2024-05-01T07:00:00Z</Id>`+strings.Join(laps, "")+`</Activity></Activities>`)
}

// seq builds an in-memory trackpoint sequence with one point per second.
func seq(n int, fill func(i int, p *models.Trackpoint)) []models.Trackpoint {
	out := make([]models.Trackpoint, n)
	for i := range out {
		out[i].Time = ptrTime(i)
		out[i].Longitude = ptrFloat(14.0)
		fill(i, &out[i])
	}
	return out
}
