package tcx

import (
	"math"
	"strconv"
	"strings"

	"github.com/meltforce/tcxstat/internal/models"
	"github.com/meltforce/tcxstat/internal/xmltree"
)

// parseExtension decodes one TPX or LX child. The key is the local tag name;
// the literal is read as a float when it contains a decimal point and as an
// integer otherwise. Unparseable literals keep the key with a null value.
func parseExtension(n *xmltree.Node) (string, models.ExtValue) {
	text := n.Text
	if strings.Contains(text, ".") {
		f, ok := parseFloat(text)
		if !ok {
			return n.Name, models.NullExt
		}
		return n.Name, models.FloatExt(f)
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return n.Name, models.NullExt
	}
	return n.Name, models.IntExt(i)
}

// parseFloat parses a finite float. NaN and infinities are treated as
// unparseable since they poison every aggregate they touch.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// floatPtr parses s into a *float64, nil on failure.
func floatPtr(s string) *float64 {
	f, ok := parseFloat(s)
	if !ok {
		return nil
	}
	return &f
}

// truncIntPtr parses s as a float and truncates toward zero, nil on failure.
func truncIntPtr(s string) *int {
	f, ok := parseFloat(s)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

// intPtr parses s as a base-10 integer, nil on failure.
func intPtr(s string) *int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &i
}

// isAggregateTag reports whether an LX tag already holds an aggregate
// (average, maximum, minimum) rather than a summable quantity.
func isAggregateTag(name string) bool {
	return strings.Contains(name, "Avg") ||
		strings.Contains(name, "Average") ||
		strings.Contains(name, "Max") ||
		strings.Contains(name, "Min")
}
