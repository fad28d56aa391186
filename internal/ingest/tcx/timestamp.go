package tcx

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedTimestamp is returned when a trackpoint Time matches none of
// the accepted layouts. It aborts the whole decode.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// timeLayouts are tried in order: fractional seconds in UTC, fractional
// seconds with an explicit offset, whole seconds in UTC, whole seconds with
// an explicit offset. Offsets may be written with or without the colon.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05-0700",
}

// parseTime returns the instant for a trackpoint Time literal.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}
