package tcx

import (
	"errors"
	"testing"
	"time"
)

// TestParseTime verifies every accepted layout resolves to the same instant.
func TestParseTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"fractional utc", "2024-05-01T07:00:00.000Z", want},
		{"fractional utc with millis", "2024-05-01T07:00:00.250Z", want.Add(250 * time.Millisecond)},
		{"fractional offset", "2024-05-01T09:00:00.000+02:00", want},
		{"whole utc", "2024-05-01T07:00:00Z", want},
		{"whole offset", "2024-05-01T02:00:00-05:00", want},
		{"fractional offset without colon", "2024-05-01T08:00:00.123+0100", want.Add(123 * time.Millisecond)},
		{"whole offset without colon", "2024-05-01T08:00:00+0100", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTime(tt.input)
			if err != nil {
				t.Fatalf("parseTime(%q): %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestParseTimeMalformed verifies unparseable input yields ErrMalformedTimestamp.
func TestParseTimeMalformed(t *testing.T) {
	for _, input := range []string{"", "yesterday", "2024-05-01", "2024-05-01 07:00:00", "2024-13-01T07:00:00Z"} {
		_, err := parseTime(input)
		if !errors.Is(err, ErrMalformedTimestamp) {
			t.Errorf("parseTime(%q) error = %v, want ErrMalformedTimestamp", input, err)
		}
	}
}
