// Package parse turns user supplied strings into domain values.
package parse

import (
	"strings"
	"time"

	"downtime-backend/internal/apperr"
)

// localLayouts are accepted without a UTC offset and read in the caller's location.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Timestamp parses raw as RFC 3339, or as one of the local layouts in loc
// (UTC when loc is nil). The result is always in UTC.
func Timestamp(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, apperr.Validation("timestamp is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("invalid timestamp " + quote(s) +
		": use RFC 3339 or YYYY-MM-DD HH:MM[:SS]").WithDetails(map[string]any{"value": s})
}

// OptionalTimestamp parses a pointer to a raw timestamp; nil stays nil.
func OptionalTimestamp(raw *string, loc *time.Location) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := Timestamp(*raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func quote(s string) string {
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return `"` + s + `"`
}
