// Package dates normalizes the heterogeneous date representations that
// arrive from the endpoints, the persisted store and caller-supplied
// values into a single usable instant.
//
// Normalization is deliberately fail-open: a date that cannot be parsed
// becomes "now" with a logged warning, never an error. A broken date
// must never take the map down.
package dates

import (
	"log/slog"
	"time"
)

// maxEpochMillis is the upper bound of sane epoch input (+275760-09-13,
// the ECMAScript time range). Numbers outside [0, maxEpochMillis] fall
// through to the default.
const maxEpochMillis = 8.64e15

// epochSecondsCutoff separates unix seconds from unix milliseconds.
// Anything below it (~5138-11-16 in millis) is treated as seconds; the
// fallback endpoint reports seconds, the primary one milliseconds.
const epochSecondsCutoff = 1e11

// Tolerance is the comparison slack absorbing serialization rounding.
const Tolerance = time.Second

// textLayouts are tried in order; first successful parse wins.
var textLayouts = []string{
	"02.01.2006",
	"02/01/2006",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize converts input into a valid instant. It is a total
// function: whatever comes in, a usable time comes out.
func Normalize(input any) time.Time {
	switch v := input.(type) {
	case time.Time:
		if v.IsZero() {
			break
		}
		return v
	case *time.Time:
		if v == nil || v.IsZero() {
			break
		}
		return *v
	case string:
		if t, ok := parseText(v); ok {
			return t
		}
	case float64:
		if t, ok := fromEpoch(v); ok {
			return t
		}
	case int64:
		if t, ok := fromEpoch(float64(v)); ok {
			return t
		}
	case int:
		if t, ok := fromEpoch(float64(v)); ok {
			return t
		}
	}

	slog.Warn("unparseable date, substituting current time", "input", input)
	return time.Now()
}

func parseText(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range textLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromEpoch(v float64) (time.Time, bool) {
	if v < 0 || v > maxEpochMillis {
		return time.Time{}, false
	}
	if v < epochSecondsCutoff {
		return time.Unix(int64(v), 0), true
	}
	return time.UnixMilli(int64(v)), true
}

// SerializeISO renders t for the persisted store and the primary
// endpoint query parameters.
func SerializeISO(t time.Time) string {
	return t.Format(time.RFC3339)
}

// DayString renders the calendar day used in cache keys and the
// fallback endpoint query parameters.
func DayString(t time.Time) string {
	return t.Format("2006-01-02")
}

// TruncateToMidnight drops the time-of-day component in local time.
// The persisted range start is stored this way.
func TruncateToMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WithinTolerance reports whether a and b are within Tolerance of each
// other. Used everywhere two instants from different channels are
// compared.
func WithinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= Tolerance
}
