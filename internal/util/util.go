// Package util provides small coercion helpers shared across the
// normalization paths. Endpoint payloads are loosely typed: numbers
// arrive as JSON numbers or as quoted strings depending on the backend
// revision, so everything funnels through these.
package util

import "strconv"

// AsFloat coerces a decoded JSON value to float64. Returns the default
// when the value is absent or not numeric.
func AsFloat(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// AsInt coerces a decoded JSON value to int, truncating floats.
func AsInt(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// AsString coerces a decoded JSON value to string.
func AsString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// FirstPresent returns the value of the first key present in m.
// Used for first-match-wins field aliasing.
func FirstPresent(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
