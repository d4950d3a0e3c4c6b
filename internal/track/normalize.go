// Package track retrieves and normalizes vehicle telemetry. The
// endpoints answer in at least four shapes and several field dialects;
// everything is funneled into core.TrackDataset here.
package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/fleetgrid/fleettrack/internal/dates"
	"github.com/fleetgrid/fleettrack/internal/util"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

var (
	// ErrUnrecognizedFormat means the body decoded but matched none of
	// the known payload shapes.
	ErrUnrecognizedFormat = errors.New("unrecognized track payload format")
	// ErrAPIError means the body carried an explicit error field.
	ErrAPIError = errors.New("track endpoint reported an error")
)

// shapeMatcher tries to pull the raw point list out of a decoded body.
// Matchers run in priority order; first match wins, which keeps new
// shapes a one-line addition.
type shapeMatcher struct {
	name    string
	extract func(any) ([]any, bool)
}

func wrappedList(key string) func(any) ([]any, bool) {
	return func(body any) ([]any, bool) {
		m, ok := body.(map[string]any)
		if !ok {
			return nil, false
		}
		list, ok := m[key].([]any)
		return list, ok
	}
}

var shapeMatchers = []shapeMatcher{
	{"points", wrappedList("points")},
	{"bare array", func(body any) ([]any, bool) {
		list, ok := body.([]any)
		return list, ok
	}},
	{"tracks", wrappedList("tracks")},
	{"data", wrappedList("data")},
}

// ExtractRawPoints decodes a response body and locates its point list.
func ExtractRawPoints(body []byte) ([]map[string]any, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognizedFormat, err)
	}

	if m, ok := decoded.(map[string]any); ok {
		if msg, present := m["error"]; present && msg != nil {
			return nil, fmt.Errorf("%w: %v", ErrAPIError, msg)
		}
	}

	for _, matcher := range shapeMatchers {
		list, ok := matcher.extract(decoded)
		if !ok {
			continue
		}
		raws := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				raws = append(raws, m)
			}
		}
		return raws, nil
	}

	return nil, ErrUnrecognizedFormat
}

// NormalizePoint maps one raw point onto the canonical shape using
// first-match-wins field aliasing.
func NormalizePoint(raw map[string]any) core.TrackPoint {
	p := core.TrackPoint{
		Latitude:  coord(raw, "lat", "latitude"),
		Longitude: coord(raw, "lng", "lon", "longitude"),
		Speed:     numeric(raw, 0, "speed"),
		Altitude:  numeric(raw, 0, "altitude", "alt"),
		Course:    numeric(raw, 0, "course", "heading", "direction"),
		FuelLevel: numeric(raw, 0, "fuel", "fuelLevel"),
	}
	if v, ok := util.FirstPresent(raw, "satellites", "sats"); ok {
		p.Satellites = util.AsInt(v, 0)
	}
	if v, ok := util.FirstPresent(raw, "timestamp", "time", "datetime"); ok {
		p.Timestamp = dates.Normalize(v)
	} else {
		p.Timestamp = dates.Normalize(nil)
	}
	return p
}

// coord resolves a coordinate alias. Missing or non-numeric values
// become NaN so the filtering step drops the point.
func coord(raw map[string]any, keys ...string) float64 {
	if v, ok := util.FirstPresent(raw, keys...); ok {
		return util.AsFloat(v, math.NaN())
	}
	return math.NaN()
}

func numeric(raw map[string]any, def float64, keys ...string) float64 {
	if v, ok := util.FirstPresent(raw, keys...); ok {
		return util.AsFloat(v, def)
	}
	return def
}

// BuildDataset normalizes the raw points, drops those without finite
// coordinates, sorts by timestamp (stable) and reindexes.
func BuildDataset(imei string, r core.DateRange, raws []map[string]any) core.TrackDataset {
	points := make([]core.TrackPoint, 0, len(raws))
	for _, raw := range raws {
		p := NormalizePoint(raw)
		if !p.HasValidCoordinates() {
			continue
		}
		points = append(points, p)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	for i := range points {
		points[i].Index = i
	}

	return core.TrackDataset{
		IMEI:   imei,
		Start:  r.Start,
		End:    r.End,
		Points: points,
	}
}
