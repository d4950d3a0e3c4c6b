// pkg/core/track.go
package core

import (
	"math"
	"time"
)

// FetchSource records which leg of the fetch chain produced a dataset.
// It is carried for metrics only and never influences rendering.
type FetchSource string

const (
	SourcePrimary  FetchSource = "primary"
	SourceFallback FetchSource = "fallback"
	SourceCache    FetchSource = "cache"
	SourceNone     FetchSource = "none"
)

// TrackPoint is one normalized telemetry sample.
type TrackPoint struct {
	Index      int       `json:"index"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
	Speed      float64   `json:"speed"`
	Altitude   float64   `json:"altitude"`
	Course     float64   `json:"course"`
	Satellites int       `json:"satellites"`
	FuelLevel  float64   `json:"fuelLevel"`
}

// HasValidCoordinates reports whether both coordinates are finite.
// Points failing this check are dropped during normalization.
func (p TrackPoint) HasValidCoordinates() bool {
	return !math.IsNaN(p.Latitude) && !math.IsInf(p.Latitude, 0) &&
		!math.IsNaN(p.Longitude) && !math.IsInf(p.Longitude, 0)
}

// TrackDataset is an ordered sequence of points for one (vehicle, range)
// pair, non-decreasing by Timestamp. Never mutated in place; a new fetch
// replaces the dataset wholesale.
type TrackDataset struct {
	IMEI   string       `json:"imei"`
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	Points []TrackPoint `json:"points"`
	Source FetchSource  `json:"-"`
}

// Len returns the number of points in the dataset.
func (d TrackDataset) Len() int { return len(d.Points) }

// Empty reports whether the dataset holds no points. An empty dataset is
// a valid outcome, not an error.
func (d TrackDataset) Empty() bool { return len(d.Points) == 0 }

// At returns the point at index i. Callers must bounds-check first.
func (d TrackDataset) At(i int) TrackPoint { return d.Points[i] }
