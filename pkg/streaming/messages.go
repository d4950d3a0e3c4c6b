package streaming

import (
	"encoding/json"
	"time"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

// Message type constants for the live dashboard stream.
const (
	TypeTrack     = "track"
	TypeMarker    = "marker"
	TypeSelection = "selection"
	TypeFit       = "fit"
	TypeStatus    = "status"
	TypeClear     = "clear"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TrackPayload carries a freshly loaded track for rendering. Polyline
// is the EPSG:3857 projection of the dataset's points, in order, ready
// for the drawing surface; it is omitted when the dataset has fewer
// than two points.
type TrackPayload struct {
	Dataset  core.TrackDataset `json:"dataset"`
	Polyline [][2]float64      `json:"polyline,omitempty"`
}

// FitPayload tells remote views which bounding box to fit.
type FitPayload struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// MarkerPayload carries the current playback marker position together
// with the popup fields shown next to it. X and Y are the EPSG:3857
// projection of the coordinate.
type MarkerPayload struct {
	Index     int       `json:"index"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
	Speed     float64   `json:"speed"`
	Altitude  float64   `json:"altitude"`
	Course    float64   `json:"course"`
	FuelLevel float64   `json:"fuelLevel"`
}

// SelectionPayload mirrors the shared selection state for remote views.
type SelectionPayload struct {
	Vehicle   *core.Vehicle   `json:"vehicle"`
	DateRange *core.DateRange `json:"dateRange"`
	SplitMode core.SplitMode  `json:"splitMode"`
}
