package stream

import (
	"log/slog"

	"github.com/fleetgrid/fleettrack/internal/geo"
	"github.com/fleetgrid/fleettrack/pkg/core"
	"github.com/fleetgrid/fleettrack/pkg/streaming"
)

// Surface renders the map state by broadcasting it to connected
// clients. It satisfies the controller's display contract.
type Surface struct {
	hub    *Hub
	logger *slog.Logger
}

// NewSurface wraps the hub as a rendering target.
func NewSurface(hub *Hub, logger *slog.Logger) *Surface {
	return &Surface{hub: hub, logger: logger}
}

// SetTrack pushes the full dataset to every client, with the web
// mercator polyline precomputed so clients draw without reprojecting.
func (s *Surface) SetTrack(ds core.TrackDataset) {
	payload := streaming.TrackPayload{Dataset: ds}
	if line, err := geo.Polyline(ds); err == nil {
		seq := line.Coordinates()
		payload.Polyline = make([][2]float64, seq.Length())
		for i := 0; i < seq.Length(); i++ {
			xy := seq.GetXY(i)
			payload.Polyline[i] = [2]float64{xy.X, xy.Y}
		}
	}
	if err := s.hub.Broadcast(streaming.TypeTrack, payload); err != nil {
		s.logger.Warn("broadcast track", "error", err)
	}
}

// SetMarker pushes the playback cursor position.
func (s *Surface) SetMarker(pt core.TrackPoint, index int) {
	marker := geo.MarkerPoint(pt)
	xy, _ := marker.XY()
	payload := streaming.MarkerPayload{
		Index:     index,
		Latitude:  pt.Latitude,
		Longitude: pt.Longitude,
		X:         xy.X,
		Y:         xy.Y,
		Timestamp: pt.Timestamp,
		Speed:     pt.Speed,
		Altitude:  pt.Altitude,
		Course:    pt.Course,
		FuelLevel: pt.FuelLevel,
	}
	if err := s.hub.Broadcast(streaming.TypeMarker, payload); err != nil {
		s.logger.Warn("broadcast marker", "error", err)
	}
}

// FitBounds asks clients to frame the given bounding box.
func (s *Surface) FitBounds(b geo.Bounds) {
	payload := streaming.FitPayload{
		MinLat: b.MinLat,
		MinLng: b.MinLng,
		MaxLat: b.MaxLat,
		MaxLng: b.MaxLng,
	}
	if err := s.hub.Broadcast(streaming.TypeFit, payload); err != nil {
		s.logger.Warn("broadcast fit", "error", err)
	}
}

// Clear blanks the track and marker on every client.
func (s *Surface) Clear() {
	if err := s.hub.Broadcast(streaming.TypeClear, struct{}{}); err != nil {
		s.logger.Warn("broadcast clear", "error", err)
	}
}

// PublishSelection mirrors a selection change to clients so secondary
// views stay labelled correctly.
func (s *Surface) PublishSelection(p streaming.SelectionPayload) {
	if err := s.hub.Broadcast(streaming.TypeSelection, p); err != nil {
		s.logger.Warn("broadcast selection", "error", err)
	}
}
