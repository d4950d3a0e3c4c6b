// Package geo converts normalized track data into the geometry shapes
// the drawing surface consumes. The surface works in EPSG:3857 (web
// mercator), telemetry arrives in EPSG:4326 (lat/lon).
package geo

import (
	"errors"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

// ErrEmptyDataset is returned when a polyline is requested for a
// dataset with fewer than two points.
var ErrEmptyDataset = errors.New("dataset has too few points for a polyline")

// Project3857 converts a 4326 coordinate pair to web mercator.
func Project3857(latitude, longitude float64) (x, y float64) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(longitude, latitude, 0)
	return x, y
}

// MarkerPoint builds the projected point for a single marker position.
func MarkerPoint(p core.TrackPoint) geom.Point {
	x, y := Project3857(p.Latitude, p.Longitude)
	return geom.NewPoint(geom.Coordinates{
		XY: geom.XY{X: x, Y: y},
		Z:  p.Altitude,
	})
}

// Polyline builds the projected track line for the drawing surface.
func Polyline(ds core.TrackDataset) (geom.LineString, error) {
	if ds.Len() < 2 {
		return geom.LineString{}, ErrEmptyDataset
	}

	flat := make([]float64, 0, ds.Len()*2)
	for _, p := range ds.Points {
		x, y := Project3857(p.Latitude, p.Longitude)
		flat = append(flat, x, y)
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// Bounds is the 4326 bounding box of a dataset, used for map fit.
type Bounds struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
}

// DatasetBounds computes the bounding box. ok is false for an empty
// dataset.
func DatasetBounds(ds core.TrackDataset) (b Bounds, ok bool) {
	if ds.Empty() {
		return Bounds{}, false
	}

	first := ds.At(0)
	b = Bounds{
		MinLat: first.Latitude, MaxLat: first.Latitude,
		MinLng: first.Longitude, MaxLng: first.Longitude,
	}
	for _, p := range ds.Points[1:] {
		if p.Latitude < b.MinLat {
			b.MinLat = p.Latitude
		}
		if p.Latitude > b.MaxLat {
			b.MaxLat = p.Latitude
		}
		if p.Longitude < b.MinLng {
			b.MinLng = p.Longitude
		}
		if p.Longitude > b.MaxLng {
			b.MaxLng = p.Longitude
		}
	}
	return b, true
}
