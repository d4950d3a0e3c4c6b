package geo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

func testDataset() core.TrackDataset {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return core.TrackDataset{
		IMEI: "860",
		Points: []core.TrackPoint{
			{Index: 0, Latitude: 55.75, Longitude: 37.61, Timestamp: base},
			{Index: 1, Latitude: 55.76, Longitude: 37.63, Timestamp: base.Add(time.Minute)},
			{Index: 2, Latitude: 55.74, Longitude: 37.60, Timestamp: base.Add(2 * time.Minute)},
		},
	}
}

func TestProject3857_Origin(t *testing.T) {
	x, y := Project3857(0, 0)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)
}

func TestProject3857_KnownPoint(t *testing.T) {
	// Greenwich meridian at the equator east by one degree:
	// 1° of longitude ≈ 111319.49 m in web mercator.
	x, _ := Project3857(0, 1)
	assert.InDelta(t, 111319.49, x, 1.0)
}

func TestPolyline(t *testing.T) {
	ls, err := Polyline(testDataset())
	require.NoError(t, err)

	seq := ls.Coordinates()
	assert.Equal(t, 3, seq.Length())

	// Projected coordinates are meters, far from the raw degrees.
	xy := seq.GetXY(0)
	assert.Greater(t, math.Abs(xy.X), 1e6)
}

func TestPolyline_TooFewPoints(t *testing.T) {
	ds := core.TrackDataset{Points: []core.TrackPoint{{Latitude: 1, Longitude: 1}}}
	_, err := Polyline(ds)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestDatasetBounds(t *testing.T) {
	b, ok := DatasetBounds(testDataset())
	require.True(t, ok)
	assert.Equal(t, 55.74, b.MinLat)
	assert.Equal(t, 55.76, b.MaxLat)
	assert.Equal(t, 37.60, b.MinLng)
	assert.Equal(t, 37.63, b.MaxLng)
}

func TestDatasetBounds_Empty(t *testing.T) {
	_, ok := DatasetBounds(core.TrackDataset{})
	assert.False(t, ok)
}
