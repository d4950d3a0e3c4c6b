package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

func testRange() core.DateRange {
	return core.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestExtractRawPoints_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"points wrapper", `{"points":[{"lat":1},{"lat":2}]}`, 2},
		{"bare array", `[{"lat":1}]`, 1},
		{"tracks wrapper", `{"tracks":[{"lat":1},{"lat":2},{"lat":3}]}`, 3},
		{"data wrapper", `{"data":[{"lat":1}]}`, 1},
		{"empty points", `{"points":[]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raws, err := ExtractRawPoints([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, raws, tt.want)
		})
	}
}

func TestExtractRawPoints_PriorityOrder(t *testing.T) {
	// points beats tracks and data when several are present
	raws, err := ExtractRawPoints([]byte(`{"points":[{"lat":1}],"tracks":[{"lat":1},{"lat":2}],"data":[]}`))
	require.NoError(t, err)
	assert.Len(t, raws, 1)
}

func TestExtractRawPoints_APIError(t *testing.T) {
	_, err := ExtractRawPoints([]byte(`{"error":"imei unknown"}`))
	assert.ErrorIs(t, err, ErrAPIError)
}

func TestExtractRawPoints_UnrecognizedFormat(t *testing.T) {
	_, err := ExtractRawPoints([]byte(`{"results":[]}`))
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)

	_, err = ExtractRawPoints([]byte(`not json`))
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)

	_, err = ExtractRawPoints([]byte(`42`))
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestNormalizePoint_Aliases(t *testing.T) {
	raw := map[string]any{
		"latitude":  55.75,
		"lon":       37.61,
		"time":      "2024-01-01T12:00:00Z",
		"speed":     "42.5",
		"alt":       float64(150),
		"heading":   float64(270),
		"sats":      float64(9),
		"fuelLevel": float64(80),
	}
	p := NormalizePoint(raw)

	assert.Equal(t, 55.75, p.Latitude)
	assert.Equal(t, 37.61, p.Longitude)
	assert.True(t, p.Timestamp.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 42.5, p.Speed)
	assert.Equal(t, 150.0, p.Altitude)
	assert.Equal(t, 270.0, p.Course)
	assert.Equal(t, 9, p.Satellites)
	assert.Equal(t, 80.0, p.FuelLevel)
}

func TestNormalizePoint_FirstAliasWins(t *testing.T) {
	raw := map[string]any{"lat": 1.0, "latitude": 2.0, "lng": 3.0, "longitude": 4.0}
	p := NormalizePoint(raw)
	assert.Equal(t, 1.0, p.Latitude)
	assert.Equal(t, 3.0, p.Longitude)
}

func TestNormalizePoint_Defaults(t *testing.T) {
	p := NormalizePoint(map[string]any{"lat": 1.0, "lng": 2.0, "timestamp": float64(1704067200000)})
	assert.Zero(t, p.Speed)
	assert.Zero(t, p.Altitude)
	assert.Zero(t, p.Course)
	assert.Zero(t, p.Satellites)
	assert.Zero(t, p.FuelLevel)
}

func TestBuildDataset_FiltersAndSorts(t *testing.T) {
	// 5 raw points, 2 with unusable coordinates: dataset must hold
	// exactly 3, ascending by timestamp, reindexed.
	raws := []map[string]any{
		{"lat": 1.0, "lng": 1.0, "timestamp": "2024-01-01T12:00:00Z"},
		{"lng": 2.0, "timestamp": "2024-01-01T10:00:00Z"},            // no latitude
		{"lat": 3.0, "lng": 3.0, "timestamp": "2024-01-01T08:00:00Z"},
		{"lat": "bogus", "lng": 4.0, "timestamp": "2024-01-01T09:00:00Z"}, // unparseable latitude
		{"lat": 5.0, "lng": 5.0, "timestamp": "2024-01-01T10:00:00Z"},
	}

	ds := BuildDataset("860", testRange(), raws)

	require.Equal(t, 3, ds.Len())
	for i := 0; i < ds.Len()-1; i++ {
		assert.False(t, ds.Points[i].Timestamp.After(ds.Points[i+1].Timestamp),
			"points out of order at %d", i)
	}
	for i, p := range ds.Points {
		assert.Equal(t, i, p.Index)
	}
	assert.Equal(t, 3.0, ds.Points[0].Latitude)
}

func TestBuildDataset_AllInvalidEqualsEmpty(t *testing.T) {
	raws := []map[string]any{
		{"timestamp": "2024-01-01T08:00:00Z"},
		{"lat": "x", "lng": "y"},
	}
	ds := BuildDataset("860", testRange(), raws)
	assert.True(t, ds.Empty())
}

func TestCacheKey(t *testing.T) {
	key := CacheKey("860123", testRange())
	assert.Equal(t, "track_860123_2024-01-01_2024-01-02", key)
}
