package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgrid/fleettrack/internal/bus"
	"github.com/fleetgrid/fleettrack/internal/kvstore"
	"github.com/fleetgrid/fleettrack/internal/logging"
	"github.com/fleetgrid/fleettrack/internal/playback"
	"github.com/fleetgrid/fleettrack/internal/selection"
	"github.com/fleetgrid/fleettrack/internal/track"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

type nopBusLogger struct{}

func (nopBusLogger) Debug(msg string, kv ...any) {}
func (nopBusLogger) Info(msg string, kv ...any)  {}
func (nopBusLogger) Error(msg string, kv ...any) {}

func testDeps(t *testing.T) Dependencies {
	t.Helper()

	b, err := bus.New(nopBusLogger{})
	require.NoError(t, err)

	sel := selection.New(kvstore.NewMemory(), b, slog.Default())
	require.NoError(t, sel.Initialize(nil))
	t.Cleanup(sel.Close)

	engine := playback.New(playback.RendererFunc(func(core.TrackPoint, int) {}))
	t.Cleanup(engine.Pause)

	return Dependencies{
		LogManager: logging.NewSlogManager(),
		Selection:  sel,
		Engine:     engine,
		Cache:      track.NewSessionCache(nil, slog.Default()),
		StatusDir:  t.TempDir(),
		Interval:   20 * time.Millisecond,
	}
}

func TestCollect_ReflectsState(t *testing.T) {
	deps := testDeps(t)
	svc := NewService(deps)

	deps.Selection.SetVehicle(core.Vehicle{ID: "v1", Name: "Unit 7", IMEI: "359632100123456"})
	deps.Engine.Load(core.TrackDataset{
		IMEI: "359632100123456",
		Points: []core.TrackPoint{
			{Index: 0}, {Index: 1}, {Index: 2},
		},
	})

	snap := svc.Collect()
	assert.Equal(t, "v1", snap.VehicleKey)
	assert.Equal(t, "Unit 7", snap.VehicleName)
	assert.Equal(t, 3, snap.DatasetLen)
	assert.Equal(t, 0, snap.Cursor)
	assert.False(t, snap.Running)
	assert.Equal(t, 0, snap.StreamClients)
}

func TestStartStop_WritesStatusFile(t *testing.T) {
	deps := testDeps(t)
	svc := NewService(deps)

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())

	// second start is a no-op
	require.NoError(t, svc.Start())

	path := filepath.Join(deps.StatusDir, "status.json")
	deadline := time.Now().Add(2 * time.Second)
	var data []byte
	for time.Now().Before(deadline) {
		data, _ = os.ReadFile(path)
		if len(data) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, data, "status file never written")

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.False(t, snap.Time.IsZero())

	svc.Stop()
	deadline = time.Now().Add(time.Second)
	for svc.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, svc.IsRunning())
}
