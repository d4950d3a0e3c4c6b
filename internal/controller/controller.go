// Package controller wires the selection store, the track service and
// the playback engine to a drawing surface, and owns the refetch
// policy: when the selected vehicle or range genuinely changes, one
// fetch fires for the settled pair.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetgrid/fleettrack/internal/geo"
	"github.com/fleetgrid/fleettrack/internal/playback"
	"github.com/fleetgrid/fleettrack/internal/selection"
	"github.com/fleetgrid/fleettrack/internal/track"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

// MapSurface is the opaque drawing surface. Implementations render a
// polyline, a single moving marker and a viewport fit; nothing else
// leaks through.
type MapSurface interface {
	SetTrack(ds core.TrackDataset)
	SetMarker(p core.TrackPoint, index int)
	FitBounds(b geo.Bounds)
	Clear()
}

// Config tunes the refetch policy.
type Config struct {
	// DebounceDelay collapses rapid-fire selection updates into one
	// fetch per settled pair.
	DebounceDelay time.Duration
	// DefaultRangeDays sizes the range synthesized when a vehicle
	// resolves before any range exists.
	DefaultRangeDays int
}

// DefaultConfig matches the dashboard defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:    300 * time.Millisecond,
		DefaultRangeDays: 7,
	}
}

// fetchKey identifies one settled (vehicle, range) pair.
type fetchKey struct {
	vehicle core.Vehicle
	r       core.DateRange
}

func (k fetchKey) matches(st core.SelectionState) bool {
	if st.Vehicle == nil || st.DateRange == nil {
		return false
	}
	return st.Vehicle.SameIdentity(k.vehicle) && st.DateRange.Equal(k.r)
}

// Controller observes the reconciled selection state and drives the
// data path selection → fetch → playback → surface.
type Controller struct {
	sel     *selection.Store
	svc     *track.Service
	engine  *playback.Engine
	surface MapSurface
	log     *slog.Logger
	cfg     Config

	mu          sync.Mutex
	timer       *time.Timer
	seq         int
	current     core.TrackDataset
	lastFetched *fetchKey
	lastErr     error
	onError     []func(error)
	onProgress  []func(stage string, pct int)
	closed      bool
}

// New creates a controller. The playback engine is owned here and
// renders through the surface's marker.
func New(sel *selection.Store, svc *track.Service, surface MapSurface, log *slog.Logger, cfg Config) *Controller {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultConfig().DebounceDelay
	}
	if cfg.DefaultRangeDays <= 0 {
		cfg.DefaultRangeDays = DefaultConfig().DefaultRangeDays
	}

	c := &Controller{
		sel:     sel,
		svc:     svc,
		surface: surface,
		log:     log,
		cfg:     cfg,
	}
	c.engine = playback.New(playback.RendererFunc(func(p core.TrackPoint, index int) {
		surface.SetMarker(p, index)
	}))
	return c
}

// Engine exposes the playback engine for view controls.
func (c *Controller) Engine() *playback.Engine { return c.engine }

// Dataset returns the currently rendered dataset.
func (c *Controller) Dataset() core.TrackDataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// LastError returns the last surfaced fetch error, nil after a
// successful fetch.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnError registers a callback for surfaced fetch failures; the view
// shows these in its dismissible error panel.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// OnProgress registers a loading indicator callback.
func (c *Controller) OnProgress(fn func(stage string, pct int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = append(c.onProgress, fn)
}

// Start begins observing the selection store. If vehicle and range are
// already resolved at mount, the first fetch fires immediately (through
// the same debounce path).
func (c *Controller) Start() {
	c.sel.OnChange(c.onSelection)
	c.onSelection(c.sel.State())
}

// Close cancels any pending debounce timer. In-flight fetches discard
// their results on completion.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// onSelection is the reconciliation point for every settled selection
// update, regardless of which channel it arrived through.
func (c *Controller) onSelection(st core.SelectionState) {
	if st.Vehicle == nil {
		return
	}

	if st.DateRange == nil {
		// A vehicle resolved before any range: synthesize the default
		// window and persist it; the resulting change re-enters here
		// with both halves resolved.
		now := time.Now()
		c.log.Debug("synthesizing default date range", "days", c.cfg.DefaultRangeDays)
		c.sel.SetDateRange(core.DateRange{
			Start: now.AddDate(0, 0, -c.cfg.DefaultRangeDays),
			End:   now,
		})
		return
	}

	if !st.DateRange.Valid() {
		return
	}

	key := fetchKey{vehicle: *st.Vehicle, r: *st.DateRange}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.lastFetched != nil && c.lastFetched.vehicle.SameIdentity(key.vehicle) && c.lastFetched.r.Equal(key.r) {
		// Nothing that warrants a refetch changed (e.g. a split mode
		// update rode the same notification).
		return
	}
	c.scheduleLocked()
}

// scheduleLocked restarts the debounce timer. Last write wins for the
// timer; the request itself is built from the state at fire time.
func (c *Controller) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	seq := c.seq + 1
	c.seq = seq
	c.timer = time.AfterFunc(c.cfg.DebounceDelay, func() { c.fire(seq) })
}

// fire re-validates against the latest state and runs the fetch. A
// newer schedule supersedes this one; its results are discarded.
func (c *Controller) fire(seq int) {
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	st := c.sel.State()
	if st.Vehicle == nil || st.DateRange == nil || !st.DateRange.Valid() {
		return
	}
	key := fetchKey{vehicle: *st.Vehicle, r: *st.DateRange}

	ds, err := c.svc.FetchTrack(context.Background(), key.vehicle, key.r, c.reportProgress)

	// The selection may have moved on while the fetch was in flight; a
	// result for a superseded pair must not land.
	c.mu.Lock()
	if c.closed || seq != c.seq || !key.matches(c.sel.State()) {
		c.mu.Unlock()
		c.log.Debug("discarding stale fetch result", "imei", key.vehicle.IMEI)
		return
	}
	c.current = ds
	c.lastFetched = &key
	c.lastErr = err
	errCallbacks := make([]func(error), len(c.onError))
	copy(errCallbacks, c.onError)
	c.mu.Unlock()

	if err != nil {
		c.log.Error("track fetch failed on all legs", "imei", key.vehicle.IMEI, "error", err)
		for _, fn := range errCallbacks {
			fn(err)
		}
	}
	c.apply(ds)
}

// apply renders a dataset: track and viewport on the surface, cursor
// reset in the engine. An empty dataset degrades to a cleared surface
// and an idle engine.
func (c *Controller) apply(ds core.TrackDataset) {
	c.engine.Load(ds)

	if ds.Empty() {
		c.surface.Clear()
		return
	}

	c.surface.SetTrack(ds)
	if b, ok := geo.DatasetBounds(ds); ok {
		c.surface.FitBounds(b)
	}
}

func (c *Controller) reportProgress(stage string, pct int) {
	c.mu.Lock()
	callbacks := make([]func(string, int), len(c.onProgress))
	copy(callbacks, c.onProgress)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn(stage, pct)
	}
}
