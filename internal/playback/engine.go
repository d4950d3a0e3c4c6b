// Package playback animates a cursor along a time-sorted track.
//
// The engine is a pure state machine (cursor, speed, running) driving a
// cooperative timer goroutine. Rendering is a side effect behind the
// Renderer interface, so the machine tests without a drawing surface.
// The renderer is always invoked synchronously with the cursor change:
// there is no observable state where cursor and marker disagree.
package playback

import (
	"sync"
	"time"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

// DefaultSpeedFactor plays one point per second.
const DefaultSpeedFactor = 1.0

// Renderer receives the marker position for the current cursor.
// ShowAt runs under the engine lock and must not call back into the
// engine.
type Renderer interface {
	ShowAt(point core.TrackPoint, index int)
}

// RendererFunc adapts a plain function to Renderer.
type RendererFunc func(point core.TrackPoint, index int)

// ShowAt implements Renderer.
func (f RendererFunc) ShowAt(point core.TrackPoint, index int) { f(point, index) }

// Observer receives playback transitions (load, play, pause, seek)
// for measurement. Like the renderer it runs under the engine lock and
// must not call back into the engine.
type Observer func(action string, cursor, datasetLen int)

// Engine owns the playback cursor and timer for one dataset at a time.
type Engine struct {
	mu       sync.Mutex
	dataset  core.TrackDataset
	cursor   int
	speed    float64
	running  bool
	stopCh   chan struct{}
	renderer Renderer
	observer Observer
}

// New creates an engine rendering through r. r may be nil; rendering is
// then skipped but cursor mechanics stay intact.
func New(r Renderer) *Engine {
	return &Engine{
		speed:    DefaultSpeedFactor,
		renderer: r,
	}
}

// SetObserver registers the transition callback. fn may be nil.
func (e *Engine) SetObserver(fn Observer) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

// Load replaces the dataset, stops any running timer and resets the
// cursor to the first point.
func (e *Engine) Load(ds core.TrackDataset) {
	e.mu.Lock()
	e.stopTimerLocked()
	e.dataset = ds
	e.cursor = 0
	if !ds.Empty() {
		e.renderLocked()
	}
	e.observeLocked("load")
	e.mu.Unlock()
}

// Play starts the timer at the given speed factor. A playable dataset
// needs at least two points. Starting from the last point rewinds to
// the beginning first; reaching the last point pauses (no looping).
func (e *Engine) Play(speedFactor float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running || e.dataset.Len() < 2 {
		return
	}
	if speedFactor > 0 {
		e.speed = speedFactor
	}
	if e.cursor >= e.dataset.Len()-1 {
		e.cursor = 0
		e.renderLocked()
	}

	e.running = true
	e.stopCh = make(chan struct{})
	e.observeLocked("play")
	go e.run(e.stopCh, time.Duration(float64(time.Second)/e.speed))
}

// Pause stops the timer; the cursor stays where it is.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.running {
		e.stopTimerLocked()
		e.observeLocked("pause")
	}
	e.mu.Unlock()
}

// Toggle plays if paused and pauses if playing, returning the resulting
// running state.
func (e *Engine) Toggle(speedFactor float64) bool {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	if running {
		e.Pause()
		return false
	}
	e.Play(speedFactor)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Seek moves the cursor to index, clamped to the dataset bounds, stops
// the timer and renders immediately.
func (e *Engine) Seek(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dataset.Empty() {
		return
	}
	e.stopTimerLocked()
	if index < 0 {
		index = 0
	}
	if index > e.dataset.Len()-1 {
		index = e.dataset.Len() - 1
	}
	e.cursor = index
	e.renderLocked()
	e.observeLocked("seek")
}

// ToStart seeks to the first point.
func (e *Engine) ToStart() { e.Seek(0) }

// ToEnd seeks to the last point.
func (e *Engine) ToEnd() {
	e.mu.Lock()
	last := e.dataset.Len() - 1
	e.mu.Unlock()
	e.Seek(last)
}

// Snapshot returns the current playback state.
func (e *Engine) Snapshot() core.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return core.PlaybackState{
		DatasetLen:  e.dataset.Len(),
		Cursor:      e.cursor,
		SpeedFactor: e.speed,
		Running:     e.running,
	}
}

// run is the timer loop. Each tick advances the cursor by one and
// renders; ticks are serialized by the engine mutex.
func (e *Engine) run(stop chan struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !e.tick(stop) {
				return
			}
		}
	}
}

// tick advances one step. Returns false when the loop should exit.
func (e *Engine) tick(stop chan struct{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A Pause/Seek/Load raced with this tick; its stop channel is
	// already closed and a stale advance must not land.
	if !e.running || e.stopCh != stop {
		return false
	}

	if e.cursor >= e.dataset.Len()-1 {
		e.stopTimerLocked()
		e.observeLocked("pause")
		return false
	}

	e.cursor++
	e.renderLocked()

	if e.cursor >= e.dataset.Len()-1 {
		e.stopTimerLocked()
		e.observeLocked("pause")
		return false
	}
	return true
}

func (e *Engine) stopTimerLocked() {
	if e.running {
		close(e.stopCh)
		e.running = false
	}
	e.stopCh = nil
}

func (e *Engine) observeLocked(action string) {
	if e.observer != nil {
		e.observer(action, e.cursor, e.dataset.Len())
	}
}

func (e *Engine) renderLocked() {
	if e.renderer == nil || e.dataset.Empty() {
		return
	}
	e.renderer.ShowAt(e.dataset.At(e.cursor), e.cursor)
}
