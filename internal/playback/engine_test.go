package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetgrid/fleettrack/pkg/core"
)

// recordingRenderer remembers every marker update.
type recordingRenderer struct {
	mu      sync.Mutex
	indices []int
}

func (r *recordingRenderer) ShowAt(p core.TrackPoint, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indices = append(r.indices, index)
}

func (r *recordingRenderer) shown() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.indices))
	copy(out, r.indices)
	return out
}

func (r *recordingRenderer) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.indices) == 0 {
		return -1
	}
	return r.indices[len(r.indices)-1]
}

func dataset(n int) core.TrackDataset {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	points := make([]core.TrackPoint, n)
	for i := range points {
		points[i] = core.TrackPoint{
			Index:     i,
			Latitude:  float64(50 + i),
			Longitude: float64(i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return core.TrackDataset{IMEI: "860", Points: points}
}

func TestLoad_ResetsCursorAndRenders(t *testing.T) {
	r := &recordingRenderer{}
	e := New(r)

	e.Load(dataset(10))

	st := e.Snapshot()
	assert.Equal(t, 0, st.Cursor)
	assert.False(t, st.Running)
	assert.Equal(t, []int{0}, r.shown())
}

func TestLoad_ReplacementStopsPlayback(t *testing.T) {
	e := New(nil)
	e.Load(dataset(10))
	e.Play(100)
	require.True(t, e.Snapshot().Running)

	e.Load(dataset(5))
	st := e.Snapshot()
	assert.False(t, st.Running)
	assert.Equal(t, 0, st.Cursor)
	assert.Equal(t, 5, st.DatasetLen)
}

func TestSeek_Clamps(t *testing.T) {
	r := &recordingRenderer{}
	e := New(r)
	e.Load(dataset(10))

	e.Seek(-5)
	assert.Equal(t, 0, e.Snapshot().Cursor)

	e.Seek(999)
	assert.Equal(t, 9, e.Snapshot().Cursor)
	assert.Equal(t, 9, r.last())
}

func TestSeek_StopsTimer(t *testing.T) {
	e := New(nil)
	e.Load(dataset(10))
	e.Play(100)
	e.Seek(4)

	st := e.Snapshot()
	assert.False(t, st.Running)
	assert.Equal(t, 4, st.Cursor)
}

func TestToStartToEnd(t *testing.T) {
	e := New(nil)
	e.Load(dataset(7))

	e.ToEnd()
	assert.Equal(t, 6, e.Snapshot().Cursor)

	e.ToStart()
	assert.Equal(t, 0, e.Snapshot().Cursor)
}

func TestPlay_SinglePointStaysIdle(t *testing.T) {
	e := New(nil)
	e.Load(dataset(1))
	e.Play(1)
	assert.False(t, e.Snapshot().Running)

	e.Load(core.TrackDataset{})
	e.Play(1)
	assert.False(t, e.Snapshot().Running)
}

func TestPlay_AdvancesAndPausesAtEnd(t *testing.T) {
	r := &recordingRenderer{}
	e := New(r)
	e.Load(dataset(4))

	e.Play(200) // 5ms per tick

	require.Eventually(t, func() bool {
		st := e.Snapshot()
		return !st.Running && st.Cursor == 3
	}, 2*time.Second, 5*time.Millisecond, "playback should finish at the last index")

	// Cursor never skipped an index and never looped past the end.
	prev := -1
	for _, idx := range r.shown() {
		assert.LessOrEqual(t, idx, 3)
		if prev >= 0 && idx != 0 {
			assert.Equal(t, prev+1, idx, "cursor skipped")
		}
		prev = idx
	}
}

func TestPlay_AtLastIndexRewindsFirst(t *testing.T) {
	r := &recordingRenderer{}
	e := New(r)
	e.Load(dataset(10))
	e.ToEnd()
	require.Equal(t, 9, e.Snapshot().Cursor)

	e.Play(500)
	// The rewind to 0 happens synchronously inside Play.
	assert.Contains(t, r.shown(), 0)

	e.Pause()
	assert.Less(t, e.Snapshot().Cursor, 9)
}

func TestPause_RetainsCursor(t *testing.T) {
	e := New(nil)
	e.Load(dataset(100))
	e.Play(200)

	require.Eventually(t, func() bool {
		return e.Snapshot().Cursor > 0
	}, 2*time.Second, time.Millisecond)

	e.Pause()
	st := e.Snapshot()
	require.False(t, st.Running)
	cursor := st.Cursor

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, cursor, e.Snapshot().Cursor, "cursor moved while paused")
}

func TestToggle(t *testing.T) {
	e := New(nil)
	e.Load(dataset(50))

	assert.True(t, e.Toggle(10))
	assert.True(t, e.Snapshot().Running)

	assert.False(t, e.Toggle(10))
	assert.False(t, e.Snapshot().Running)
}

func TestPlay_WhileRunningIsNoop(t *testing.T) {
	e := New(nil)
	e.Load(dataset(50))
	e.Play(10)
	st := e.Snapshot()
	e.Play(99)
	assert.Equal(t, st.SpeedFactor, e.Snapshot().SpeedFactor)
	e.Pause()
}

func TestSeek_EmptyDatasetIsNoop(t *testing.T) {
	e := New(nil)
	e.Seek(3)
	assert.Equal(t, 0, e.Snapshot().Cursor)
}

// transitionLog remembers observer callbacks.
type transitionLog struct {
	mu      sync.Mutex
	actions []string
}

func (l *transitionLog) record(action string, cursor, datasetLen int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, action)
}

func (l *transitionLog) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.actions))
	copy(out, l.actions)
	return out
}

func TestObserver_SeesTransitions(t *testing.T) {
	log := &transitionLog{}
	e := New(nil)
	e.SetObserver(log.record)

	e.Load(dataset(5))
	e.Play(1)
	e.Pause()
	e.Seek(2)

	assert.Equal(t, []string{"load", "play", "pause", "seek"}, log.seen())
}

func TestObserver_EndOfTrackReportsPause(t *testing.T) {
	log := &transitionLog{}
	e := New(nil)
	e.SetObserver(log.record)
	e.Load(dataset(3))

	e.Play(200)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.Snapshot().Running {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, e.Snapshot().Running)

	seen := log.seen()
	require.NotEmpty(t, seen)
	assert.Equal(t, "pause", seen[len(seen)-1])
}

func TestObserver_RedundantPauseIsSilent(t *testing.T) {
	log := &transitionLog{}
	e := New(nil)
	e.SetObserver(log.record)
	e.Load(dataset(3))

	e.Pause()
	e.Pause()

	assert.Equal(t, []string{"load"}, log.seen())
}
