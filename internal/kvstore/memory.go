package kvstore

import (
	"sync"
	"time"
)

const watchBuffer = 64

// Memory is an in-process Store. It backs tests and single-view runs
// where nothing needs to survive a restart.
type Memory struct {
	mu       sync.Mutex
	values   map[string][]byte
	watchers []chan Change
	closed   bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	m.notifyLocked(Change{Key: key, Value: cp, At: time.Now()})
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.values[key]; !ok {
		return nil
	}
	delete(m.values, key)
	m.notifyLocked(Change{Key: key, Value: nil, At: time.Now()})
	return nil
}

func (m *Memory) Watch() <-chan Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Change, watchBuffer)
	if m.closed {
		close(ch)
		return ch
	}
	m.watchers = append(m.watchers, ch)
	return ch
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, ch := range m.watchers {
		close(ch)
	}
	m.watchers = nil
	return nil
}

// notifyLocked fans the change out to all watchers. A watcher that has
// fallen behind loses the oldest-style delivery rather than blocking
// the writer.
func (m *Memory) notifyLocked(c Change) {
	for _, ch := range m.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}
