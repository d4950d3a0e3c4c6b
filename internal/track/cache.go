package track

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fleetgrid/fleettrack/internal/dates"
	"github.com/fleetgrid/fleettrack/internal/kvstore"
	"github.com/fleetgrid/fleettrack/pkg/core"
)

// CacheKey builds the session cache key for a (vehicle, range) pair.
// Ranges are keyed by calendar day: two fetches within the same days
// share an entry.
func CacheKey(imei string, r core.DateRange) string {
	return fmt.Sprintf("track_%s_%s_%s", imei, dates.DayString(r.Start), dates.DayString(r.End))
}

// SessionCache keeps the last successfully fetched dataset per key.
// An in-memory map serves the running session; an optional kvstore
// backing lets a remounted view recover the last track after a total
// endpoint failure.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]core.TrackDataset

	kv  kvstore.Store
	log *slog.Logger
}

// NewSessionCache creates a cache. kv may be nil for memory-only use.
func NewSessionCache(kv kvstore.Store, log *slog.Logger) *SessionCache {
	return &SessionCache{
		entries: make(map[string]core.TrackDataset),
		kv:      kv,
		log:     log,
	}
}

// Put stores a dataset under its key.
func (c *SessionCache) Put(ds core.TrackDataset) {
	key := CacheKey(ds.IMEI, core.DateRange{Start: ds.Start, End: ds.End})

	c.mu.Lock()
	c.entries[key] = ds
	c.mu.Unlock()

	if c.kv == nil {
		return
	}
	data, err := json.Marshal(ds)
	if err != nil {
		return
	}
	if err := c.kv.Set(key, data); err != nil {
		c.log.Warn("failed to persist track cache entry", "key", key, "error", err)
	}
}

// Get returns the entry for a (imei, range) pair, consulting the
// persisted backing when the in-memory map misses.
func (c *SessionCache) Get(imei string, r core.DateRange) (core.TrackDataset, bool) {
	key := CacheKey(imei, r)

	c.mu.RLock()
	ds, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return ds, true
	}

	if c.kv == nil {
		return core.TrackDataset{}, false
	}
	data, found, err := c.kv.Get(key)
	if err != nil || !found {
		return core.TrackDataset{}, false
	}
	if err := json.Unmarshal(data, &ds); err != nil {
		c.log.Warn("discarding malformed track cache entry", "key", key, "error", err)
		return core.TrackDataset{}, false
	}

	c.mu.Lock()
	c.entries[key] = ds
	c.mu.Unlock()
	return ds, true
}

// Len returns the number of in-memory entries.
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset clears the in-memory map. Persisted entries stay.
func (c *SessionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]core.TrackDataset)
}
