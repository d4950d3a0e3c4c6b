// Package kvstore provides the origin-scoped persisted key-value store
// shared by every open dashboard view. It is treated as an
// eventually-consistent store with single-key read/write atomicity and
// no further transactional guarantee.
package kvstore

import (
	"errors"
	"time"
)

// ErrClosed is returned from operations on a closed store.
var ErrClosed = errors.New("kvstore: store is closed")

// Change describes a single key write observed by the store.
// Watch deliveries are not ordered relative to local writes; consumers
// are expected to deduplicate by provenance and recency, not ordering.
type Change struct {
	Key   string
	Value []byte
	At    time.Time
}

// Store is the persistence backend interface. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value for key & whether it exists.
	Get(key string) ([]byte, bool, error)
	// Set writes value under key, replacing any previous value.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Watch returns a channel delivering writes to the store,
	// including this handle's own (the two delivery paths of a
	// browser's storage layer collapse into one here; echo
	// suppression lives with the consumer). The channel closes when
	// the store closes.
	Watch() <-chan Change
	Close() error
}
