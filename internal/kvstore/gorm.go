package kvstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// entry is the persisted row. Revision is a store-wide counter used by
// the poll loop to pick up writes made by other processes.
type entry struct {
	Key       string `gorm:"primaryKey;size:255"`
	Value     datatypes.JSON
	Revision  int64 `gorm:"index"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "fleettrack_kv" }

// DefaultPollInterval is how often database-backed stores look for
// writes from other processes.
const DefaultPollInterval = 250 * time.Millisecond

// gormStore implements Store over any GORM dialect. External writes are
// surfaced through a revision poll loop; local writes are fanned out
// immediately as well, so both delivery paths of the selection layer
// stay exercised exactly as they would be against a browser store.
type gormStore struct {
	db   *gorm.DB
	log  zerolog.Logger
	poll time.Duration

	mu       sync.Mutex
	watchers []chan Change
	lastSeen int64
	closed   bool
	stop     chan struct{}
}

func newGormStore(db *gorm.DB, log zerolog.Logger, poll time.Duration) (*gormStore, error) {
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("kvstore migration failed: %w", err)
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	s := &gormStore{
		db:   db,
		log:  log,
		poll: poll,
		stop: make(chan struct{}),
	}
	// Start from the current head so old rows are not replayed.
	var head int64
	if err := db.Model(&entry{}).Select("COALESCE(MAX(revision), 0)").Scan(&head).Error; err != nil {
		return nil, fmt.Errorf("kvstore head query failed: %w", err)
	}
	s.lastSeen = head
	go s.pollLoop()
	return s, nil
}

func (s *gormStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, false, ErrClosed
	}

	var e entry
	err := s.db.First(&e, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kvstore get %q: %w", key, err)
	}
	return []byte(e.Value), true, nil
}

func (s *gormStore) Set(key string, value []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	var rev int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entry{}).Select("COALESCE(MAX(revision), 0)").Scan(&rev).Error; err != nil {
			return err
		}
		rev++
		e := entry{Key: key, Value: datatypes.JSON(value), Revision: rev, UpdatedAt: time.Now()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).Create(&e).Error
	})
	if err != nil {
		return fmt.Errorf("kvstore set %q: %w", key, err)
	}

	s.mu.Lock()
	// The poll loop must not re-deliver what we fan out here.
	if rev > s.lastSeen {
		s.lastSeen = rev
	}
	s.notifyLocked(Change{Key: key, Value: value, At: time.Now()})
	s.mu.Unlock()
	return nil
}

func (s *gormStore) Delete(key string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	if err := s.db.Delete(&entry{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("kvstore delete %q: %w", key, err)
	}
	s.mu.Lock()
	s.notifyLocked(Change{Key: key, Value: nil, At: time.Now()})
	s.mu.Unlock()
	return nil
}

func (s *gormStore) Watch() <-chan Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Change, watchBuffer)
	if s.closed {
		close(ch)
		return ch
	}
	s.watchers = append(s.watchers, ch)
	return ch
}

func (s *gormStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}

func (s *gormStore) notifyLocked(c Change) {
	for _, ch := range s.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}

// pollLoop surfaces writes committed by other processes.
func (s *gormStore) pollLoop() {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.pollOnce()
		}
	}
}

func (s *gormStore) pollOnce() {
	s.mu.Lock()
	since := s.lastSeen
	s.mu.Unlock()

	var rows []entry
	err := s.db.Where("revision > ?", since).Order("revision asc").Find(&rows).Error
	if err != nil {
		s.log.Warn().Err(err).Msg("kvstore poll failed")
		return
	}
	if len(rows) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, e := range rows {
		if e.Revision <= s.lastSeen {
			continue
		}
		s.lastSeen = e.Revision
		s.notifyLocked(Change{Key: e.Key, Value: []byte(e.Value), At: e.UpdatedAt})
	}
}
