package kvstore

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSqlite opens (creating if needed) a file-backed store. This is the
// default backend for a single-host dashboard; every view on the host
// shares the file the way browser tabs share origin storage.
func NewSqlite(path string, log zerolog.Logger, poll time.Duration) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store %q: %w", path, err)
	}
	return newGormStore(db, log, poll)
}
