package kvstore

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgres opens a Postgres-backed store for deployments where the
// selection state is shared across hosts, not just across views on one
// host.
func NewPostgres(dsn string, log zerolog.Logger, poll time.Duration) (Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate postgres connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	return newGormStore(db, log, poll)
}
