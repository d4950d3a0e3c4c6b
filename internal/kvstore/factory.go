// internal/kvstore/factory.go
package kvstore

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config selects and configures a store backend.
type Config struct {
	Backend      string // "memory", "sqlite" or "postgres"
	Path         string // sqlite file path
	DSN          string // postgres connection string
	PollInterval time.Duration
}

// New creates a store backend based on configuration.
func New(cfg Config, log zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite":
		return NewSqlite(cfg.Path, log, cfg.PollInterval)
	case "postgres":
		return NewPostgres(cfg.DSN, log, cfg.PollInterval)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}
