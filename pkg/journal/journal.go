package journal

import (
	"errors"
	"time"

	"github.com/psantana5/nodehost/pkg/models"
)

var ErrUnsupportedBackend = errors.New("unsupported journal backend")

// Journal is the append-only record of host activity: loads, unloads,
// failures, bond events. All implementations are safe for concurrent use.
type Journal interface {
	// Append stores one event
	Append(ev models.Event) error

	// Recent returns up to limit events, newest first. A non-positive
	// limit falls back to a backend default.
	Recent(limit int) ([]models.Event, error)

	// DeleteBefore removes events older than the cutoff, returning the
	// number deleted
	DeleteBefore(cutoff time.Time) (int, error)

	// Lifecycle
	Vacuum() error
	HealthCheck() error
	Close() error
}

// Config selects and parameterizes a journal backend
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	Path string // sqlite database file
	DSN  string // postgres connection string

	// PostgreSQL connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Memory backend capacity (events kept before the oldest are dropped)
	MaxEvents int
}

// DefaultConfig returns an in-memory journal configuration
func DefaultConfig() Config {
	return Config{
		Type:      "memory",
		MaxEvents: 1000,
	}
}

// New creates a journal from configuration
func New(config Config) (Journal, error) {
	switch config.Type {
	case "postgres", "postgresql":
		return NewPostgresJournal(config)
	case "sqlite":
		path := config.Path
		if path == "" {
			path = "nodehost.db"
		}
		return NewSQLiteJournal(path)
	case "memory", "":
		return NewMemoryJournal(config.MaxEvents), nil
	default:
		return nil, ErrUnsupportedBackend
	}
}
