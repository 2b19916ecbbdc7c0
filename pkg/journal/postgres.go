package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/psantana5/nodehost/pkg/models"
)

// PostgresJournal persists events in PostgreSQL, for hosts whose journal
// must survive the machine
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal connects to PostgreSQL using config.DSN
func NewPostgresJournal(config Config) (*PostgresJournal, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("PostgreSQL DSN is required")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	j := &PostgresJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *PostgresJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		time TIMESTAMP NOT NULL,
		type TEXT NOT NULL,
		name TEXT,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
	CREATE INDEX IF NOT EXISTS idx_events_name ON events(name);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append stores one event
func (j *PostgresJournal) Append(ev models.Event) error {
	_, err := j.db.Exec(
		`INSERT INTO events (id, time, type, name, detail) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Time, string(ev.Type), ev.Name, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first
func (j *PostgresJournal) Recent(limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(
		`SELECT id, time, type, name, detail FROM events ORDER BY time DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var typ string
		if err := rows.Scan(&ev.ID, &ev.Time, &typ, &ev.Name, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Type = models.EventType(typ)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteBefore removes events older than the cutoff
func (j *PostgresJournal) DeleteBefore(cutoff time.Time) (int, error) {
	res, err := j.db.Exec(`DELETE FROM events WHERE time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Vacuum reclaims space after deletions
func (j *PostgresJournal) Vacuum() error {
	_, err := j.db.Exec("VACUUM events")
	return err
}

// HealthCheck verifies the database is reachable
func (j *PostgresJournal) HealthCheck() error {
	return j.db.Ping()
}

// Close closes the connection pool
func (j *PostgresJournal) Close() error {
	return j.db.Close()
}
