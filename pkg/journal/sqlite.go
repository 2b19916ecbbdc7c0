package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/nodehost/pkg/models"
)

// SQLiteJournal persists events in a local SQLite database
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database at path
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	// Connection parameters for concurrent access:
	// - _journal_mode=WAL: write-ahead logging for better concurrency
	// - _busy_timeout=10000: wait up to 10 seconds when the database is locked
	// - _synchronous=NORMAL: balance between safety and performance
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY under concurrent appends
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		time DATETIME NOT NULL,
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
func (j *SQLiteJournal) Append(ev models.Event) error {
	_, err := j.db.Exec(
		`INSERT INTO events (id, time, type, name, detail) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Time, string(ev.Type), ev.Name, ev.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first
func (j *SQLiteJournal) Recent(limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(
		`SELECT id, time, type, name, detail FROM events ORDER BY time DESC, id DESC LIMIT ?`,
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
func (j *SQLiteJournal) DeleteBefore(cutoff time.Time) (int, error) {
	res, err := j.db.Exec(`DELETE FROM events WHERE time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Vacuum reclaims space after deletions
func (j *SQLiteJournal) Vacuum() error {
	_, err := j.db.Exec("VACUUM")
	return err
}

// HealthCheck verifies the database is reachable
func (j *SQLiteJournal) HealthCheck() error {
	return j.db.Ping()
}

// Close closes the database
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
