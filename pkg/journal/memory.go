package journal

import (
	"sync"
	"time"

	"github.com/psantana5/nodehost/pkg/models"
)

// MemoryJournal keeps events in memory, dropping the oldest once the
// configured capacity is exceeded. It is the default backend.
type MemoryJournal struct {
	mu        sync.RWMutex
	events    []models.Event
	maxEvents int
}

// NewMemoryJournal creates an in-memory journal. A capacity of zero or
// less uses the default.
func NewMemoryJournal(maxEvents int) *MemoryJournal {
	if maxEvents <= 0 {
		maxEvents = DefaultConfig().MaxEvents
	}
	return &MemoryJournal{maxEvents: maxEvents}
}

// Append stores one event
func (j *MemoryJournal) Append(ev models.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	if len(j.events) > j.maxEvents {
		j.events = j.events[len(j.events)-j.maxEvents:]
	}
	return nil
}

// Recent returns up to limit events, newest first
func (j *MemoryJournal) Recent(limit int) ([]models.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if limit <= 0 || limit > len(j.events) {
		limit = len(j.events)
	}
	out := make([]models.Event, 0, limit)
	for i := len(j.events) - 1; i >= len(j.events)-limit; i-- {
		out = append(out, j.events[i])
	}
	return out, nil
}

// DeleteBefore removes events older than the cutoff
func (j *MemoryJournal) DeleteBefore(cutoff time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.events[:0]
	deleted := 0
	for _, ev := range j.events {
		if ev.Time.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	j.events = kept
	return deleted, nil
}

// Vacuum is a no-op for the memory backend
func (j *MemoryJournal) Vacuum() error {
	return nil
}

// HealthCheck always succeeds for the memory backend
func (j *MemoryJournal) HealthCheck() error {
	return nil
}

// Close is a no-op for the memory backend
func (j *MemoryJournal) Close() error {
	return nil
}
