package cleanup

import (
	"context"
	"log"
	"sync"
	"time"
)

// Config defines journal retention policy and maintenance intervals
type Config struct {
	Enabled         bool
	RetentionDays   int
	CleanupInterval time.Duration
	VacuumInterval  time.Duration
}

// DefaultConfig returns sensible defaults for journal retention
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RetentionDays:   7,
		CleanupInterval: 24 * time.Hour,
		VacuumInterval:  7 * 24 * time.Hour,
	}
}

// Journal is the subset of journal operations the manager needs
type Journal interface {
	DeleteBefore(cutoff time.Time) (int, error)
	Vacuum() error
}

// Stats tracks cleanup operations
type Stats struct {
	LastCleanupTime     time.Time
	LastVacuumTime      time.Time
	TotalEventsDeleted  int64
	TotalVacuumRuns     int64
	LastCleanupDuration time.Duration
}

// Manager prunes old journal events and periodically vacuums the backend
type Manager struct {
	config  Config
	journal Journal
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// NewManager creates a cleanup manager for a journal
func NewManager(config Config, journal Journal) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		journal: journal,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the periodic cleanup and vacuum loops
func (m *Manager) Start() {
	if !m.config.Enabled {
		log.Println("[Cleanup] Cleanup manager disabled")
		return
	}

	log.Printf("[Cleanup] Starting cleanup manager (retention: %d days, interval: %v)",
		m.config.RetentionDays, m.config.CleanupInterval)

	m.wg.Add(2)
	go m.cleanupLoop()
	go m.vacuumLoop()
}

// Stop gracefully stops the cleanup manager
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	log.Println("[Cleanup] Cleanup manager stopped")
}

// GetStats returns a copy of the current cleanup statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.pruneOldEvents()
		}
	}
}

func (m *Manager) vacuumLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.VacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.runVacuum()
		}
	}
}

func (m *Manager) pruneOldEvents() {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -m.config.RetentionDays)

	deleted, err := m.journal.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("[Cleanup] Failed to prune events: %v", err)
		return
	}

	m.mu.Lock()
	m.stats.LastCleanupTime = start
	m.stats.LastCleanupDuration = time.Since(start)
	m.stats.TotalEventsDeleted += int64(deleted)
	m.mu.Unlock()

	if deleted > 0 {
		log.Printf("[Cleanup] Pruned %d events older than %v (took %v)",
			deleted, cutoff.Format(time.RFC3339), time.Since(start))
	}
}

func (m *Manager) runVacuum() {
	start := time.Now()
	if err := m.journal.Vacuum(); err != nil {
		log.Printf("[Cleanup] Vacuum failed: %v", err)
		return
	}

	m.mu.Lock()
	m.stats.LastVacuumTime = start
	m.stats.TotalVacuumRuns++
	m.mu.Unlock()

	log.Printf("[Cleanup] Vacuum completed in %v", time.Since(start))
}
