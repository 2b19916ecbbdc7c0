package shutdown

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager runs registered shutdown hooks in reverse registration order
// (LIFO) once a termination signal arrives
type Manager struct {
	mu      sync.Mutex
	hooks   []hook
	timeout time.Duration
}

// New creates a shutdown manager with a per-run timeout budget
func New(timeout time.Duration) *Manager {
	return &Manager{timeout: timeout}
}

// Register adds a named shutdown hook. Hooks run LIFO so resources stop
// in the reverse order they were started.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Wait blocks until SIGINT or SIGTERM is received, then runs the hooks
func (m *Manager) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.Printf("[Shutdown] Received signal: %v", sig)
	m.Shutdown()
}

// Shutdown executes all registered hooks in LIFO order under one timeout
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.hooks) - 1; i >= 0; i-- {
		h := m.hooks[i]
		if err := h.fn(ctx); err != nil {
			log.Printf("[Shutdown] %s: %v", h.name, err)
		}
	}
	log.Printf("[Shutdown] Graceful shutdown complete")
}

// CloseResource wraps an io.Closer as a shutdown hook
func CloseResource(name string, closer interface{ Close() error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}
