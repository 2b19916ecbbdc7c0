package bond

import (
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrUnknownBond   = errors.New("unknown bond id")
	ErrDuplicateBond = errors.New("bond id already registered")
)

// Config holds liveness timing parameters
type Config struct {
	ConnectTimeout   time.Duration // deadline for the first heartbeat after Start
	HeartbeatTimeout time.Duration // maximum gap between heartbeats once formed
	CheckInterval    time.Duration // scan period
}

// DefaultConfig returns the standard bond timings
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   10 * time.Second,
		HeartbeatTimeout: 4 * time.Second,
		CheckInterval:    time.Second,
	}
}

// BrokenFunc is invoked from the monitor's dispatch goroutine when a peer
// is judged unreachable. It runs outside all monitor locks, so it may call
// back into the host (typically to unload the guarded instance).
type BrokenFunc func(id, name string)

type bondState struct {
	name          string
	started       bool
	startedAt     time.Time
	formed        bool
	lastHeartbeat time.Time
}

type brokenEvent struct {
	id   string
	name string
}

// Monitor tracks liveness bonds between the host and remote peers. Peers
// refresh their bond with Heartbeat; a bond whose peer misses its deadline
// is removed and reported through the broken callback. Broken events are
// dispatched from a single dedicated goroutine so detection is never
// starved by instance workload.
type Monitor struct {
	cfg      Config
	onBroken BrokenFunc

	mu    sync.Mutex
	bonds map[string]*bondState

	events chan brokenEvent
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor starts a monitor with its scan and dispatch goroutines
func NewMonitor(cfg Config, onBroken BrokenFunc) *Monitor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultConfig().HeartbeatTimeout
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	m := &Monitor{
		cfg:      cfg,
		onBroken: onBroken,
		bonds:    make(map[string]*bondState),
		events:   make(chan brokenEvent, 16),
		stopCh:   make(chan struct{}),
	}
	m.wg.Add(2)
	go m.scanLoop()
	go m.dispatchLoop()
	return m
}

// Register creates an inactive bond guarding the named instance. The
// clock only starts ticking once Start is called.
func (m *Monitor) Register(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.bonds[id]; dup {
		return ErrDuplicateBond
	}
	m.bonds[id] = &bondState{name: name}
	return nil
}

// Start arms a registered bond. The peer must heartbeat within the
// connect timeout from this moment.
func (m *Monitor) Start(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bonds[id]
	if !ok {
		return
	}
	b.started = true
	b.startedAt = time.Now()
}

// Heartbeat refreshes a bond and reports whether this heartbeat formed
// it. Unknown or already-broken ids fail, which tells the peer its bond
// is gone.
func (m *Monitor) Heartbeat(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bonds[id]
	if !ok {
		return false, ErrUnknownBond
	}
	first := !b.formed
	if first {
		b.formed = true
		log.Printf("[Bond] Bond %s formed (instance %s)", id, b.name)
	}
	b.lastHeartbeat = time.Now()
	return first, nil
}

// Remove drops a bond without firing the broken callback. Used when the
// guarded instance is unloaded explicitly.
func (m *Monitor) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bonds, id)
}

// Name returns the instance name guarded by a bond
func (m *Monitor) Name(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bonds[id]
	if !ok {
		return "", false
	}
	return b.name, true
}

// Active returns the number of tracked bonds
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bonds)
}

// Stop halts the scan and dispatch goroutines. No broken callbacks fire
// after Stop returns.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) scanLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkDeadlines()
		case <-m.stopCh:
			return
		}
	}
}

// checkDeadlines removes every bond past its deadline and queues a broken
// event for each. Events are queued outside the lock so a slow callback
// cannot block Heartbeat.
func (m *Monitor) checkDeadlines() {
	now := time.Now()
	var broken []brokenEvent

	m.mu.Lock()
	for id, b := range m.bonds {
		if !b.started {
			continue
		}
		if !b.formed {
			if now.Sub(b.startedAt) > m.cfg.ConnectTimeout {
				log.Printf("[Bond] Bond %s never formed (instance %s), connect timeout after %v",
					id, b.name, m.cfg.ConnectTimeout)
				broken = append(broken, brokenEvent{id: id, name: b.name})
				delete(m.bonds, id)
			}
			continue
		}
		if now.Sub(b.lastHeartbeat) > m.cfg.HeartbeatTimeout {
			log.Printf("[Bond] Bond %s broken (instance %s), last heartbeat %v ago",
				id, b.name, now.Sub(b.lastHeartbeat).Round(time.Millisecond))
			broken = append(broken, brokenEvent{id: id, name: b.name})
			delete(m.bonds, id)
		}
	}
	m.mu.Unlock()

	for _, ev := range broken {
		select {
		case m.events <- ev:
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) dispatchLoop() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.events:
			if m.onBroken != nil {
				m.onBroken(ev.id, ev.name)
			}
		case <-m.stopCh:
			return
		}
	}
}
