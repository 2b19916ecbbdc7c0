package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/nodehost/internal/sysinfo"
	"github.com/psantana5/nodehost/pkg/bond"
	"github.com/psantana5/nodehost/pkg/journal"
	"github.com/psantana5/nodehost/pkg/metrics"
	"github.com/psantana5/nodehost/pkg/models"
	"github.com/psantana5/nodehost/pkg/plugin"
	"github.com/psantana5/nodehost/pkg/queue"
)

var (
	// ErrDuplicateName reports a load under a name already in use
	ErrDuplicateName = errors.New("instance name already in use")

	// ErrNotFound reports an operation on a name with no loaded instance
	ErrNotFound = errors.New("instance not found")

	// ErrShuttingDown reports an operation arriving after shutdown began
	ErrShuttingDown = errors.New("host is shutting down")
)

// Service is an outward-facing surface attached to the loader, such as an
// RPC server. Services are stopped in the first shutdown stage, before the
// worker pool and the instances go away.
type Service interface {
	Shutdown(ctx context.Context) error
}

type namedService struct {
	name string
	svc  Service
}

type entry struct {
	name       string
	typeName   string
	instance   plugin.Plugin
	stQueue    *queue.Queue
	mtQueue    *queue.Queue
	bondID     string
	remappings map[string]string
	args       []string
	loadedAt   time.Time
}

// Loader owns every plugin instance in the process: it instantiates them
// through the constructor registry, gives each one a pair of task queues
// on the shared worker pool, guards remotely-managed instances with
// liveness bonds and tears everything down in a fixed order on Close.
//
// The registry mutex is held for the entire duration of each control
// operation, including instance initialization and teardown, so loads and
// unloads are strictly serialized. Plugin code must therefore never call
// a control operation synchronously from Init, Stop or a queued task;
// unload waits for running tasks to finish and would deadlock.
type Loader struct {
	cfg     Config
	plugins *plugin.Registry
	journal journal.Journal
	metrics *metrics.Collector
	monitor *bond.Monitor

	startTime time.Time
	state     atomic.Int32
	closeOnce sync.Once

	mu      sync.Mutex
	entries map[string]*entry

	poolMu sync.RWMutex
	pool   *queue.Pool

	svcMu    sync.Mutex
	services []namedService
}

// New builds a loader. The journal, the worker pool and the liveness
// monitor are started immediately.
func New(cfg Config) (*Loader, error) {
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = sysinfo.DefaultWorkerCount()
	}
	if cfg.Plugins == nil {
		cfg.Plugins = plugin.Default
	}

	j, err := journal.New(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	l := &Loader{
		cfg:       cfg,
		plugins:   cfg.Plugins,
		journal:   j,
		metrics:   cfg.Metrics,
		startTime: time.Now(),
		entries:   make(map[string]*entry),
	}
	l.pool = queue.NewPool(cfg.WorkerThreads)
	l.monitor = bond.NewMonitor(cfg.Bond, l.onBondBroken)

	jt := cfg.Journal.Type
	if jt == "" {
		jt = "memory"
	}
	log.Printf("[Host] Loader ready (%d workers, %s journal)", cfg.WorkerThreads, jt)
	return l, nil
}

// Load instantiates a plugin of the given type under a unique name. The
// entry becomes visible in the registry before initialization completes.
// When a liveness id is given, the bond is registered during the load but
// its clock starts only after the load has succeeded and the registry
// lock has been released.
func (l *Loader) Load(name, typeName string, remappings map[string]string, args []string, livenessID string) error {
	l.mu.Lock()
	err := l.loadLocked(name, typeName, remappings, args, livenessID)
	count := len(l.entries)
	l.mu.Unlock()

	if err != nil {
		l.record(models.EventLoadFailed, name, err.Error())
		if l.metrics != nil {
			l.metrics.RecordLoad("error")
		}
		return err
	}

	if livenessID != "" {
		l.monitor.Start(livenessID)
		if l.metrics != nil {
			l.metrics.SetActiveBonds(l.monitor.Active())
		}
	}
	l.record(models.EventLoaded, name, typeName)
	if l.metrics != nil {
		l.metrics.RecordLoad("success")
		l.metrics.SetInstances(count)
	}
	log.Printf("[Host] Loaded instance %s (type %s)", name, typeName)
	return nil
}

func (l *Loader) loadLocked(name, typeName string, remappings map[string]string, args []string, livenessID string) error {
	if l.State() != Running {
		return ErrShuttingDown
	}
	if name == "" {
		return errors.New("instance name must not be empty")
	}
	if _, dup := l.entries[name]; dup {
		return fmt.Errorf("instance %s: %w", name, ErrDuplicateName)
	}

	inst, err := l.plugins.Create(typeName)
	if err != nil {
		return err
	}

	pool := l.getPool()
	e := &entry{
		name:       name,
		typeName:   typeName,
		instance:   inst,
		stQueue:    pool.NewQueue(false),
		mtQueue:    pool.NewQueue(true),
		remappings: remappings,
		args:       args,
		loadedAt:   time.Now().UTC(),
	}
	l.entries[name] = e

	if livenessID != "" {
		if err := l.monitor.Register(livenessID, name); err != nil {
			l.rollbackLocked(e)
			return fmt.Errorf("liveness id %s: %w", livenessID, err)
		}
		e.bondID = livenessID
	}

	if err := initInstance(inst, plugin.InitContext{
		Name:       name,
		Remappings: remappings,
		Args:       args,
		Queue:      e.stQueue,
		WorkQueue:  e.mtQueue,
	}); err != nil {
		l.rollbackLocked(e)
		return fmt.Errorf("instance %s (type %s): %w", name, typeName, err)
	}
	return nil
}

// rollbackLocked undoes a failed load: queues drained and unregistered,
// bond dropped, entry removed. The instance's Stop is not called because
// Init never succeeded.
func (l *Loader) rollbackLocked(e *entry) {
	pool := l.getPool()
	pool.Remove(e.stQueue)
	pool.Remove(e.mtQueue)
	if e.bondID != "" {
		l.monitor.Remove(e.bondID)
	}
	delete(l.entries, e.name)
}

// Unload stops and removes a named instance. Pending tasks are discarded,
// a task mid-execution finishes first, and Stop runs only once both
// queues are quiet.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	if l.State() != Running {
		l.mu.Unlock()
		return ErrShuttingDown
	}
	e, ok := l.entries[name]
	if !ok {
		l.mu.Unlock()
		if l.metrics != nil {
			l.metrics.RecordUnload("error")
		}
		return fmt.Errorf("instance %s: %w", name, ErrNotFound)
	}
	l.teardownLocked(e)
	count := len(l.entries)
	l.mu.Unlock()

	if e.bondID != "" {
		l.monitor.Remove(e.bondID)
		if l.metrics != nil {
			l.metrics.SetActiveBonds(l.monitor.Active())
		}
	}
	l.record(models.EventUnloaded, name, e.typeName)
	if l.metrics != nil {
		l.metrics.RecordUnload("success")
		l.metrics.SetInstances(count)
	}
	log.Printf("[Host] Unloaded instance %s", name)
	return nil
}

// teardownLocked removes one instance: intake stops, both queues drain,
// Stop runs, then the entry disappears from the registry.
func (l *Loader) teardownLocked(e *entry) {
	pool := l.getPool()
	pool.Remove(e.stQueue)
	pool.Remove(e.mtQueue)
	stopInstance(e)
	delete(l.entries, e.name)
}

// Clear unloads every instance. Each one goes through the same
// stop-drain-remove sequence as Unload; the registry is empty afterwards.
func (l *Loader) Clear() {
	l.mu.Lock()
	if l.State() != Running {
		l.mu.Unlock()
		return
	}
	removed := l.clearLocked()
	l.mu.Unlock()

	for _, e := range removed {
		if e.bondID != "" {
			l.monitor.Remove(e.bondID)
		}
	}
	if len(removed) > 0 {
		l.record(models.EventCleared, "", fmt.Sprintf("%d instances", len(removed)))
		if l.metrics != nil {
			l.metrics.SetInstances(0)
			l.metrics.SetActiveBonds(l.monitor.Active())
		}
		log.Printf("[Host] Cleared %d instances", len(removed))
	}
}

func (l *Loader) clearLocked() []*entry {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	removed := make([]*entry, 0, len(names))
	for _, name := range names {
		e := l.entries[name]
		l.teardownLocked(e)
		removed = append(removed, e)
	}
	return removed
}

// List returns the loaded instance names, sorted. It shares the registry
// lock with Load and Unload, so a list issued during a slow load reports
// the registry as that load left it.
func (l *Loader) List() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instances returns a snapshot of every loaded instance, sorted by name
func (l *Loader) Instances() []models.InstanceInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	infos := make([]models.InstanceInfo, 0, len(l.entries))
	for _, e := range l.entries {
		infos = append(infos, instanceInfo(e))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Instance returns the snapshot of one loaded instance
func (l *Loader) Instance(name string) (models.InstanceInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		return models.InstanceInfo{}, fmt.Errorf("instance %s: %w", name, ErrNotFound)
	}
	return instanceInfo(e), nil
}

func instanceInfo(e *entry) models.InstanceInfo {
	return models.InstanceInfo{
		Name:       e.name,
		Type:       e.typeName,
		LoadedAt:   e.loadedAt,
		BondID:     e.bondID,
		Remappings: e.remappings,
		Args:       e.args,
		QueueDepth: e.stQueue.Len() + e.mtQueue.Len(),
	}
}

// Heartbeat refreshes a liveness bond on behalf of a remote peer. The
// first heartbeat forms the bond and is journaled.
func (l *Loader) Heartbeat(id string) error {
	formed, err := l.monitor.Heartbeat(id)
	if err != nil {
		return err
	}
	if formed {
		if name, ok := l.monitor.Name(id); ok {
			l.record(models.EventBondFormed, name, "bond "+id)
		}
	}
	return nil
}

// Events returns recent journal events, newest first
func (l *Loader) Events(limit int) ([]models.Event, error) {
	return l.journal.Recent(limit)
}

// Journal exposes the event journal for retention management. The
// journal is closed by Close; stop anything using it before then.
func (l *Loader) Journal() journal.Journal {
	return l.journal
}

// Status reports the host's lifecycle phase and current load
func (l *Loader) Status() models.StatusResponse {
	l.mu.Lock()
	instances := len(l.entries)
	l.mu.Unlock()

	return models.StatusResponse{
		State:         l.State().String(),
		UptimeSeconds: int64(time.Since(l.startTime).Seconds()),
		WorkerThreads: l.Workers(),
		Instances:     instances,
		ActiveBonds:   l.monitor.Active(),
		QueueDepth:    l.Depth(),
		TasksInFlight: l.InFlight(),
		System:        sysinfo.Snapshot(),
	}
}

// State returns the lifecycle phase
func (l *Loader) State() State {
	return State(l.state.Load())
}

// Workers returns the worker pool size, zero once the pool is released
func (l *Loader) Workers() int {
	if p := l.getPool(); p != nil {
		return p.Workers()
	}
	return 0
}

// Depth returns the total number of pending tasks across all queues
func (l *Loader) Depth() int {
	if p := l.getPool(); p != nil {
		return p.Depth()
	}
	return 0
}

// InFlight returns the number of tasks currently executing
func (l *Loader) InFlight() int {
	if p := l.getPool(); p != nil {
		return p.InFlight()
	}
	return 0
}

// TasksExecuted returns the total number of tasks run since start
func (l *Loader) TasksExecuted() uint64 {
	if p := l.getPool(); p != nil {
		return p.TasksExecuted()
	}
	return 0
}

// AttachService registers an outward-facing surface for teardown in the
// first shutdown stage. Services stop in reverse attach order.
func (l *Loader) AttachService(name string, svc Service) {
	l.svcMu.Lock()
	defer l.svcMu.Unlock()
	l.services = append(l.services, namedService{name: name, svc: svc})
}

// Close runs the shutdown sequence. The stages are strictly ordered and
// the machine never moves backwards: attached services stop first so no
// new control request arrives and no liveness callback fires, then the
// worker pool stops so no instance code is executing, then instances are
// stopped and cleared, then the pool reference is dropped. Close is
// idempotent; calls after the first return immediately.
func (l *Loader) Close() error {
	l.closeOnce.Do(l.shutdown)
	return nil
}

func (l *Loader) shutdown() {
	log.Printf("[Host] Shutdown started")

	l.svcMu.Lock()
	services := l.services
	l.services = nil
	l.svcMu.Unlock()
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.svc.Shutdown(ctx); err != nil {
			log.Printf("[Host] Service %s shutdown: %v", s.name, err)
		}
		cancel()
	}
	l.monitor.Stop()
	l.setState(ServicesStopped)

	l.getPool().Stop()
	l.setState(WorkersStopped)

	l.mu.Lock()
	cleared := len(l.clearLocked())
	l.mu.Unlock()
	if cleared > 0 {
		log.Printf("[Host] Stopped %d instances", cleared)
	}
	if l.metrics != nil {
		l.metrics.SetInstances(0)
		l.metrics.SetActiveBonds(0)
	}
	l.setState(InstancesCleared)

	l.poolMu.Lock()
	l.pool = nil
	l.poolMu.Unlock()
	l.setState(PoolReleased)

	l.setState(Terminated)
	if err := l.journal.Close(); err != nil {
		log.Printf("[Host] Journal close: %v", err)
	}
	log.Printf("[Host] Shutdown complete")
}

func (l *Loader) setState(s State) {
	l.state.Store(int32(s))
	log.Printf("[Host] State -> %s", s)
}

func (l *Loader) getPool() *queue.Pool {
	l.poolMu.RLock()
	defer l.poolMu.RUnlock()
	return l.pool
}

// onBondBroken runs on the monitor's dispatch goroutine, outside every
// host lock, so it may take the registry lock like any other caller. A
// name already gone just means an explicit unload won the race.
func (l *Loader) onBondBroken(id, name string) {
	log.Printf("[Host] Bond %s broken, unloading instance %s", id, name)
	l.record(models.EventBondBroken, name, "bond "+id)
	if l.metrics != nil {
		l.metrics.RecordBondBreak()
		l.metrics.SetActiveBonds(l.monitor.Active())
	}
	if err := l.Unload(name); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrShuttingDown) {
			return
		}
		log.Printf("[Host] Unload after bond break failed for %s: %v", name, err)
	}
}

func (l *Loader) record(evType models.EventType, name, detail string) {
	ev := models.Event{
		ID:     uuid.New().String(),
		Time:   time.Now().UTC(),
		Type:   evType,
		Name:   name,
		Detail: detail,
	}
	if err := l.journal.Append(ev); err != nil {
		log.Printf("[Host] Journal append failed: %v", err)
	}
}

// initInstance shields the host from a panicking Init
func initInstance(p plugin.Plugin, ctx plugin.InitContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("init panicked: %v", r)
		}
	}()
	return p.Init(ctx)
}

// stopInstance shields the host from a panicking Stop
func stopInstance(e *entry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Host] Instance %s panicked during stop: %v", e.name, r)
		}
	}()
	e.instance.Stop()
}
