package host

import (
	"github.com/psantana5/nodehost/internal/sysinfo"
	"github.com/psantana5/nodehost/pkg/bond"
	"github.com/psantana5/nodehost/pkg/journal"
	"github.com/psantana5/nodehost/pkg/metrics"
	"github.com/psantana5/nodehost/pkg/plugin"
)

// Config controls host construction. The zero value is usable: worker
// count falls back to the machine default, plugins to the process-wide
// registry, the journal to the in-memory backend, and metrics stay off.
type Config struct {
	// WorkerThreads sizes the shared worker pool. Zero or less selects
	// the machine's logical CPU count.
	WorkerThreads int

	// Bond holds liveness timings for instances loaded with a liveness id
	Bond bond.Config

	// Journal selects the event journal backend
	Journal journal.Config

	// Plugins is the constructor registry consulted on load. Nil uses
	// plugin.Default.
	Plugins *plugin.Registry

	// Metrics receives load/unload/bond counters when set
	Metrics *metrics.Collector
}

// DefaultConfig returns the standard host configuration
func DefaultConfig() Config {
	return Config{
		WorkerThreads: sysinfo.DefaultWorkerCount(),
		Bond:          bond.DefaultConfig(),
		Journal:       journal.DefaultConfig(),
	}
}
