package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolStats is the worker pool view the collector samples at scrape time
type PoolStats interface {
	Workers() int
	Depth() int
	InFlight() int
	TasksExecuted() uint64
}

// Collector registers and updates the host's Prometheus metrics
type Collector struct {
	reg       prometheus.Registerer
	startTime time.Time

	instances    prometheus.Gauge
	activeBonds  prometheus.Gauge
	loadsTotal   *prometheus.CounterVec
	unloadsTotal *prometheus.CounterVec
	bondBreaks   prometheus.Counter
}

// NewCollector creates a collector and registers its metrics. Passing nil
// uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		reg:       reg,
		startTime: time.Now(),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nodehost_instances",
			Help: "Number of currently loaded plugin instances",
		}),
		activeBonds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nodehost_active_bonds",
			Help: "Number of active liveness bonds",
		}),
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodehost_loads_total",
			Help: "Load requests by result",
		}, []string{"result"}),
		unloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nodehost_unloads_total",
			Help: "Unload requests by result",
		}, []string{"result"}),
		bondBreaks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nodehost_bond_breaks_total",
			Help: "Liveness bonds broken by peer loss",
		}),
	}

	reg.MustRegister(c.instances, c.activeBonds, c.loadsTotal, c.unloadsTotal, c.bondBreaks)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "nodehost_uptime_seconds",
		Help: "Time since the host started",
	}, func() float64 {
		return time.Since(c.startTime).Seconds()
	}))

	return c
}

// ObservePool registers scrape-time gauges backed by the worker pool
func (c *Collector) ObservePool(pool PoolStats) {
	c.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nodehost_worker_threads",
			Help: "Size of the shared worker pool",
		}, func() float64 { return float64(pool.Workers()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nodehost_queue_depth",
			Help: "Pending tasks across all instance queues",
		}, func() float64 { return float64(pool.Depth()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nodehost_tasks_in_flight",
			Help: "Tasks currently executing on the pool",
		}, func() float64 { return float64(pool.InFlight()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "nodehost_tasks_executed_total",
			Help: "Tasks executed since the host started",
		}, func() float64 { return float64(pool.TasksExecuted()) }),
	)
}

// RecordLoad counts a load request by result ("success" or "error")
func (c *Collector) RecordLoad(result string) {
	c.loadsTotal.WithLabelValues(result).Inc()
}

// RecordUnload counts an unload request by result ("success" or "error")
func (c *Collector) RecordUnload(result string) {
	c.unloadsTotal.WithLabelValues(result).Inc()
}

// RecordBondBreak counts a liveness-triggered unload
func (c *Collector) RecordBondBreak() {
	c.bondBreaks.Inc()
}

// SetInstances updates the loaded instance gauge
func (c *Collector) SetInstances(n int) {
	c.instances.Set(float64(n))
}

// SetActiveBonds updates the active bond gauge
func (c *Collector) SetActiveBonds(n int) {
	c.activeBonds.Set(float64(n))
}

// Handler returns the Prometheus scrape handler for the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
