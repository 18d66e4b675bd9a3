// Package metrics exposes Prometheus instrumentation for the LLCP engine:
// pool occupancy, procedure outcomes, and backpressure parks. Instrumentation
// is opt-in — when disabled, EngineMetrics is nil and every call site that
// records through it is a guarded no-op, matching the zero-overhead pattern
// used throughout this codebase's metrics packages.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
	enabled  bool
)

// Init creates a fresh Prometheus registry and marks metrics as enabled.
// Calling Init again replaces the registry (used by tests that want an
// isolated registry per test case).
func Init() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// Disable turns instrumentation off; subsequent NewEngineMetrics calls
// return nil.
func Disable() {
	mu.Lock()
	defer mu.Unlock()
	enabled = false
	registry = nil
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Registry returns the active Prometheus registry, or nil if disabled.
func Registry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// EngineMetrics holds the counters and gauges instrumenting one engine
// instance. All fields are safe for concurrent use (prometheus client
// types are internally synchronized); the engine itself calls these from
// its single execution context per connection (§5).
type EngineMetrics struct {
	poolFree            *prometheus.GaugeVec
	proceduresCompleted *prometheus.CounterVec
	proceduresFailed    *prometheus.CounterVec
	backpressureParks   *prometheus.CounterVec
}

// NewEngineMetrics creates Prometheus-backed EngineMetrics, or returns nil
// if metrics collection is disabled (Init was never called).
func NewEngineMetrics() *EngineMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := Registry()

	return &EngineMetrics{
		poolFree: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "llcp_pool_free",
				Help: "Free slots remaining in an engine resource pool.",
			},
			[]string{"pool"},
		),
		proceduresCompleted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llcp_procedures_completed_total",
				Help: "Procedures that reached a terminal state, by kind, role and outcome.",
			},
			[]string{"kind", "role", "outcome"},
		),
		proceduresFailed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llcp_procedures_failed_total",
				Help: "Procedures that completed with an error taxon, by kind, role and taxon.",
			},
			[]string{"kind", "role", "taxon"},
		),
		backpressureParks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "llcp_backpressure_parks_total",
				Help: "Times an FSM parked waiting for a pool buffer, by pool.",
			},
			[]string{"pool"},
		),
	}
}

// ObservePoolFree records the current free-slot count for a named pool.
func (m *EngineMetrics) ObservePoolFree(pool string, free int) {
	if m == nil {
		return
	}
	m.poolFree.WithLabelValues(pool).Set(float64(free))
}

// ObserveCompleted records a procedure reaching a terminal, non-error state.
func (m *EngineMetrics) ObserveCompleted(kind, role, outcome string) {
	if m == nil {
		return
	}
	m.proceduresCompleted.WithLabelValues(kind, role, outcome).Inc()
}

// ObserveFailed records a procedure completing with an error taxon (§7).
func (m *EngineMetrics) ObserveFailed(kind, role, taxon string) {
	if m == nil {
		return
	}
	m.proceduresFailed.WithLabelValues(kind, role, taxon).Inc()
}

// ObserveBackpressure records an FSM parking on pool exhaustion.
func (m *EngineMetrics) ObserveBackpressure(pool string) {
	if m == nil {
		return
	}
	m.backpressureParks.WithLabelValues(pool).Inc()
}
