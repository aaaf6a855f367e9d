package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus instrumentation for the engine, namespaced
// "docpipe_". A nil *Metrics is valid and a no-op, so callers that don't
// care about metrics can leave it unset.
type Metrics struct {
	activeExecutions prometheus.Gauge
	queueDepth       prometheus.Gauge
	stepLatency      *prometheus.HistogramVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers the engine's gauges and histogram with registry
// (use prometheus.DefaultRegisterer for the global registry).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		enabled: true,
		activeExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docpipe",
			Name:      "active_executions",
			Help:      "Current number of processor executions in flight across all jobs",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "docpipe",
			Name:      "queue_depth",
			Help:      "Number of payloads waiting for a semaphore slot in the current step or level",
		}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docpipe",
			Name:      "step_latency_ms",
			Help:      "Processor execution duration in milliseconds, per processor and outcome",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"processor_name", "status"}),
	}
}

// RecordStepLatency records one processor invocation's duration and
// outcome. Called from the Instrumentation Wrapper for every Execute.
func (m *Metrics) RecordStepLatency(processorName string, latency time.Duration, status Status) {
	if m == nil || !m.enabled {
		return
	}
	m.stepLatency.WithLabelValues(processorName, string(status)).Observe(float64(latency.Milliseconds()))
}

// IncActive increments the in-flight execution gauge. Pair with DecActive
// around each Execute call.
func (m *Metrics) IncActive() {
	if m == nil || !m.enabled {
		return
	}
	m.activeExecutions.Inc()
}

// DecActive decrements the in-flight execution gauge.
func (m *Metrics) DecActive() {
	if m == nil || !m.enabled {
		return
	}
	m.activeExecutions.Dec()
}

// SetQueueDepth reports how many payloads are waiting on the step's or
// level's concurrency semaphore.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil || !m.enabled {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// Disable turns off metric recording without unregistering collectors.
func (m *Metrics) Disable() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
