package pipeline

import "time"

// engineConfig collects Option values before they're applied.
type engineConfig struct {
	defaultTimeout time.Duration
	metrics        *Metrics
}

// Option configures a Runner at construction time.
type Option func(*engineConfig)

// WithDefaultTimeout sets the timeout applied to processors that don't
// declare their own Policy().Timeout and aren't covered by the per-kind
// defaults (vlm, classifier). Zero means unlimited.
func WithDefaultTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) {
		cfg.defaultTimeout = d
	}
}

// WithMetrics attaches Prometheus instrumentation to a Runner. A Runner
// built without this option records no metrics.
func WithMetrics(m *Metrics) Option {
	return func(cfg *engineConfig) {
		cfg.metrics = m
	}
}
