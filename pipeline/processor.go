package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config is the per-processor construction-time configuration, decoded
// from a pipeline descriptor's "params" object.
type Config map[string]any

// String returns the string value for key, or def if absent/wrong type.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Int returns the int value for key, or def if absent/wrong type. JSON
// numbers decode as float64, so both are accepted.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// Float returns the float64 value for key, or def if absent/wrong type.
func (c Config) Float(key string, def float64) float64 {
	if v, ok := c[key].(float64); ok {
		return v
	}
	return def
}

// StringSlice returns a []string for key, or nil if absent/wrong type.
func (c Config) StringSlice(key string) []string {
	raw, ok := c[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Duration returns a time.Duration parsed from a millisecond int/float
// at key, or def if absent/wrong type.
func (c Config) Duration(key string, def time.Duration) time.Duration {
	switch v := c[key].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	}
	return def
}

// Processor is the uniform contract every pipeline step implements.
// Implementations MUST NOT mutate their input Payload and MAY be
// called concurrently on distinct payloads.
type Processor interface {
	// Name returns the processor's registered name (used by the
	// aggregator to key document_level_results / pages).
	Name() string

	// ValidateConfig is called once at construction time by the
	// Factory. It must fail fast with a *ConfigError if required keys
	// are missing or invalid.
	ValidateConfig() error

	// Execute performs the processor's work. It must return within the
	// finite time bound configured by Policy().Timeout and must
	// never let a panic escape — the Instrumentation Wrapper is the
	// only place that recovers from one, but well-behaved processors
	// should not rely on that safety net for control flow.
	Execute(ctx context.Context, payload Payload) Result
}

// Policy describes a processor's execution-time budget. Implementations
// may satisfy the optional policyProvider interface below to override
// the engine-wide default; otherwise the per-kind default timeouts apply
// (no timeout for CPU-only processors, 30 minutes for vlm, 60 seconds
// for classifier).
type Policy struct {
	Timeout time.Duration
}

// policyProvider is implemented by processors that need a non-default
// timeout. Precedence is per-processor override, then the per-kind
// default, then the engine default, then unlimited.
type policyProvider interface {
	Policy() Policy
}

// BaseProcessor is embedded by concrete processors to share the
// (config, logger, name) bookkeeping the Factory constructs with.
type BaseProcessor struct {
	config        Config
	logger        zerolog.Logger
	processorName string
}

// NewBaseProcessor builds a BaseProcessor bound to a processor name for
// logging and aggregation purposes.
func NewBaseProcessor(name string, config Config, logger zerolog.Logger) BaseProcessor {
	return BaseProcessor{
		processorName: name,
		config:        config,
		logger:        logger.With().Str("processor_name", name).Logger(),
	}
}

// Name implements Processor.
func (b BaseProcessor) Name() string { return b.processorName }

// Config exposes the bound configuration to embedding processors.
func (b BaseProcessor) Config() Config { return b.config }

// Logger exposes the bound logger to embedding processors.
func (b BaseProcessor) Logger() zerolog.Logger { return b.logger }

// ConfigError is a configuration-validation failure: a missing required
// param or a bad value. Unknown processor names and DAG cycles are
// reported through the ErrUnknownProcessor and ErrCycleDetected sentinels
// instead. Configuration errors fail the whole run before any step
// executes.
type ConfigError struct {
	Code    string
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// NewConfigError builds a *ConfigError with a machine-readable code.
func NewConfigError(code, message string) *ConfigError {
	return &ConfigError{Code: code, Message: message}
}
