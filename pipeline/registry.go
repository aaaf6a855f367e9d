package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// BuilderHandle is the narrow interface a composite processor needs to
// build its inner processors, without the full Registry back-reference
// that would create a cycle between the composite processor and its own
// factory.
type BuilderHandle interface {
	// Create instantiates processorName with params, validating its
	// config the same way the top-level Registry does.
	Create(processorName string, params Config, logger zerolog.Logger) (Processor, error)
}

// Constructor builds a Processor from its construction-time config and a
// logger already bound with processor_name.
type Constructor func(config Config, logger zerolog.Logger, handle BuilderHandle) (Processor, error)

// Registry is the process-wide, read-only-after-startup name -> constructor
// table. Unknown names fail fast listing known names.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a named constructor. Intended to be called once per name at
// startup, before the Registry is handed to any executor.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = ctor
}

// Names returns every registered processor name, sorted, for the
// processor-listing surface noted in this engine's expanded design.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create instantiates the named processor and validates its config. It
// implements BuilderHandle so the Registry itself can be passed to
// composite-processor constructors without exposing anything beyond
// Create.
func (r *Registry) Create(name string, params Config, logger zerolog.Logger) (Processor, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProcessor, name, strings.Join(r.Names(), ", "))
	}
	proc, err := ctor(params, logger.With().Str("processor_name", name).Logger(), r)
	if err != nil {
		return nil, err
	}
	if err := proc.ValidateConfig(); err != nil {
		return nil, err
	}
	return proc, nil
}
