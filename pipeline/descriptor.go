package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ExecutionMode selects between the Linear and DAG executors.
type ExecutionMode string

const (
	ModeLinear ExecutionMode = "linear"
	ModeDAG    ExecutionMode = "dag"
)

const defaultMaxConcurrency = 5

// Step is one entry of a linear pipeline: a processor name plus its
// construction-time params.
type Step struct {
	Name   string `json:"name"`
	Params Config `json:"params"`
}

// Node is one entry of a DAG pipeline.
type Node struct {
	ID           string   `json:"id"`
	Processor    string   `json:"processor"`
	Params       Config   `json:"params"`
	Dependencies []string `json:"dependencies"`
}

// PipelineDescriptor is a validated, typed pipeline configuration.
type PipelineDescriptor struct {
	Name           string
	Description    string
	ExecutionMode  ExecutionMode
	MaxConcurrency int

	// Steps is populated when ExecutionMode == ModeLinear.
	Steps []Step

	// Nodes is populated when ExecutionMode == ModeDAG.
	Nodes []Node

	// levels caches the result of Validate's topological sort, consumed
	// by the DAG executor.
	levels [][]Node
}

// rawDescriptor mirrors the configuration file's JSON wire shape before the
// execution-mode-dependent "pipeline" field is resolved.
type rawDescriptor struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	ExecutionMode  string          `json:"execution_mode"`
	MaxConcurrency int             `json:"max_concurrency"`
	Pipeline       json.RawMessage `json:"pipeline"`
}

type rawDAGPipeline struct {
	Nodes []Node `json:"nodes"`
}

// ParseDescriptor decodes one pipeline configuration file's contents.
func ParseDescriptor(data []byte) (*PipelineDescriptor, error) {
	var raw rawDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pipeline descriptor: %w", err)
	}
	if raw.Name == "" {
		return nil, NewConfigError("MISSING_NAME", "pipeline descriptor missing name")
	}

	d := &PipelineDescriptor{
		Name:           raw.Name,
		Description:    raw.Description,
		ExecutionMode:  ExecutionMode(raw.ExecutionMode),
		MaxConcurrency: raw.MaxConcurrency,
	}
	if d.MaxConcurrency <= 0 {
		d.MaxConcurrency = defaultMaxConcurrency
	}

	switch d.ExecutionMode {
	case ModeLinear:
		var steps []Step
		if err := json.Unmarshal(raw.Pipeline, &steps); err != nil {
			return nil, fmt.Errorf("parse linear pipeline %q: %w", d.Name, err)
		}
		d.Steps = steps
	case ModeDAG:
		var dag rawDAGPipeline
		if err := json.Unmarshal(raw.Pipeline, &dag); err != nil {
			return nil, fmt.Errorf("parse dag pipeline %q: %w", d.Name, err)
		}
		d.Nodes = dag.Nodes
	default:
		return nil, fmt.Errorf("%w: %q in pipeline %q", ErrUnknownExecutionMode, raw.ExecutionMode, d.Name)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks structural invariants (unique node ids, resolvable
// dependencies, acyclic graph) and, for DAG pipelines, performs the
// Kahn's-algorithm leveling and caches it for the DAG executor.
func (d *PipelineDescriptor) Validate() error {
	if d.MaxConcurrency < 1 {
		return NewConfigError("INVALID_MAX_CONCURRENCY", "max_concurrency must be >= 1")
	}

	switch d.ExecutionMode {
	case ModeLinear:
		if len(d.Steps) == 0 {
			return NewConfigError("EMPTY_PIPELINE", fmt.Sprintf("pipeline %q has no steps", d.Name))
		}
		for _, s := range d.Steps {
			if s.Name == "" {
				return NewConfigError("MISSING_PROCESSOR_NAME", fmt.Sprintf("pipeline %q has a step with no name", d.Name))
			}
		}
		return nil
	case ModeDAG:
		return d.validateDAG()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExecutionMode, d.ExecutionMode)
	}
}

func (d *PipelineDescriptor) validateDAG() error {
	if len(d.Nodes) == 0 {
		return NewConfigError("EMPTY_PIPELINE", fmt.Sprintf("pipeline %q has no nodes", d.Name))
	}

	byID := make(map[string]Node, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return NewConfigError("MISSING_NODE_ID", fmt.Sprintf("pipeline %q has a node with no id", d.Name))
		}
		if _, exists := byID[n.ID]; exists {
			return fmt.Errorf("%w: %q in pipeline %q", ErrDuplicateNodeID, n.ID, d.Name)
		}
		byID[n.ID] = n
	}
	for _, n := range d.Nodes {
		for _, dep := range n.Dependencies {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: node %q depends on unknown node %q in pipeline %q", ErrUnresolvedDependency, n.ID, dep, d.Name)
			}
		}
	}

	levels, err := topoLevels(d.Nodes)
	if err != nil {
		return err
	}
	d.levels = levels
	return nil
}

// Levels returns the DAG's execution levels computed by Validate: level L
// contains every node whose dependencies are all in levels < L, ordered
// lexically by id within a level for determinism.
func (d *PipelineDescriptor) Levels() [][]Node {
	return d.levels
}

// topoLevels implements Kahn's algorithm over the node set: each
// round extracts every node whose remaining dependency count is zero, sorts
// that round lexically by id, and removes it from the graph. A non-empty
// remainder after no round makes progress indicates a cycle.
func topoLevels(nodes []Node) ([][]Node, error) {
	byID := make(map[string]Node, len(nodes))
	remaining := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		deps := make([]string, len(n.Dependencies))
		copy(deps, n.Dependencies)
		remaining[n.ID] = deps
	}

	var levels [][]Node
	for len(remaining) > 0 {
		var ready []string
		for id, deps := range remaining {
			if len(deps) == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, ErrCycleDetected
		}
		sort.Strings(ready)

		level := make([]Node, 0, len(ready))
		for _, id := range ready {
			level = append(level, byID[id])
			delete(remaining, id)
		}
		for id, deps := range remaining {
			kept := deps[:0:0]
			for _, d := range deps {
				if !containsID(ready, d) {
					kept = append(kept, d)
				}
			}
			remaining[id] = kept
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Loader discovers pipeline descriptors from a directory of JSON files at
// process start. Invalid files are rejected with a log entry; other
// files continue to load.
type Loader struct {
	descriptors map[string]*PipelineDescriptor
	logger      zerolog.Logger
}

// NewLoader builds an empty Loader bound to logger.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{descriptors: make(map[string]*PipelineDescriptor), logger: logger}
}

// LoadDir scans dir for *.json files and parses each as a pipeline
// descriptor, skipping and logging any that fail to parse or validate.
func (l *Loader) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read pipeline config dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn().Str("file", path).Err(err).Msg("pipeline config unreadable, skipping")
			continue
		}
		d, err := ParseDescriptor(data)
		if err != nil {
			l.logger.Warn().Str("file", path).Err(err).Msg("pipeline config invalid, skipping")
			continue
		}
		if _, exists := l.descriptors[d.Name]; exists {
			l.logger.Warn().Str("file", path).Str("name", d.Name).Msg("duplicate pipeline name, overwriting earlier definition")
		}
		l.descriptors[d.Name] = d
	}
	return nil
}

// Get returns the descriptor registered under name, or false if none exists.
func (l *Loader) Get(name string) (*PipelineDescriptor, bool) {
	d, ok := l.descriptors[name]
	return d, ok
}

// Descriptors returns every loaded descriptor, for the pipeline-listing
// surface noted in the [SUPPLEMENT] of this engine's expanded design.
func (l *Loader) Descriptors() []*PipelineDescriptor {
	out := make([]*PipelineDescriptor, 0, len(l.descriptors))
	for _, d := range l.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
