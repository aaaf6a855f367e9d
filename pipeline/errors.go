package pipeline

import "errors"

// ErrCancelled is the error_message stamped on a Result when a run's context
// is cancelled mid-execution.
const ErrCancelled = "cancelled"

// Sentinel errors returned by descriptor loading and validation.
var (
	// ErrUnknownProcessor is returned by the Registry when a descriptor
	// names a processor with no registered constructor.
	ErrUnknownProcessor = errors.New("unknown processor")

	// ErrCycleDetected is returned by (*PipelineDescriptor).Validate when
	// a DAG's dependency graph cannot be topologically sorted.
	ErrCycleDetected = errors.New("cycle detected in DAG pipeline")

	// ErrDuplicateNodeID is returned when two DAG nodes share an id.
	ErrDuplicateNodeID = errors.New("duplicate node id in DAG pipeline")

	// ErrUnresolvedDependency is returned when a DAG node names a
	// dependency id with no matching node.
	ErrUnresolvedDependency = errors.New("unresolved dependency in DAG pipeline")

	// ErrUnknownExecutionMode is returned when a descriptor's
	// execution_mode is neither "linear" nor "dag".
	ErrUnknownExecutionMode = errors.New("unknown execution_mode")

	// ErrJobNotFound is returned by a JobStore when a status lookup names
	// an unknown job_id.
	ErrJobNotFound = errors.New("job not found")

	// ErrMultipleFanOut is logged (not fatal) when more than one result in
	// a single linear step fans out; only the first is honored.
	ErrMultipleFanOut = errors.New("multiple fan-out results in one step; only the first is honored")
)
