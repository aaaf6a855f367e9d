// Package emit provides event emission for pipeline run observability,
// independent of structured logging. Step outcomes and job status
// transitions are mirrored here as events; the Dispatcher's job:<job_id>
// subscribers are fed from their own channels, not from an Emitter.
package emit

// Event is one observability event emitted during a pipeline run.
type Event struct {
	// JobID identifies the run that emitted this event.
	JobID string

	// ProcessorName identifies which processor emitted this event. Empty
	// for job-level events (job.status).
	ProcessorName string

	// PageNumber is set when the event concerns one fan-out child.
	PageNumber *int

	// Msg is a short machine-matchable event kind: "step.status" for one
	// processor invocation, "job.status" for a job state transition.
	Msg string

	// Meta carries structured detail: status, error, cost_usd,
	// tokens_used, and similar fields.
	Meta map[string]interface{}
}
