package emit

import "context"

// Emitter receives observability events from a pipeline run. Implementations
// must not block the executor and must not panic; a slow or failing backend
// should drop or buffer events rather than stall a step.
type Emitter interface {
	// Emit sends a single event. It must not block the caller meaningfully
	// or panic.
	Emit(event Event)

	// EmitBatch sends multiple events in submission order. Individual
	// event failures should be absorbed internally; EmitBatch only
	// returns an error on catastrophic, non-recoverable failures.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until any buffered events have been delivered, or the
	// context expires. Safe to call more than once.
	Flush(ctx context.Context) error
}
