package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/docpipe/engine/pipeline/emit"
	"github.com/rs/zerolog"
)

// defaultTimeouts holds the per-kind wall-clock defaults: no timeout for
// CPU-only processors, 30 minutes for vlm, 60 seconds for classifier.
// Keyed by the name passed to Register, not the instance, so the
// Factory doesn't need to special-case anything here.
var defaultTimeouts = map[string]time.Duration{
	"vlm":        30 * time.Minute,
	"classifier": 60 * time.Second,
}

// invocationContext carries the correlation fields the wrapper binds
// into the logger and propagates: job_id, parent_document_id,
// page_number. It travels on the context so a processor's own logging
// stays correlated without new parameters on Execute.
type invocationContext struct {
	jobID            string
	processorName    string
	pageNumber       *int
	parentDocumentID string
	logger           zerolog.Logger
}

type ctxKey int

const invocationCtxKey ctxKey = 0

// loggerFromContext returns the bound logger stashed by Execute, or a
// disabled logger if none was bound (defensive default for direct unit
// tests of processors).
func loggerFromContext(ctx context.Context) zerolog.Logger {
	if v, ok := ctx.Value(invocationCtxKey).(invocationContext); ok {
		return v.logger
	}
	return zerolog.Nop()
}

// Execute is the Instrumentation Wrapper. It is the ONLY place
// that invokes a processor's Execute method directly, and the ONLY
// place that recovers from a panic escaping one — processors may not
// rely on panics propagating past it.
//
// Steps:
//  1. bind {processor_name, page_number, parent_document_id, job_id}
//     into the logger
//  2. start a monotonic timer
//  3. run execute (with a timeout derived from Policy())
//  4. on success, stamp execution_time_ms and log step.finished
//  5. on panic, convert to a failure Result and log step.failed
//  6. if a status publisher is present, publish the final status
func Execute(ctx context.Context, proc Processor, payload Payload, jobID string, logger zerolog.Logger, emitter emit.Emitter, metrics *Metrics, defaultTimeout time.Duration) (result Result) {
	pageNumber := payload.PageNumber
	bound := logger.With().
		Str("job_id", jobID).
		Str("processor_name", proc.Name()).
		Str("parent_document_id", payload.ParentDocumentID).
		Logger()
	if pageNumber != nil {
		bound = bound.With().Int("page_number", *pageNumber).Logger()
	}

	ctx = context.WithValue(ctx, invocationCtxKey, invocationContext{
		jobID:            jobID,
		processorName:    proc.Name(),
		pageNumber:       pageNumber,
		parentDocumentID: payload.ParentDocumentID,
		logger:           bound,
	})

	timeout := resolveTimeout(proc, defaultTimeout)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	meta := Metadata{PageNumber: pageNumber, ParentDocumentID: payload.ParentDocumentID}
	start := time.Now()

	metrics.IncActive()
	defer func() {
		metrics.DecActive()
		if r := recover(); r != nil {
			result = Failure(proc.Name(), fmt.Sprintf("panic: %v", r), meta, time.Since(start))
			bound.Error().Str("msg", "step.failed").Interface("recover", r).Send()
		}
		metrics.RecordStepLatency(proc.Name(), time.Since(start), result.Status)
		emitStatus(emitter, jobID, proc.Name(), pageNumber, result)
	}()

	result = proc.Execute(ctx, payload)
	elapsed := time.Since(start)
	result.Metadata.PageNumber = pageNumber
	result.Metadata.ParentDocumentID = payload.ParentDocumentID
	result.Metadata.ExecutionTimeMS = elapsed.Milliseconds()

	// Both a blown per-processor budget and a run-level Cancel surface
	// the same canonical error_message.
	if (ctx.Err() == context.DeadlineExceeded || ctx.Err() == context.Canceled) && result.Status != StatusSuccess {
		result = Failure(proc.Name(), ErrCancelled, meta, elapsed)
	}

	switch result.Status {
	case StatusSuccess:
		bound.Info().Str("msg", "step.finished").Int64("execution_time_ms", result.Metadata.ExecutionTimeMS).Send()
	case StatusFailure:
		bound.Error().Str("msg", "step.failed").Str("error", result.ErrorMessage).Send()
	case StatusSkipped:
		bound.Info().Str("msg", "step.skipped").Send()
	}

	return result
}

func resolveTimeout(proc Processor, engineDefault time.Duration) time.Duration {
	if pp, ok := proc.(policyProvider); ok {
		if p := pp.Policy(); p.Timeout > 0 {
			return p.Timeout
		}
	}
	if d, ok := defaultTimeouts[proc.Name()]; ok {
		return d
	}
	return engineDefault
}

func emitStatus(emitter emit.Emitter, jobID, processorName string, pageNumber *int, result Result) {
	if emitter == nil {
		return
	}
	meta := map[string]any{"status": string(result.Status)}
	if pageNumber != nil {
		meta["page_number"] = *pageNumber
	}
	if result.ErrorMessage != "" {
		meta["error"] = result.ErrorMessage
	}
	emitter.Emit(emit.Event{
		JobID:         jobID,
		ProcessorName: processorName,
		PageNumber:    pageNumber,
		Msg:           "step.status",
		Meta:          meta,
	})
}
