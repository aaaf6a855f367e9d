package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/docpipe/engine/pipeline/emit"
	"github.com/docpipe/engine/pipeline/store"
	"github.com/rs/zerolog"
)

// JobStatus is a job's position in the job state machine:
// created -> in_progress -> (success | failed).
type JobStatus string

const (
	JobCreated    JobStatus = "created"
	JobInProgress JobStatus = "in_progress"
	JobSuccess    JobStatus = "success"
	JobFailed     JobStatus = "failed"
)

// StatusEvent is one message published on a job's subscription channel
// (topic job:<job_id>). Every transition is published exactly once, and
// the last message for a job is always a terminal state.
type StatusEvent struct {
	JobID  string
	Status JobStatus
	Result *DocumentProcessingResult
	Error  string
}

// RunRequest is the Dispatcher's engine input.
type RunRequest struct {
	PipelineName  string
	FileBytes     []byte
	FileName      string
	CorrelationID string
}

// Dispatcher chooses in-process vs. background execution based on a
// descriptor's execution_mode: linear pipelines run synchronously in
// the caller's context; dag pipelines are deferred to a background
// goroutine and tracked by job_id.
type Dispatcher struct {
	loader  *Loader
	linear  *LinearRunner
	dag     *DAGRunner
	store   store.JobStore
	objects store.ObjectStore
	emitter emit.Emitter
	logger  zerolog.Logger

	mu          sync.Mutex
	subscribers map[string][]chan StatusEvent
	cancels     map[string]context.CancelFunc
}

// DispatcherOption configures optional Dispatcher collaborators.
type DispatcherOption func(*Dispatcher)

// WithObjectStore attaches the byte-sink that persists each run's raw
// uploaded file at documents/<md5(file_bytes)>_<file_name>. Without
// it, no raw file is persisted.
func WithObjectStore(objects store.ObjectStore) DispatcherOption {
	return func(d *Dispatcher) { d.objects = objects }
}

// NewDispatcher builds a Dispatcher over loader's descriptors, using linear
// and dag as the two execution engines and jobStore for durable status.
func NewDispatcher(loader *Loader, linear *LinearRunner, dag *DAGRunner, jobStore store.JobStore, emitter emit.Emitter, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	d := &Dispatcher{
		loader:      loader,
		linear:      linear,
		dag:         dag,
		store:       jobStore,
		emitter:     emitter,
		logger:      logger,
		subscribers: make(map[string][]chan StatusEvent),
		cancels:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run dispatches req. For a linear pipeline it returns the aggregated
// result once the run completes. For a dag pipeline it returns immediately
// with an ack carrying only the job_id to poll or subscribe on.
func (d *Dispatcher) Run(ctx context.Context, req RunRequest) (*DocumentProcessingResult, error) {
	descriptor, ok := d.loader.Get(req.PipelineName)
	if !ok {
		return nil, fmt.Errorf("%w: pipeline %q not loaded", ErrUnknownProcessor, req.PipelineName)
	}

	jobID := req.CorrelationID
	root := NewRootPayload(jobID, req.FileName, req.FileBytes)

	d.persistRawFile(ctx, root, req)

	d.publish(jobID, JobCreated, nil, "")
	if err := d.store.SetStatus(ctx, jobID, string(JobCreated)); err != nil {
		d.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to persist job status")
	}

	switch descriptor.ExecutionMode {
	case ModeLinear:
		runCtx, cancel := context.WithCancel(ctx)
		d.trackCancel(jobID, cancel)
		defer d.untrackCancel(jobID)
		d.publish(jobID, JobInProgress, nil, "")
		_ = d.store.SetStatus(runCtx, jobID, string(JobInProgress))
		results := d.linear.Run(runCtx, descriptor, root, jobID)
		agg := Aggregate(jobID, root.DocumentID, results)
		if runCtx.Err() != nil {
			agg.Status = AggregateFailure
			if agg.ErrorMessage == "" {
				agg.ErrorMessage = ErrCancelled
			}
		}
		d.finish(context.Background(), jobID, agg)
		return &agg, nil
	case ModeDAG:
		// The background run is detached from the caller's request
		// lifetime; cancellation happens through Cancel, not the
		// original ctx.
		bgCtx, cancel := context.WithCancel(context.Background())
		d.trackCancel(jobID, cancel)
		go func() {
			defer d.untrackCancel(jobID)
			d.publish(jobID, JobInProgress, nil, "")
			_ = d.store.SetStatus(bgCtx, jobID, string(JobInProgress))
			results := d.dag.Run(bgCtx, descriptor, root, jobID)
			agg := Aggregate(jobID, root.DocumentID, results)
			if bgCtx.Err() != nil {
				agg.Status = AggregateFailure
				if agg.ErrorMessage == "" {
					agg.ErrorMessage = ErrCancelled
				}
			}
			d.finish(context.Background(), jobID, agg)
		}()
		// The ack carries only the job_id; the run's status and output
		// are reached through Status or Subscribe once the job finishes.
		return &DocumentProcessingResult{JobID: jobID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExecutionMode, descriptor.ExecutionMode)
	}
}

// Cancel cancels a running job at the Dispatcher boundary.
// Cancellation propagates cooperatively through the run's context; it is
// a no-op for unknown or already-terminal jobs.
func (d *Dispatcher) Cancel(jobID string) {
	d.mu.Lock()
	cancel := d.cancels[jobID]
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *Dispatcher) trackCancel(jobID string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.cancels[jobID] = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) untrackCancel(jobID string) {
	d.mu.Lock()
	cancel := d.cancels[jobID]
	delete(d.cancels, jobID)
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// persistRawFile stores the original upload at
// documents/<md5(file_bytes)>_<file_name> when an object store is
// configured. The URL is logged, not returned.
func (d *Dispatcher) persistRawFile(ctx context.Context, root Payload, req RunRequest) {
	if d.objects == nil {
		return
	}
	key := "documents/" + root.DocumentID + "_" + req.FileName
	url, err := d.objects.Put(ctx, key, req.FileBytes)
	if err != nil {
		d.logger.Warn().Err(err).Str("job_id", root.JobID).Str("key", key).Msg("failed to persist raw document")
		return
	}
	d.logger.Info().Str("job_id", root.JobID).Str("key", key).Str("url", url).Msg("raw document stored")
}

func (d *Dispatcher) finish(ctx context.Context, jobID string, agg DocumentProcessingResult) {
	status := JobSuccess
	if agg.Status == AggregateFailure {
		status = JobFailed
	}
	if err := d.store.SetResult(ctx, jobID, string(status), agg); err != nil {
		d.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to persist job result")
	}
	d.publish(jobID, status, &agg, agg.ErrorMessage)
}

// Status looks up a job's current state.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (JobStatus, *DocumentProcessingResult, error) {
	rec, err := d.store.Get(ctx, jobID)
	if err != nil {
		return "", nil, err
	}
	if agg, ok := rec.Result.(DocumentProcessingResult); ok {
		return JobStatus(rec.Status), &agg, nil
	}
	return JobStatus(rec.Status), nil, nil
}

// Subscribe attaches to job:<job_id>'s status-transition stream. The
// returned channel receives every subsequent transition and is closed after
// the terminal state is delivered.
func (d *Dispatcher) Subscribe(jobID string) <-chan StatusEvent {
	ch := make(chan StatusEvent, 8)
	d.mu.Lock()
	d.subscribers[jobID] = append(d.subscribers[jobID], ch)
	d.mu.Unlock()
	return ch
}

func (d *Dispatcher) publish(jobID string, status JobStatus, result *DocumentProcessingResult, errMsg string) {
	event := StatusEvent{JobID: jobID, Status: status, Result: result, Error: errMsg}

	d.mu.Lock()
	subs := d.subscribers[jobID]
	terminal := status == JobSuccess || status == JobFailed
	if terminal {
		delete(d.subscribers, jobID)
	}
	d.mu.Unlock()

	for _, ch := range subs {
		ch <- event
		if terminal {
			close(ch)
		}
	}

	d.emitEvent(jobID, status, errMsg)
}

func (d *Dispatcher) emitEvent(jobID string, status JobStatus, errMsg string) {
	meta := map[string]any{"status": string(status)}
	if errMsg != "" {
		meta["error"] = errMsg
	}
	d.emitter.Emit(emit.Event{JobID: jobID, Msg: "job.status", Meta: meta})
}
