// Package store provides durable backends for job status lookup, the state
// the Job Dispatcher exposes behind its synchronous status-query surface.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a job_id has no recorded status.
var ErrNotFound = errors.New("job not found")

// JobRecord is one job's persisted status, with its aggregated result once
// terminal (an opaque `any` here to avoid an import cycle with the
// pipeline package). MemJobStore returns the value it was given, which
// the Dispatcher type-asserts back to pipeline.DocumentProcessingResult;
// SQLiteJobStore and MySQLJobStore return it JSON-decoded as a
// map[string]any.
type JobRecord struct {
	JobID  string
	Status string
	Result any
}

// JobStore persists job status transitions (created -> in_progress ->
// success|failed). Terminal states are idempotent: calling
// SetResult twice for the same job_id overwrites with the same value.
type JobStore interface {
	// SetStatus records a non-terminal status transition.
	SetStatus(ctx context.Context, jobID, status string) error

	// SetResult records the terminal status and result for a job.
	SetResult(ctx context.Context, jobID, status string, result any) error

	// Get returns the current record for jobID, or ErrNotFound.
	Get(ctx context.Context, jobID string) (JobRecord, error)
}
