package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory keyed by job_id, for tests and for
// inspecting a run's history after the fact.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter returns an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.JobID] = append(b.events[event.JobID], event)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of every event recorded for jobID, in emission order.
func (b *BufferedEmitter) History(jobID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[jobID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Clear discards events for jobID, or all events if jobID is empty.
func (b *BufferedEmitter) Clear(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if jobID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, jobID)
}
