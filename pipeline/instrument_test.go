package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/docpipe/engine/pipeline/emit"
	"github.com/rs/zerolog"
)

type fixedProcessor struct {
	BaseProcessor
	fn func(ctx context.Context, payload Payload) Result
}

func (f *fixedProcessor) ValidateConfig() error { return nil }

func (f *fixedProcessor) Execute(ctx context.Context, payload Payload) Result {
	return f.fn(ctx, payload)
}

func newFixedProcessor(name string, fn func(ctx context.Context, payload Payload) Result) *fixedProcessor {
	return &fixedProcessor{BaseProcessor: NewBaseProcessor(name, Config{}, zerolog.Nop()), fn: fn}
}

func TestExecute_StampsMetadataOnSuccess(t *testing.T) {
	proc := newFixedProcessor("demo", func(ctx context.Context, payload Payload) Result {
		return Success("demo", "done", &StructuredResults{Text: "hi"}, Metadata{}, 0)
	})
	pn := 2
	payload := Payload{JobID: "job-1", ParentDocumentID: "parent-doc", PageNumber: &pn}

	result := Execute(context.Background(), proc, payload, "job-1", zerolog.Nop(), emit.NewNullEmitter(), nil, 0)

	if result.Status != StatusSuccess {
		t.Fatalf("expected success, got %q: %s", result.Status, result.ErrorMessage)
	}
	if result.Metadata.PageNumber == nil || *result.Metadata.PageNumber != 2 {
		t.Fatalf("expected metadata.page_number stamped to 2, got %v", result.Metadata.PageNumber)
	}
	if result.Metadata.ParentDocumentID != "parent-doc" {
		t.Fatalf("expected metadata.parent_document_id stamped, got %q", result.Metadata.ParentDocumentID)
	}
}

func TestExecute_RecoversPanic(t *testing.T) {
	proc := newFixedProcessor("boom", func(ctx context.Context, payload Payload) Result {
		panic("processor exploded")
	})
	payload := Payload{JobID: "job-1"}

	result := Execute(context.Background(), proc, payload, "job-1", zerolog.Nop(), emit.NewNullEmitter(), nil, 0)

	if result.Status != StatusFailure {
		t.Fatalf("expected panic to convert to failure, got %q", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Fatal("expected non-empty error message describing the panic")
	}
}

func TestExecute_TimeoutBecomesFailure(t *testing.T) {
	proc := newFixedProcessor("slow", func(ctx context.Context, payload Payload) Result {
		<-ctx.Done()
		return Failure("slow", "timed out internally", Metadata{}, 0)
	})
	payload := Payload{JobID: "job-1"}

	result := Execute(context.Background(), proc, payload, "job-1", zerolog.Nop(), emit.NewNullEmitter(), nil, 10*time.Millisecond)

	if result.Status != StatusFailure {
		t.Fatalf("expected timeout to produce a failure Result, got %q", result.Status)
	}
}

func TestExecute_CancellationNormalizesErrorMessage(t *testing.T) {
	proc := newFixedProcessor("fetch", func(ctx context.Context, payload Payload) Result {
		<-ctx.Done()
		return Failure("fetch", "backend request failed: context canceled", Metadata{}, 0)
	})
	payload := Payload{JobID: "job-1"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := Execute(ctx, proc, payload, "job-1", zerolog.Nop(), emit.NewNullEmitter(), nil, 0)

	if result.Status != StatusFailure {
		t.Fatalf("expected cancellation to produce a failure Result, got %q", result.Status)
	}
	if result.ErrorMessage != ErrCancelled {
		t.Fatalf("expected error_message %q, got %q", ErrCancelled, result.ErrorMessage)
	}
}

func TestExecute_PublishesStatusEvent(t *testing.T) {
	proc := newFixedProcessor("demo", func(ctx context.Context, payload Payload) Result {
		return Success("demo", "done", nil, Metadata{}, 0)
	})
	buffered := emit.NewBufferedEmitter()

	Execute(context.Background(), proc, Payload{JobID: "job-xyz"}, "job-xyz", zerolog.Nop(), buffered, nil, 0)

	history := buffered.History("job-xyz")
	if len(history) != 1 {
		t.Fatalf("expected 1 emitted event, got %d", len(history))
	}
	if history[0].Msg != "step.status" {
		t.Fatalf("expected step.status event, got %q", history[0].Msg)
	}
}

func TestExecute_NilMetricsIsSafe(t *testing.T) {
	proc := newFixedProcessor("demo", func(ctx context.Context, payload Payload) Result {
		return Success("demo", "done", nil, Metadata{}, 0)
	})
	// Passing a nil *Metrics must not panic (instrument.go calls IncActive/
	// DecActive/RecordStepLatency unconditionally).
	result := Execute(context.Background(), proc, Payload{JobID: "job-1"}, "job-1", zerolog.Nop(), emit.NewNullEmitter(), nil, 0)
	if result.Status != StatusSuccess {
		t.Fatalf("expected success with nil metrics, got %q", result.Status)
	}
}

func TestResolveTimeout_PerKindDefaults(t *testing.T) {
	vlmProc := newFixedProcessor("vlm", nil)
	if got := resolveTimeout(vlmProc, 0); got != 30*time.Minute {
		t.Fatalf("expected vlm default timeout 30m, got %v", got)
	}
	classifierProc := newFixedProcessor("classifier", nil)
	if got := resolveTimeout(classifierProc, 0); got != 60*time.Second {
		t.Fatalf("expected classifier default timeout 60s, got %v", got)
	}
	other := newFixedProcessor("ocr", nil)
	if got := resolveTimeout(other, 5*time.Second); got != 5*time.Second {
		t.Fatalf("expected engine default to apply for uncategorized processor, got %v", got)
	}
}
