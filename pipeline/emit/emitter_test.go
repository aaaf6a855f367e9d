package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func intPtr(n int) *int { return &n }

func TestNullEmitter_DiscardsEverything(t *testing.T) {
	n := NewNullEmitter()
	n.Emit(Event{JobID: "job-1", Msg: "step.status"})
	if err := n.EmitBatch(context.Background(), []Event{{JobID: "job-1"}}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if err := n.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestBufferedEmitter_HistoryPreservesOrderPerJob(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{JobID: "job-1", Msg: "job.created"})
	b.Emit(Event{JobID: "job-2", Msg: "job.created"})
	b.Emit(Event{JobID: "job-1", Msg: "step.status", ProcessorName: "ocr"})

	history := b.History("job-1")
	if len(history) != 2 {
		t.Fatalf("expected 2 events for job-1, got %d", len(history))
	}
	if history[0].Msg != "job.created" || history[1].Msg != "step.status" {
		t.Fatalf("expected emission order preserved, got %+v", history)
	}
	if len(b.History("job-2")) != 1 {
		t.Fatalf("expected job-2 to have its own isolated history")
	}
}

func TestBufferedEmitter_EmitBatchAppendsInOrder(t *testing.T) {
	b := NewBufferedEmitter()
	if err := b.EmitBatch(context.Background(), []Event{
		{JobID: "job-1", Msg: "a"},
		{JobID: "job-1", Msg: "b"},
	}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	history := b.History("job-1")
	if len(history) != 2 || history[0].Msg != "a" || history[1].Msg != "b" {
		t.Fatalf("expected batch events appended in order, got %+v", history)
	}
}

func TestBufferedEmitter_ClearRemovesOneOrAllJobs(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{JobID: "job-1", Msg: "a"})
	b.Emit(Event{JobID: "job-2", Msg: "a"})

	b.Clear("job-1")
	if len(b.History("job-1")) != 0 {
		t.Fatal("expected job-1 history cleared")
	}
	if len(b.History("job-2")) != 1 {
		t.Fatal("expected job-2 history untouched by a scoped Clear")
	}

	b.Clear("")
	if len(b.History("job-2")) != 0 {
		t.Fatal("expected Clear(\"\") to wipe every job")
	}
}

func TestBufferedEmitter_HistoryReturnsACopy(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{JobID: "job-1", Msg: "a"})

	history := b.History("job-1")
	history[0].Msg = "mutated"

	if got := b.History("job-1")[0].Msg; got != "a" {
		t.Fatalf("expected History to be defensive-copied, got %q", got)
	}
}

func TestLogEmitter_JSONMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, true)
	l.Emit(Event{JobID: "job-1", ProcessorName: "ocr", PageNumber: intPtr(2), Msg: "step.status", Meta: map[string]interface{}{"status": "success"}})

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["job_id"] != "job-1" || decoded["processor_name"] != "ocr" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
	if decoded["page_number"].(float64) != 2 {
		t.Fatalf("expected page_number 2, got %v", decoded["page_number"])
	}
}

func TestLogEmitter_TextMode(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)
	l.Emit(Event{JobID: "job-1", ProcessorName: "ocr", Msg: "step.status"})

	line := buf.String()
	if !strings.Contains(line, "job=job-1") || !strings.Contains(line, "processor=ocr") || !strings.Contains(line, "[step.status]") {
		t.Fatalf("unexpected text line: %q", line)
	}
}

func TestLogEmitter_EmitBatchWritesEachEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogEmitter(&buf, false)
	if err := l.EmitBatch(context.Background(), []Event{{JobID: "job-1", Msg: "a"}, {JobID: "job-1", Msg: "b"}}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
}

func TestLogEmitter_DefaultsToStdoutWhenWriterNil(t *testing.T) {
	l := NewLogEmitter(nil, false)
	if l.writer == nil {
		t.Fatal("expected a non-nil default writer")
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{})
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestOTelEmitter_EmitAnnotatesSpanAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("docpipe-test")
	emitter := NewOTelEmitter(tracer)

	emitter.Emit(Event{
		JobID:         "job-1",
		ProcessorName: "ocr",
		PageNumber:    intPtr(3),
		Msg:           "step.status",
		Meta:          map[string]interface{}{"cost_usd": 0.01, "status": "success"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "step.status" {
		t.Fatalf("expected span name step.status, got %q", span.Name)
	}
	attrs := attributeMap(span.Attributes)
	if attrs["docpipe.job_id"] != "job-1" {
		t.Fatalf("expected docpipe.job_id attribute, got %+v", attrs)
	}
	if attrs["docpipe.page_number"] != int64(3) {
		t.Fatalf("expected docpipe.page_number=3, got %v", attrs["docpipe.page_number"])
	}
	if !span.EndTime.After(span.StartTime) {
		t.Fatal("expected span to have ended")
	}
}

func TestOTelEmitter_EmitWithErrorSetsSpanErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("docpipe-test")
	emitter := NewOTelEmitter(tracer)
	emitter.Emit(Event{JobID: "job-1", Msg: "step.status", Meta: map[string]interface{}{"error": "ocr backend timeout"}})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code.String() != "Error" {
		t.Fatalf("expected error status, got %v", spans[0].Status.Code)
	}
}

func TestOTelEmitter_EmitBatchCreatesOneSpanPerEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := otel.Tracer("docpipe-test")
	emitter := NewOTelEmitter(tracer)
	if err := emitter.EmitBatch(context.Background(), []Event{
		{JobID: "job-1", Msg: "a"},
		{JobID: "job-1", Msg: "b"},
	}); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if len(exporter.GetSpans()) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(exporter.GetSpans()))
	}
}
