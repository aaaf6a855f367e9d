package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a point-in-time OpenTelemetry span,
// carrying job_id/processor_name/page_number as attributes, matching the
// context-propagation requirement.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an OTelEmitter backed by tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	o.annotate(span, event)
	span.End()
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.annotate(span, event)
		span.End()
	}
	return nil
}

func (o *OTelEmitter) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("docpipe.job_id", event.JobID),
		attribute.String("docpipe.processor_name", event.ProcessorName),
	}
	if event.PageNumber != nil {
		attrs = append(attrs, attribute.Int("docpipe.page_number", *event.PageNumber))
	}
	span.SetAttributes(attrs...)

	for key, value := range event.Meta {
		attrKey := "docpipe." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}

	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}
