package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/docpipe/engine/pipeline"
	"github.com/docpipe/engine/pipeline/emit"
)

// compositeProcessor owns a nested linear sub-pipeline, resolved through
// the narrow BuilderHandle rather than a full Registry back-reference,
// which would otherwise create a construction cycle between the
// composite and its own factory.
type compositeProcessor struct {
	pipeline.BaseProcessor
	steps []pipeline.Step
	inner []pipeline.Processor
}

func newCompositeProcessor(config pipeline.Config, base pipeline.BaseProcessor, handle pipeline.BuilderHandle) (*compositeProcessor, error) {
	raw, _ := config["steps"].([]any)
	steps := make([]pipeline.Step, 0, len(raw))
	for _, s := range raw {
		m, ok := s.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		params, _ := m["params"].(map[string]any)
		steps = append(steps, pipeline.Step{Name: name, Params: pipeline.Config(params)})
	}

	inner := make([]pipeline.Processor, 0, len(steps))
	for _, step := range steps {
		proc, err := handle.Create(step.Name, step.Params, base.Logger())
		if err != nil {
			return nil, fmt.Errorf("composite: build inner step %q: %w", step.Name, err)
		}
		inner = append(inner, proc)
	}

	return &compositeProcessor{BaseProcessor: base, steps: steps, inner: inner}, nil
}

func (p *compositeProcessor) ValidateConfig() error {
	if len(p.steps) == 0 {
		return pipeline.NewConfigError("EMPTY_STEPS", "composite: steps must be non-empty")
	}
	return nil
}

// Execute runs the nested steps in order over a single evolving payload.
// A fan-out step commits only to its first child, keeping composite's
// contract a single in, single out — multi-payload fan-out is the outer
// executor's job, not a nested sub-pipeline's.
func (p *compositeProcessor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()
	current := payload
	emitter := emit.NewNullEmitter()

	var last pipeline.Result
	for i, proc := range p.inner {
		last = pipeline.Execute(ctx, proc, current, current.JobID, p.Logger(), emitter, nil, 0)
		if last.Status == pipeline.StatusFailure {
			return pipeline.Failure(p.Name(), fmt.Sprintf("composite: inner step %q failed: %s", p.steps[i].Name, last.ErrorMessage), pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}, time.Since(start))
		}

		current = current.WithResult(last)
		if last.StructuredResults.IsFanOut() && len(last.StructuredResults.DocumentPayloads) > 0 {
			current = last.StructuredResults.DocumentPayloads[0].WithResult(last)
		} else if last.StructuredResults.HasImage() {
			child := current.Child(last.StructuredResults.ImageData, current.PageNumber)
			child.ParentDocumentID = current.ParentDocumentID
			current = child.WithResult(last)
		}
	}

	meta := pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID, Extra: last.Metadata.Extra}
	return pipeline.Success(p.Name(), fmt.Sprintf("ran %d inner step(s)", len(p.inner)), last.StructuredResults, meta, time.Since(start))
}
