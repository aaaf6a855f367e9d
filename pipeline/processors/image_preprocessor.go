package processors

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint for instrumentation, not a security boundary
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder for image.Decode
	"image/png"
	"time"

	"github.com/docpipe/engine/pipeline"
)

// imageOp is one named, instrumented sub-operation of image_preprocessor.
type imageOp func(img image.Image, params map[string]any) (image.Image, error)

var imageOps = map[string]imageOp{
	"deskew":              deskewOp,
	"denoise":             denoiseOp,
	"to_grayscale":        toGrayscaleOp,
	"binarize":            binarizeOp,
	"enhance_contrast":    enhanceContrastOp,
	"opening":             openingOp,
	"closing":             closingOp,
	"canny":               cannyOp,
	"correct_perspective": correctPerspectiveOp,
}

// imagePreprocessor runs an ordered sub-pipeline of named image ops over
// stdlib image.Image, instrumenting each sub-op independently.
type imagePreprocessor struct {
	pipeline.BaseProcessor
	steps []stepConfig
}

type stepConfig struct {
	name   string
	params map[string]any
}

func newImagePreprocessor(config pipeline.Config, base pipeline.BaseProcessor) *imagePreprocessor {
	p := &imagePreprocessor{BaseProcessor: base}
	for _, raw := range config.StringSlice("steps") {
		p.steps = append(p.steps, stepConfig{name: raw})
	}
	if stepsAny, ok := config["steps"].([]any); ok {
		p.steps = p.steps[:0]
		for _, s := range stepsAny {
			switch v := s.(type) {
			case string:
				p.steps = append(p.steps, stepConfig{name: v})
			case map[string]any:
				name, _ := v["name"].(string)
				params, _ := v["params"].(map[string]any)
				p.steps = append(p.steps, stepConfig{name: name, params: params})
			}
		}
	}
	return p
}

func (p *imagePreprocessor) ValidateConfig() error {
	if len(p.steps) == 0 {
		return pipeline.NewConfigError("EMPTY_STEPS", "image_preprocessor: steps must be non-empty")
	}
	for _, step := range p.steps {
		if _, ok := imageOps[step.name]; !ok {
			return pipeline.NewConfigError("UNKNOWN_IMAGE_OP", fmt.Sprintf("image_preprocessor: unknown step %q", step.name))
		}
	}
	return nil
}

func (p *imagePreprocessor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()

	img, _, err := image.Decode(bytes.NewReader(payload.FileContent))
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("decode image: %v", err), pipeline.Metadata{}, time.Since(start))
	}

	subResults := make([]pipeline.SubStepResult, 0, len(p.steps))
	current := img
	currentBytes := payload.FileContent

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return pipeline.Failure(p.Name(), "cancelled", pipeline.Metadata{}, time.Since(start))
		}

		op := imageOps[step.name]
		stepStart := time.Now()
		inputHash := contentHash(currentBytes)

		next, err := op(current, step.params)
		if err != nil {
			return pipeline.Failure(p.Name(), fmt.Sprintf("step %q: %v", step.name, err), pipeline.Metadata{}, time.Since(start))
		}

		nextBytes, err := encodePNG(next)
		if err != nil {
			return pipeline.Failure(p.Name(), fmt.Sprintf("step %q: encode: %v", step.name, err), pipeline.Metadata{}, time.Since(start))
		}

		subResults = append(subResults, pipeline.SubStepResult{
			StepName:        step.name,
			Params:          step.params,
			InputHash:       inputHash,
			OutputHash:      contentHash(nextBytes),
			ExecutionTimeMS: time.Since(stepStart).Milliseconds(),
		})

		current = next
		currentBytes = nextBytes
	}

	sr := &pipeline.StructuredResults{ImageData: currentBytes, Steps: subResults}
	return pipeline.Success(p.Name(), fmt.Sprintf("ran %d sub-op(s)", len(p.steps)), sr, pipeline.Metadata{}, time.Since(start))
}

func contentHash(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
