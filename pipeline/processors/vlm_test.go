package processors

import (
	"context"
	"testing"

	"github.com/docpipe/engine/pipeline"
	"github.com/docpipe/engine/pipeline/model"
	"github.com/rs/zerolog"
)

// pngSignature is enough of a PNG header for http.DetectContentType to
// report "image/png" without needing a full, valid image payload.
var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func newTestVLM(t *testing.T, mock *model.MockChatModel) *vlmProcessor {
	t.Helper()
	base := pipeline.NewBaseProcessor("vlm", pipeline.Config{}, zerolog.Nop())
	return &vlmProcessor{
		BaseProcessor: base,
		chatModel:     mock,
		prompt:        "Describe this document image in detail.",
		temperature:   0,
		maxTokens:     1024,
		cost:          pipeline.NewCostTracker(),
		modelName:     "claude-3-haiku-20240307",
	}
}

func TestVLMProcessor_DescribesImagePayload(t *testing.T) {
	mock := &model.MockChatModel{Responses: []model.ChatOut{{Text: "a scanned invoice", Usage: model.Usage{InputTokens: 500, OutputTokens: 20}}}}
	proc := newTestVLM(t, mock)

	payload := pipeline.NewRootPayload("job-1", "page.png", pngSignature)
	result := proc.Execute(context.Background(), payload)

	if result.Status != pipeline.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.StructuredResults.Analysis != "a scanned invoice" {
		t.Fatalf("expected analysis text, got %q", result.StructuredResults.Analysis)
	}
	if len(mock.Calls) != 1 || len(mock.Calls[0].Messages[0].Images) != 1 {
		t.Fatalf("expected exactly one image attached to the call, got %+v", mock.Calls)
	}
}

func TestVLMProcessor_RejectsNonImageInput(t *testing.T) {
	mock := &model.MockChatModel{}
	proc := newTestVLM(t, mock)

	payload := pipeline.NewRootPayload("job-1", "doc.txt", []byte("plain text content"))
	result := proc.Execute(context.Background(), payload)

	if result.Status != pipeline.StatusFailure {
		t.Fatalf("expected failure for non-image input, got %+v", result)
	}
	if mock.CallCount() != 0 {
		t.Fatalf("expected no model call for rejected input, got %d calls", mock.CallCount())
	}
}

func TestVLMProcessor_PropagatesModelError(t *testing.T) {
	mock := &model.MockChatModel{Err: context.Canceled}
	proc := newTestVLM(t, mock)

	payload := pipeline.NewRootPayload("job-1", "page.png", pngSignature)
	result := proc.Execute(context.Background(), payload)

	if result.Status != pipeline.StatusFailure {
		t.Fatalf("expected failure when the model call errors, got %+v", result)
	}
}

func TestVLMProcessor_ValidateConfigRejectsNonPositiveMaxTokens(t *testing.T) {
	proc := newTestVLM(t, &model.MockChatModel{})
	proc.maxTokens = 0
	if err := proc.ValidateConfig(); err == nil {
		t.Fatal("expected error for non-positive max_tokens")
	}
}

func TestVLMProcessor_ValidateConfigRejectsEmptyPrompt(t *testing.T) {
	proc := newTestVLM(t, &model.MockChatModel{})
	proc.prompt = ""
	if err := proc.ValidateConfig(); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
