package processors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docpipe/engine/pipeline"
	"github.com/docpipe/engine/pipeline/model"
)

// classifierProcessor prompts a configured model to choose exactly one
// label from a closed set; any other answer is a failure.
type classifierProcessor struct {
	pipeline.BaseProcessor
	chatModel model.ChatModel
	prompt    string
	labels    []string
	cost      *pipeline.CostTracker
	modelName string
}

func newClassifierProcessor(config pipeline.Config, base pipeline.BaseProcessor) (*classifierProcessor, error) {
	provider := config.String("provider", "anthropic")
	modelName := config.String("model", "")
	chatModel, err := buildChatModel(provider, modelName, nil, config.Int("max_tokens", 0))
	if err != nil {
		return nil, err
	}
	return &classifierProcessor{
		BaseProcessor: base,
		chatModel:     chatModel,
		prompt:        config.String("prompt", "Classify this document."),
		labels:        config.StringSlice("labels"),
		cost:          pipeline.NewCostTracker(),
		modelName:     modelName,
	}, nil
}

func (p *classifierProcessor) ValidateConfig() error {
	if len(p.labels) == 0 {
		return pipeline.NewConfigError("EMPTY_LABELS", "classifier: labels must be non-empty")
	}
	return nil
}

func (p *classifierProcessor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()
	meta := pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}

	instruction := fmt.Sprintf("%s\n\nRespond with exactly one of the following labels and nothing else: %s",
		p.prompt, strings.Join(p.labels, ", "))

	messages := []model.Message{{Role: model.RoleUser, Content: instruction}}
	if isTextLike(payload.FileContent) {
		messages[0].Content = instruction + "\n\n" + string(payload.FileContent)
	}

	out, err := p.chatModel.Chat(ctx, messages, nil)
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("classifier call failed: %v", err), meta, time.Since(start))
	}

	costUSD := p.cost.Record(p.modelName, out.Usage.InputTokens, out.Usage.OutputTokens)
	meta.Extra = map[string]any{
		"cost_usd":    costUSD,
		"tokens_used": out.Usage.InputTokens + out.Usage.OutputTokens,
	}

	label := strings.TrimSpace(out.Text)
	if !contains(p.labels, label) {
		return pipeline.Failure(p.Name(), fmt.Sprintf("classifier: model returned %q, outside configured label set", label), meta, time.Since(start))
	}

	sr := &pipeline.StructuredResults{DocumentType: label}
	return pipeline.Success(p.Name(), label, sr, meta, time.Since(start))
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// isTextLike is a cheap heuristic: treat content as text if it has no
// null bytes in its first kilobyte.
func isTextLike(content []byte) bool {
	n := len(content)
	if n > 1024 {
		n = 1024
	}
	for _, b := range content[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}
