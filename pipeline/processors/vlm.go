package processors

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/docpipe/engine/pipeline"
	"github.com/docpipe/engine/pipeline/model"
)

// vlmProcessor calls a configured vision-language model with a fixed
// prompt over the input image, emitting free-text analysis.
type vlmProcessor struct {
	pipeline.BaseProcessor
	chatModel   model.ChatModel
	prompt      string
	temperature float64
	maxTokens   int
	cost        *pipeline.CostTracker
	modelName   string
}

func newVLMProcessor(config pipeline.Config, base pipeline.BaseProcessor) (*vlmProcessor, error) {
	provider := config.String("provider", "anthropic")
	modelName := config.String("model", "")
	temperature := config.Float("temperature", 0.0)
	maxTokens := config.Int("max_tokens", 1024)
	chatModel, err := buildChatModel(provider, modelName, &temperature, maxTokens)
	if err != nil {
		return nil, err
	}
	return &vlmProcessor{
		BaseProcessor: base,
		chatModel:     chatModel,
		prompt:        config.String("prompt", "Describe this document image in detail."),
		temperature:   temperature,
		maxTokens:     maxTokens,
		cost:          pipeline.NewCostTracker(),
		modelName:     modelName,
	}, nil
}

func (p *vlmProcessor) ValidateConfig() error {
	if p.prompt == "" {
		return pipeline.NewConfigError("MISSING_PROMPT", "vlm: prompt must be non-empty")
	}
	if p.maxTokens <= 0 {
		return pipeline.NewConfigError("INVALID_MAX_TOKENS", "vlm: max_tokens must be positive")
	}
	return nil
}

func (p *vlmProcessor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()
	meta := pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}

	mimeType := http.DetectContentType(payload.FileContent)
	if !strings.HasPrefix(mimeType, "image/") {
		return pipeline.Failure(p.Name(), fmt.Sprintf("vlm: input is not an image (detected %q)", mimeType), meta, time.Since(start))
	}

	messages := []model.Message{
		{
			Role:    model.RoleUser,
			Content: p.prompt,
			Images:  []model.ImageContent{{MediaType: mimeType, Data: payload.FileContent}},
		},
	}

	out, err := p.chatModel.Chat(ctx, messages, nil)
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("vlm call failed: %v", err), meta, time.Since(start))
	}

	costUSD := p.cost.Record(p.modelName, out.Usage.InputTokens, out.Usage.OutputTokens)
	meta.Extra = map[string]any{
		"cost_usd":    costUSD,
		"tokens_used": out.Usage.InputTokens + out.Usage.OutputTokens,
	}

	sr := &pipeline.StructuredResults{Analysis: out.Text}
	return pipeline.Success(p.Name(), out.Text, sr, meta, time.Since(start))
}
