package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docpipe/engine/pipeline"
	"github.com/docpipe/engine/pipeline/model"
)

// sentimentProcessor prompts a configured model to score the input text's
// sentiment, emitting {sentiment, score}.
type sentimentProcessor struct {
	pipeline.BaseProcessor
	chatModel model.ChatModel
	prompt    string
	cost      *pipeline.CostTracker
	modelName string
}

func newSentimentProcessor(config pipeline.Config, base pipeline.BaseProcessor) (*sentimentProcessor, error) {
	provider := config.String("provider", "anthropic")
	modelName := config.String("model", "")
	chatModel, err := buildChatModel(provider, modelName, nil, config.Int("max_tokens", 0))
	if err != nil {
		return nil, err
	}
	return &sentimentProcessor{
		BaseProcessor: base,
		chatModel:     chatModel,
		prompt: config.String("prompt",
			`Analyze the sentiment of the following text. Respond with a JSON object only, of the form {"sentiment": "positive"|"negative"|"neutral", "score": <integer -100..100>}.`),
		cost:      pipeline.NewCostTracker(),
		modelName: modelName,
	}, nil
}

func (p *sentimentProcessor) ValidateConfig() error {
	if p.prompt == "" {
		return pipeline.NewConfigError("MISSING_PROMPT", "sentiment: prompt must be non-empty")
	}
	return nil
}

type sentimentOutput struct {
	Sentiment string `json:"sentiment"`
	Score     int    `json:"score"`
}

func (p *sentimentProcessor) Execute(ctx context.Context, payload pipeline.Payload) pipeline.Result {
	start := time.Now()
	meta := pipeline.Metadata{PageNumber: payload.PageNumber, ParentDocumentID: payload.ParentDocumentID}

	messages := []model.Message{
		{Role: model.RoleUser, Content: p.prompt + "\n\n" + string(payload.FileContent)},
	}

	out, err := p.chatModel.Chat(ctx, messages, nil)
	if err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("sentiment call failed: %v", err), meta, time.Since(start))
	}

	costUSD := p.cost.Record(p.modelName, out.Usage.InputTokens, out.Usage.OutputTokens)
	meta.Extra = map[string]any{
		"cost_usd":    costUSD,
		"tokens_used": out.Usage.InputTokens + out.Usage.OutputTokens,
	}

	var parsed sentimentOutput
	if err := json.Unmarshal([]byte(extractJSON(out.Text)), &parsed); err != nil {
		return pipeline.Failure(p.Name(), fmt.Sprintf("sentiment: could not parse model output as JSON: %v", err), meta, time.Since(start))
	}

	switch parsed.Sentiment {
	case "positive", "negative", "neutral":
	default:
		return pipeline.Failure(p.Name(), fmt.Sprintf("sentiment: model returned invalid sentiment %q", parsed.Sentiment), meta, time.Since(start))
	}

	sr := &pipeline.StructuredResults{Sentiment: parsed.Sentiment, Score: parsed.Score}
	return pipeline.Success(p.Name(), fmt.Sprintf("%s (%d)", parsed.Sentiment, parsed.Score), sr, meta, time.Since(start))
}

// extractJSON trims any leading/trailing prose a model adds around its
// JSON answer, keeping only the outermost { ... } span.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
