package processors

import (
	"fmt"
	"os"

	"github.com/docpipe/engine/pipeline/model"
	"github.com/docpipe/engine/pipeline/model/anthropic"
	"github.com/docpipe/engine/pipeline/model/google"
	"github.com/docpipe/engine/pipeline/model/openai"
)

// buildChatModel resolves the {provider, model} pair shared by vlm,
// classifier and sentiment into a concrete pipeline/model.ChatModel,
// reading the provider's API key from ANTHROPIC_API_KEY, OPENAI_API_KEY
// or GOOGLE_API_KEY.
// temperature may be nil (provider default); maxTokens <= 0 leaves the
// provider default.
func buildChatModel(provider, modelName string, temperature *float64, maxTokens int) (model.ChatModel, error) {
	switch provider {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		opts := []anthropic.Option{anthropic.WithMaxTokens(maxTokens)}
		if temperature != nil {
			opts = append(opts, anthropic.WithTemperature(*temperature))
		}
		return anthropic.NewChatModel(apiKey, modelName, opts...), nil
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		opts := []openai.Option{openai.WithMaxTokens(maxTokens)}
		if temperature != nil {
			opts = append(opts, openai.WithTemperature(*temperature))
		}
		return openai.NewChatModel(apiKey, modelName, opts...), nil
	case "google":
		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY is not set")
		}
		opts := []google.Option{google.WithMaxTokens(maxTokens)}
		if temperature != nil {
			opts = append(opts, google.WithTemperature(*temperature))
		}
		return google.NewChatModel(apiKey, modelName, opts...), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q (known: anthropic, openai, google)", provider)
	}
}
