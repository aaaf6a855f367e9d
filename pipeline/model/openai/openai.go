// Package openai adapts OpenAI's API to model.ChatModel.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docpipe/engine/pipeline/model"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// ChatModel implements model.ChatModel for OpenAI, with automatic retry
// on transient errors.
type ChatModel struct {
	apiKey     string
	modelName  string
	client     openaiClient
	maxRetries int
	retryDelay time.Duration
}

type openaiClient interface {
	createChatCompletion(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// Option adjusts sampling settings on a ChatModel.
type Option func(*defaultClient)

// WithMaxTokens caps the completion's token budget. Unset leaves the
// provider default.
func WithMaxTokens(n int) Option {
	return func(c *defaultClient) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// WithTemperature sets the sampling temperature. Unset leaves the
// provider default.
func WithTemperature(t float64) Option {
	return func(c *defaultClient) { c.temperature = &t }
}

// NewChatModel builds a ChatModel for modelName (default "gpt-4o" if
// empty), with 3 retries at a 1 second base delay.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	client := &defaultClient{apiKey: apiKey, modelName: modelName}
	for _, opt := range opts {
		opt(client)
	}
	return &ChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		client:     client,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		out, err := m.client.createChatCompletion(ctx, messages, tools)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !isTransientError(err) {
			return model.ChatOut{}, err
		}
		if attempt >= m.maxRetries {
			break
		}

		delay := m.retryDelay
		if isRateLimitError(err) {
			delay = m.retryDelay * time.Duration(attempt+1)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.ChatOut{}, ctx.Err()
		}
	}
	return model.ChatOut{}, fmt.Errorf("openai API failed after %d retries: %w", m.maxRetries, lastErr)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var rateLimitErr *rateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}
	msgLower := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "network", "connection", "temporary", "503", "502", "500"} {
		if strings.Contains(msgLower, pattern) {
			return true
		}
	}
	return false
}

func isRateLimitError(err error) bool {
	var rateLimitErr *rateLimitError
	return errors.As(err, &rateLimitErr)
}

type rateLimitError struct{ message string }

func (e *rateLimitError) Error() string { return e.message }

type defaultClient struct {
	apiKey      string
	modelName   string
	maxTokens   int64
	temperature *float64
}

func (c *defaultClient) createChatCompletion(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("openai API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: convertMessages(messages),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(c.maxTokens)
	}
	if c.temperature != nil {
		params.Temperature = openaisdk.Float(*c.temperature)
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai API error: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []model.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			if len(msg.Images) == 0 {
				result[i] = openaisdk.UserMessage(msg.Content)
				continue
			}
			parts := make([]openaisdk.ChatCompletionContentPartUnionParam, 0, 1+len(msg.Images))
			if msg.Content != "" {
				parts = append(parts, openaisdk.TextContentPart(msg.Content))
			}
			for _, img := range msg.Images {
				url := fmt.Sprintf("data:%s;base64,%s", img.MediaType, base64.StdEncoding.EncodeToString(img.Data))
				parts = append(parts, openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{URL: url}))
			}
			result[i] = openaisdk.UserMessage(parts)
		}
	}
	return result
}

func convertTools(tools []model.ToolSpec) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		result[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return result
}

func convertResponse(resp *openaisdk.ChatCompletion) model.ChatOut {
	out := model.ChatOut{
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	out.Text = msg.Content
	if len(msg.ToolCalls) > 0 {
		out.ToolCalls = make([]model.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			out.ToolCalls[i] = model.ToolCall{
				Name:  tc.Function.Name,
				Input: parseToolInput(tc.Function.Arguments),
			}
		}
	}
	return out
}

func parseToolInput(jsonStr string) map[string]interface{} {
	if jsonStr == "" {
		return nil
	}
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &input); err != nil {
		return map[string]interface{}{"_raw": jsonStr}
	}
	return input
}
