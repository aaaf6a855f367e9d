// Package anthropic adapts Anthropic's Claude API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/docpipe/engine/pipeline/model"
)

// ChatModel implements model.ChatModel for Claude, including image
// content for the vlm processor (Claude's vision models accept inline
// base64 images alongside text).
type ChatModel struct {
	apiKey    string
	modelName string
	client    anthropicClient
}

type anthropicClient interface {
	createMessage(ctx context.Context, systemPrompt string, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// Option adjusts sampling settings on a ChatModel.
type Option func(*defaultClient)

// WithMaxTokens overrides the default 4096 max-token budget.
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

// NewChatModel builds a ChatModel for modelName (default
// "claude-sonnet-4-5-20250929" if empty).
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	client := &defaultClient{apiKey: apiKey, modelName: modelName, maxTokens: 4096}
	for _, opt := range opts {
		opt(client)
	}
	return &ChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		client:    client,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	systemPrompt, conversation := extractSystemPrompt(messages)

	out, err := m.client.createMessage(ctx, systemPrompt, conversation, tools)
	if err != nil {
		var anthropicErr *anthropicError
		if errors.As(err, &anthropicErr) {
			return model.ChatOut{}, anthropicErr
		}
		return model.ChatOut{}, err
	}
	return out, nil
}

func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var systemPrompt string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return systemPrompt, conversation
}

type defaultClient struct {
	apiKey      string
	modelName   string
	maxTokens   int64
	temperature *float64
}

func (c *defaultClient) createMessage(ctx context.Context, systemPrompt string, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("anthropic API key is required")
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		Messages:  convertMessages(messages),
		MaxTokens: c.maxTokens,
	}
	if c.temperature != nil {
		params.Temperature = anthropicsdk.Float(*c.temperature)
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic API error: %w", err)
	}
	return convertResponse(resp), nil
}

func convertMessages(messages []model.Message) []anthropicsdk.MessageParam {
	result := make([]anthropicsdk.MessageParam, len(messages))
	for i, msg := range messages {
		blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, 1+len(msg.Images))
		if msg.Content != "" {
			blocks = append(blocks, anthropicsdk.NewTextBlock(msg.Content))
		}
		for _, img := range msg.Images {
			blocks = append(blocks, anthropicsdk.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
		}

		switch msg.Role {
		case model.RoleAssistant:
			result[i] = anthropicsdk.NewAssistantMessage(blocks...)
		default:
			result[i] = anthropicsdk.NewUserMessage(blocks...)
		}
	}
	return result
}

func convertTools(tools []model.ToolSpec) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, len(tools))
	for i, tool := range tools {
		var properties any
		var required []string
		if tool.Schema != nil {
			if props, ok := tool.Schema["properties"]; ok {
				properties = props
			}
			if req, ok := tool.Schema["required"].([]string); ok {
				required = req
			}
		}
		result[i] = anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        tool.Name,
				Description: anthropicsdk.String(tool.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: properties, Required: required},
			},
		}
	}
	return result
}

func convertResponse(resp *anthropicsdk.Message) model.ChatOut {
	out := model.ChatOut{
		Usage: model.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += b.Text
		case anthropicsdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:  b.Name,
				Input: convertToolInput(b.Input),
			})
		}
	}
	return out
}

func convertToolInput(input interface{}) map[string]interface{} {
	if input == nil {
		return nil
	}
	if m, ok := input.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"_raw": input}
}

// anthropicError is a translated Anthropic API error, preserving type
// information for callers using errors.As.
type anthropicError struct {
	Type    string
	Message string
}

func (e *anthropicError) Error() string { return e.Type + ": " + e.Message }
