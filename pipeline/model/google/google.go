// Package google adapts Google's Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/docpipe/engine/pipeline/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ChatModel implements model.ChatModel for Gemini, including inline
// image blobs for the vlm processor.
type ChatModel struct {
	apiKey    string
	modelName string
	client    googleClient
}

type googleClient interface {
	generateContent(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// Option adjusts sampling settings on a ChatModel.
type Option func(*defaultClient)

// WithMaxTokens caps the response's token budget. Unset leaves the
// provider default.
func WithMaxTokens(n int) Option {
	return func(c *defaultClient) {
		if n > 0 {
			c.maxTokens = int32(n)
		}
	}
}

// WithTemperature sets the sampling temperature. Unset leaves the
// provider default.
func WithTemperature(t float64) Option {
	return func(c *defaultClient) {
		temp := float32(t)
		c.temperature = &temp
	}
}

// NewChatModel builds a ChatModel for modelName (default
// "gemini-2.5-flash" if empty).
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	client := &defaultClient{apiKey: apiKey, modelName: modelName}
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

	out, err := m.client.generateContent(ctx, messages, tools)
	if err != nil {
		var safetyErr *SafetyFilterError
		if errors.As(err, &safetyErr) {
			return model.ChatOut{}, safetyErr
		}
		return model.ChatOut{}, err
	}
	return out, nil
}

type defaultClient struct {
	apiKey      string
	modelName   string
	maxTokens   int32
	temperature *float32
}

func (c *defaultClient) generateContent(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("failed to create google client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	if c.maxTokens > 0 {
		genModel.SetMaxOutputTokens(c.maxTokens)
	}
	if c.temperature != nil {
		genModel.SetTemperature(*c.temperature)
	}
	if len(tools) > 0 {
		genModel.Tools = convertTools(tools)
	}

	systemPrompt, conversation := extractSystemPrompt(messages)
	if systemPrompt != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := genModel.GenerateContent(ctx, convertMessages(conversation)...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}
	return convertResponse(resp), nil
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

func convertMessages(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
		for _, img := range msg.Images {
			parts = append(parts, genai.ImageData(imageFormat(img.MediaType), img.Data))
		}
	}
	return parts
}

func imageFormat(mediaType string) string {
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchemaToGenai(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertSchemaToGenai(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	result := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		properties := make(map[string]*genai.Schema)
		for key, val := range props {
			propMap, ok := val.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema := &genai.Schema{}
			if typeStr, ok := propMap["type"].(string); ok {
				propSchema.Type = convertTypeString(typeStr)
			}
			if desc, ok := propMap["description"].(string); ok {
				propSchema.Description = desc
			}
			properties[key] = propSchema
		}
		result.Properties = properties
	}
	if required, ok := schema["required"].([]string); ok {
		result.Required = required
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out
}

// SafetyFilterError reports that Gemini blocked a response via its
// content safety filters.
type SafetyFilterError struct {
	Reason   string
	Category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.Category
}
