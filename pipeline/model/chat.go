// Package model provides LLM chat adapters for the vlm, classifier, and
// sentiment processors.
package model

import "context"

// ChatModel abstracts the differences between LLM providers (Anthropic,
// OpenAI, Google) behind one interface, so a processor can be pointed at
// any of them by configuration alone.
type ChatModel interface {
	// Chat sends messages to the LLM and returns its response. tools may
	// be nil. Implementations must respect ctx cancellation.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Standard role constants, matching the conventions used by every major
// provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in a conversation. Images is non-empty only for a
// vlm call against a page image; providers that received Images but don't
// support vision ignore them rather than failing.
type Message struct {
	Role    string
	Content string
	Images  []ImageContent
}

// ImageContent is an inline image attached to a user Message, the unit
// the vlm processor uses to hand a rendered page to the model.
type ImageContent struct {
	// MediaType is the image's MIME type, e.g. "image/png".
	MediaType string
	Data      []byte
}

// ToolSpec describes a tool the LLM may call, in JSON Schema form.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a request from the LLM to invoke one ToolSpec.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// ChatOut is an LLM's response: free text, tool calls, or both, plus the
// token usage the cost tracker needs.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Usage reports the token accounting for one Chat call, used by
// pipeline/cost.go to price the call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
