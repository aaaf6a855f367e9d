package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/docpipe/engine/pipeline/model"
)

func TestNewChatModel_DefaultsModelNameWhenEmpty(t *testing.T) {
	m := NewChatModel("test-key", "")
	if m.modelName == "" {
		t.Fatal("expected a default model name when none is given")
	}
}

func TestNewChatModel_KeepsExplicitModelName(t *testing.T) {
	m := NewChatModel("test-key", "claude-3-haiku-20240307")
	if m.modelName != "claude-3-haiku-20240307" {
		t.Fatalf("expected configured model name to be kept, got %q", m.modelName)
	}
}

func TestChatModel_Chat_ReturnsClientResponse(t *testing.T) {
	mock := &mockAnthropicClient{response: "a scanned invoice, page 1 of 3"}
	m := &ChatModel{client: mock, modelName: "claude-3-haiku-20240307"}

	out, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "describe this page"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "a scanned invoice, page 1 of 3" {
		t.Fatalf("unexpected text: %q", out.Text)
	}
	if mock.callCount != 1 {
		t.Fatalf("expected exactly one call, got %d", mock.callCount)
	}
}

func TestChatModel_Chat_ExtractsSystemPromptFromMessages(t *testing.T) {
	mock := &mockAnthropicClient{response: "ok"}
	m := &ChatModel{client: mock, modelName: "claude-3-haiku-20240307"}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: "You are a document classifier."},
		{Role: model.RoleUser, Content: "Classify this document."},
	}
	if _, err := m.Chat(context.Background(), messages, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.systemPrompt != "You are a document classifier." {
		t.Fatalf("expected system prompt extracted, got %q", mock.systemPrompt)
	}
	if len(mock.lastMessages) != 1 || mock.lastMessages[0].Role != model.RoleUser {
		t.Fatalf("expected only the non-system message forwarded, got %+v", mock.lastMessages)
	}
}

func TestChatModel_Chat_RespectsCancelledContext(t *testing.T) {
	mock := &mockAnthropicClient{response: "unreachable"}
	m := &ChatModel{client: mock, modelName: "claude-3-haiku-20240307"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected cancelled context to produce an error")
	}
	if mock.callCount != 0 {
		t.Fatalf("expected no client call once the context is already cancelled, got %d", mock.callCount)
	}
}

func TestChatModel_Chat_PropagatesClientError(t *testing.T) {
	mock := &mockAnthropicClient{err: &anthropicError{Type: "rate_limit_error", Message: "too many requests"}}
	m := &ChatModel{client: mock, modelName: "claude-3-haiku-20240307"}

	_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	var anthropicErr *anthropicError
	if !errors.As(err, &anthropicErr) {
		t.Fatalf("expected *anthropicError to survive errors.As, got %T", err)
	}
}

func TestDefaultClient_CreateMessageRequiresAPIKey(t *testing.T) {
	c := &defaultClient{apiKey: "", modelName: "claude-3-haiku-20240307"}
	_, err := c.createMessage(context.Background(), "", []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error when apiKey is empty")
	}
}

type mockAnthropicClient struct {
	response     string
	toolCalls    []model.ToolCall
	err          error
	callCount    int
	lastMessages []model.Message
	systemPrompt string
}

func (m *mockAnthropicClient) createMessage(_ context.Context, systemPrompt string, messages []model.Message, _ []model.ToolSpec) (model.ChatOut, error) {
	m.callCount++
	m.lastMessages = messages
	m.systemPrompt = systemPrompt

	if m.err != nil {
		return model.ChatOut{}, m.err
	}
	return model.ChatOut{Text: m.response, ToolCalls: m.toolCalls}, nil
}
