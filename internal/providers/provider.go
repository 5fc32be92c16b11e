package providers

import (
	"context"
	"encoding/json"
)

type Message struct {
	Role       string // "user" | "assistant" | "system" | "tool"
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall is a model-requested tool invocation. Arguments stays raw so each
// provider keeps its own argument encoding until the executor decodes it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	MaxTokens   int
	// ForceJSON asks the provider for a single JSON object response, using
	// whatever mechanism the API offers.
	ForceJSON bool
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type CompletionResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	ListModels(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
}

type ProviderAuthError struct {
	ProviderName string
	Msg          string
}

func (e *ProviderAuthError) Error() string {
	return e.Msg
}
