package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

type Ollama struct {
	Host   string
	client *ollama.Client
}

func NewOllama(host string) (*Ollama, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "http://localhost:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	return &Ollama{
		Host:   host,
		client: ollama.NewClient(base, http.DefaultClient),
	}, nil
}

func (p *Ollama) Name() string {
	return "ollama"
}

func (p *Ollama) Ping(ctx context.Context) error {
	if _, err := p.client.List(ctx); err != nil {
		return fmt.Errorf("ollama not reachable at %s: %w", p.Host, err)
	}
	return nil
}

func (p *Ollama) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local models: %w", err)
	}
	models := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (p *Ollama) Complete(ctx context.Context, creq CompletionRequest) (CompletionResponse, error) {
	var messages []ollama.Message
	if strings.TrimSpace(creq.System) != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: creq.System})
	}
	// Local models get the tool catalog as prompt text rather than native
	// tool definitions. Smaller models follow the explicit JSON contract
	// more reliably than the tools API.
	if len(creq.Tools) > 0 {
		messages = append(messages, ollama.Message{Role: "system", Content: formatToolsForPrompt(creq.Tools)})
	}
	if creq.ForceJSON {
		messages = append(messages, ollama.Message{Role: "system", Content: "Respond with a single JSON object and nothing else."})
	}
	for _, m := range creq.Messages {
		role := m.Role
		content := m.Content
		switch {
		case m.Role == "tool":
			role = "user"
			content = fmt.Sprintf("Tool result for %s:\n%s", m.ToolCallID, m.Content)
		case m.Role == "assistant" && len(m.ToolCalls) > 0 && strings.TrimSpace(content) == "":
			raw, _ := json.Marshal(m.ToolCalls)
			content = string(raw)
		}
		messages = append(messages, ollama.Message{Role: role, Content: content})
	}

	options := map[string]interface{}{
		"temperature": creq.Temperature,
	}
	if creq.MaxTokens > 0 {
		options["num_predict"] = creq.MaxTokens
	}

	req := &ollama.ChatRequest{
		Model:    creq.Model,
		Messages: messages,
		Options:  options,
	}

	var out strings.Builder
	respFunc := func(res ollama.ChatResponse) error {
		out.WriteString(res.Message.Content)
		return nil
	}
	if err := p.client.Chat(ctx, req, respFunc); err != nil {
		return CompletionResponse{}, fmt.Errorf("ollama chat failed: %w", err)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return CompletionResponse{}, fmt.Errorf("empty response from ollama")
	}

	resp := CompletionResponse{Text: text, StopReason: "stop"}
	if len(creq.Tools) > 0 {
		if calls := parsePromptToolCalls(text); len(calls) > 0 {
			resp.ToolCalls = calls
			resp.Text = ""
		}
	}
	return resp, nil
}

func formatToolsForPrompt(tools []Tool) string {
	var sb strings.Builder
	sb.WriteString("You have access to the following tools:\n\n")
	for _, tool := range tools {
		sb.WriteString(fmt.Sprintf("Tool: %s\n", tool.Name))
		sb.WriteString(fmt.Sprintf("Description: %s\n", tool.Description))
		if tool.InputSchema != nil {
			if raw, err := json.Marshal(tool.InputSchema); err == nil {
				sb.WriteString(fmt.Sprintf("Arguments schema: %s\n", raw))
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("To use a tool, respond with a JSON object in this format:\n")
	sb.WriteString(`{"tool_call": {"name": "tool_name", "arguments": {...}}}`)
	sb.WriteString("\nOtherwise respond normally.\n")
	return sb.String()
}

// parsePromptToolCalls recovers a tool_call object from model text. Accepts
// the bare object or one wrapped in a code fence.
func parsePromptToolCalls(text string) []ToolCall {
	candidate := strings.TrimSpace(text)
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimPrefix(candidate, "```json")
		candidate = strings.TrimPrefix(candidate, "```")
		if idx := strings.LastIndex(candidate, "```"); idx >= 0 {
			candidate = candidate[:idx]
		}
		candidate = strings.TrimSpace(candidate)
	}
	if !strings.HasPrefix(candidate, "{") {
		start := strings.Index(candidate, "{")
		end := strings.LastIndex(candidate, "}")
		if start < 0 || end <= start {
			return nil
		}
		candidate = candidate[start : end+1]
	}

	var wrapper struct {
		ToolCall *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(candidate), &wrapper); err != nil || wrapper.ToolCall == nil {
		return nil
	}
	if strings.TrimSpace(wrapper.ToolCall.Name) == "" {
		return nil
	}
	args := wrapper.ToolCall.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return []ToolCall{{
		ID:        "call_0",
		Name:      wrapper.ToolCall.Name,
		Arguments: args,
	}}
}
