package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	// max_tokens is mandatory on the messages API; this cap applies when
	// the caller does not set one.
	anthropicMaxTokens = 8192
)

// Anthropic speaks the Claude messages API with native tool_use and
// tool_result content blocks.
type Anthropic struct {
	Client *http.Client
}

func NewAnthropic() *Anthropic {
	return &Anthropic{Client: &http.Client{}}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) apiKey() (string, error) {
	key, err := APIKeyFor("anthropic")
	if err != nil || strings.TrimSpace(key) == "" {
		return "", &ProviderAuthError{ProviderName: "anthropic", Msg: "API key not found. Run `wpforge auth set anthropic` or export ANTHROPIC_API_KEY."}
	}
	return key, nil
}

// Ping checks key presence only; the messages API has no unauthenticated
// health endpoint.
func (p *Anthropic) Ping(ctx context.Context) error {
	_, err := p.apiKey()
	return err
}

func (p *Anthropic) send(ctx context.Context, method, path string, payload io.Reader) (*http.Response, error) {
	key, err := p.apiKey()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, anthropicBaseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicVersion)
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}
	return p.Client.Do(req)
}

func anthropicStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ProviderAuthError{ProviderName: "anthropic", Msg: "Unauthorized: Invalid API key"}
	}
	return fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (p *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.send(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, anthropicStatusError(resp)
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(listing.Data))
	for _, entry := range listing.Data {
		if id := strings.TrimSpace(entry.ID); id != "" {
			models = append(models, id)
		}
	}
	return models, nil
}

// Wire types for /messages. Content always uses the block-array form so
// text, tool_use and tool_result ride through one shape.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

func (p *Anthropic) Complete(ctx context.Context, creq CompletionRequest) (CompletionResponse, error) {
	system, msgs := anthropicConversation(creq)

	wireReq := anthropicRequest{
		Model:       creq.Model,
		MaxTokens:   creq.MaxTokens,
		Temperature: creq.Temperature,
		System:      system,
		Messages:    msgs,
		// Tool turns come back as structured blocks, so only plain text
		// turns stream.
		Stream: len(creq.Tools) == 0,
	}
	if wireReq.MaxTokens <= 0 {
		wireReq.MaxTokens = anthropicMaxTokens
	}
	for _, t := range creq.Tools {
		wireReq.Tools = append(wireReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	encoded, err := json.Marshal(wireReq)
	if err != nil {
		return CompletionResponse{}, err
	}
	resp, err := p.send(ctx, http.MethodPost, "/messages", bytes.NewReader(encoded))
	if err != nil {
		return CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, anthropicStatusError(resp)
	}

	if wireReq.Stream && strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/event-stream") {
		text, err := decodeAnthropicStream(resp.Body)
		if err != nil {
			return CompletionResponse{}, err
		}
		return CompletionResponse{Text: text, StopReason: "end_turn"}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, err
	}
	return decodeAnthropicResponse(body)
}

// anthropicConversation folds system content into the top-level system
// string and converts the rest of the transcript into block-form messages.
func anthropicConversation(creq CompletionRequest) (string, []anthropicMessage) {
	sysParts := make([]string, 0, 2)
	if strings.TrimSpace(creq.System) != "" {
		sysParts = append(sysParts, creq.System)
	}
	if creq.ForceJSON {
		// No response_format equivalent on this API; an instruction is
		// the documented way to get bare JSON back.
		sysParts = append(sysParts, "Respond with a single JSON object and no surrounding prose.")
	}

	var msgs []anthropicMessage
	for _, m := range creq.Messages {
		switch {
		case m.Role == "system":
			sysParts = append(sysParts, m.Content)
		case m.Role == "tool":
			msgs = append(msgs, anthropicMessage{
				Role: "user",
				Content: []anthropicBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			blocks := make([]anthropicBlock, 0, len(m.ToolCalls)+1)
			if strings.TrimSpace(m.Content) != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: toolInputJSON(tc.Arguments),
				})
			}
			msgs = append(msgs, anthropicMessage{Role: "assistant", Content: blocks})
		default:
			msgs = append(msgs, anthropicMessage{
				Role:    m.Role,
				Content: []anthropicBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	return strings.TrimSpace(strings.Join(sysParts, "\n")), msgs
}

// toolInputJSON guards replayed tool arguments. tool_use blocks need a JSON
// object and a model occasionally emits broken argument JSON.
func toolInputJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`{}`)
	}
	return raw
}

// decodeAnthropicResponse parses a non-streaming messages response, pulling
// text and tool_use blocks apart.
func decodeAnthropicResponse(body []byte) (CompletionResponse, error) {
	var msg struct {
		Content    []anthropicBlock `json:"content"`
		StopReason string           `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return CompletionResponse{}, fmt.Errorf("anthropic: decode response: %w", err)
	}

	out := CompletionResponse{
		StopReason: msg.StopReason,
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	var text []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if t := strings.TrimSpace(block.Text); t != "" {
				text = append(text, t)
			}
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	out.Text = strings.Join(text, "\n")
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return CompletionResponse{}, fmt.Errorf("empty response from anthropic")
	}
	return out, nil
}

// decodeAnthropicStream concatenates text deltas from an SSE body.
func decodeAnthropicStream(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var out strings.Builder
	for sc.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var ev struct {
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
			ContentBlock struct {
				Text string `json:"text"`
			} `json:"content_block"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		out.WriteString(ev.Delta.Text)
		out.WriteString(ev.ContentBlock.Text)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("empty response from anthropic")
	}
	return text, nil
}
