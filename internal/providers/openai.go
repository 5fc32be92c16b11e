package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAI speaks the chat completions API. The same client covers any
// OpenAI-compatible gateway (LiteLLM and friends) via BaseURL and KeyName.
type OpenAI struct {
	BaseURL string
	KeyName string // "openai" or the gateway's credential name
	Client  *http.Client
}

func NewOpenAI(baseURL, keyName string) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if keyName == "" {
		keyName = "openai"
	}
	return &OpenAI{
		BaseURL: strings.TrimRight(baseURL, "/"),
		KeyName: keyName,
		Client:  &http.Client{},
	}
}

func (p *OpenAI) Name() string { return p.KeyName }

func (p *OpenAI) apiKey() (string, error) {
	key, err := APIKeyFor(p.KeyName)
	if err != nil || key == "" {
		return "", &ProviderAuthError{ProviderName: p.KeyName, Msg: fmt.Sprintf("API key not found. Run `wpforge auth set %s` or export OPENAI_API_KEY.", p.KeyName)}
	}
	return key, nil
}

// Ping checks key presence only.
func (p *OpenAI) Ping(ctx context.Context) error {
	_, err := p.apiKey()
	return err
}

func (p *OpenAI) send(ctx context.Context, method, path string, payload io.Reader) (*http.Response, error) {
	key, err := p.apiKey()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.Client.Do(req)
}

func (p *OpenAI) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &ProviderAuthError{ProviderName: p.KeyName, Msg: "Unauthorized: Invalid API key"}
	}
	return fmt.Errorf("%s: status %d: %s", p.KeyName, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (p *OpenAI) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.send(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
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

// reasoningModel reports whether the model only accepts default sampling
// parameters and max_completion_tokens.
func reasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4")
}

// Wire types for /chat/completions.
type openAIRequest struct {
	Model               string          `json:"model"`
	Messages            []openAIMessage `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *openAIFormat   `json:"response_format,omitempty"`
	Tools               []openAITool    `json:"tools,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Type     string        `json:"type"`
	Function openAIToolDef `json:"function"`
}

type openAIToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

func (p *OpenAI) Complete(ctx context.Context, creq CompletionRequest) (CompletionResponse, error) {
	wireReq := openAIRequest{
		Model:    creq.Model,
		Messages: openAIMessages(creq),
	}
	if reasoningModel(creq.Model) {
		wireReq.MaxCompletionTokens = creq.MaxTokens
	} else {
		temp := creq.Temperature
		wireReq.Temperature = &temp
		wireReq.MaxTokens = creq.MaxTokens
	}
	if creq.ForceJSON {
		wireReq.ResponseFormat = &openAIFormat{Type: "json_object"}
	}
	for _, t := range creq.Tools {
		wireReq.Tools = append(wireReq.Tools, openAITool{
			Type: "function",
			Function: openAIToolDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	encoded, err := json.Marshal(wireReq)
	if err != nil {
		return CompletionResponse{}, err
	}
	resp, err := p.send(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return CompletionResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, p.statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, err
	}
	return decodeOpenAIResponse(body)
}

// openAIMessages converts the transcript, prepending the system prompt.
// Reasoning models take instructions under the developer role instead.
func openAIMessages(creq CompletionRequest) []openAIMessage {
	var msgs []openAIMessage
	if strings.TrimSpace(creq.System) != "" {
		role := "system"
		if reasoningModel(creq.Model) {
			role = "developer"
		}
		msgs = append(msgs, openAIMessage{Role: role, Content: creq.System})
	}
	for _, m := range creq.Messages {
		switch {
		case m.Role == "tool":
			msgs = append(msgs, openAIMessage{
				Role:       "tool",
				ToolCallID: m.ToolCallID,
				Content:    m.Content,
			})
		case m.Role == "assistant" && len(m.ToolCalls) > 0:
			reply := openAIMessage{Role: "assistant", Content: m.Content}
			for _, tc := range m.ToolCalls {
				args := strings.TrimSpace(string(tc.Arguments))
				if args == "" {
					args = "{}"
				}
				reply.ToolCalls = append(reply.ToolCalls, openAIToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: openAIFunction{Name: tc.Name, Arguments: args},
				})
			}
			msgs = append(msgs, reply)
		default:
			msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
		}
	}
	return msgs
}

// decodeOpenAIResponse parses a chat completion, extracting text content and
// any function tool calls from the first choice.
func decodeOpenAIResponse(body []byte) (CompletionResponse, error) {
	var result struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return CompletionResponse{}, fmt.Errorf("openai decode error: %w", err)
	}
	if len(result.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("empty response")
	}

	choice := result.Choices[0]
	resp := CompletionResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args := strings.TrimSpace(tc.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	if len(resp.ToolCalls) == 0 && resp.Text == "" {
		return CompletionResponse{}, fmt.Errorf("empty response")
	}
	return resp, nil
}
