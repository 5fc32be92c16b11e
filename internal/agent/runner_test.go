package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/tools"
)

// scriptedProvider replays canned completions and records every request.
type scriptedProvider struct {
	replies     []providers.CompletionResponse
	completeErr error
	pingErr     error
	requests    []providers.CompletionRequest
}

func (p *scriptedProvider) Name() string                                     { return "scripted" }
func (p *scriptedProvider) Ping(ctx context.Context) error                   { return p.pingErr }
func (p *scriptedProvider) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (p *scriptedProvider) Complete(ctx context.Context, req providers.CompletionRequest) (providers.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.completeErr != nil {
		return providers.CompletionResponse{}, p.completeErr
	}
	idx := len(p.requests) - 1
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	return p.replies[idx], nil
}

func probeCall(id string) providers.ToolCall {
	return providers.ToolCall{ID: id, Name: "probe", Arguments: json.RawMessage(`{"path":"x.php"}`)}
}

func probeDefinition() Definition {
	return Definition{
		Role:         RoleCompliance,
		Temperature:  0.1,
		AllowedTools: []string{"probe"},
		ForceJSON:    true,
	}
}

func newProbeRunner(provider providers.Provider, execute func(context.Context, map[string]any) (tools.Result, error)) *Runner {
	return &Runner{
		Def:      probeDefinition(),
		Provider: provider,
		Model:    "test-model",
		Catalog: tools.NewRegistry(tools.Tool{
			Name:        "probe",
			Description: "inspect one file",
			Execute:     execute,
		}),
	}
}

func TestRunnerReturnsFinalAnswer(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{Text: `{"passed": true}`, Usage: providers.Usage{InputTokens: 10, OutputTokens: 4}},
	}}
	runner := newProbeRunner(provider, nil)

	out, err := runner.Run(context.Background(), "audit the plugin", "my prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"passed": true}`, out.Text)
	assert.Equal(t, 1, out.Loops)
	assert.Empty(t, out.Trace)
	assert.Equal(t, 10, out.Usage.InputTokens)

	require.Len(t, provider.requests, 1)
	req := provider.requests[0]
	assert.Contains(t, req.System, "audit the plugin")
	assert.Contains(t, req.System, "probe: inspect one file")
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
	assert.True(t, req.ForceJSON)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "my prompt", req.Messages[0].Content)
}

func TestRunnerDispatchesToolsBeforeAnswering(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{ToolCalls: []providers.ToolCall{probeCall("call_0")}, Usage: providers.Usage{InputTokens: 10, OutputTokens: 5}},
		{Text: `{"passed": true}`, Usage: providers.Usage{InputTokens: 20, OutputTokens: 7}},
	}}

	var gotPath string
	runner := newProbeRunner(provider, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		gotPath, _ = params["path"].(string)
		return tools.Result{Output: "all clear", Outcome: tools.OutcomeOK}, nil
	})

	var events []Event
	runner.OnEvent = func(e Event) { events = append(events, e) }

	out, err := runner.Run(context.Background(), "audit", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "x.php", gotPath)
	assert.Equal(t, 2, out.Loops)
	assert.Equal(t, providers.Usage{InputTokens: 30, OutputTokens: 12}, out.Usage)
	require.Len(t, out.Trace, 1)
	assert.Equal(t, ToolExecution{Tool: "probe", Outcome: tools.OutcomeOK, Output: "all clear"}, out.Trace[0])

	require.Len(t, provider.requests, 2)
	second := provider.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "user", second[0].Role)
	assert.Equal(t, "assistant", second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, "tool", second[2].Role)
	assert.Equal(t, "call_0", second[2].ToolCallID)
	assert.Equal(t, "all clear", second[2].Content)

	var types []EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventThinking, EventToolCall, EventToolResult, EventThinking, EventDone}, types)
}

func TestRunnerFoldsToolFailuresIntoTheConversation(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{ToolCalls: []providers.ToolCall{probeCall("call_0")}},
		{Text: `{"passed": false}`},
	}}
	runner := newProbeRunner(provider, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		return tools.Result{}, errors.New("disk full")
	})

	out, err := runner.Run(context.Background(), "audit", "prompt")
	require.NoError(t, err)
	require.Len(t, out.Trace, 1)
	assert.Equal(t, tools.OutcomeFailed, out.Trace[0].Outcome)

	second := provider.requests[1].Messages
	assert.Equal(t, "error: disk full", second[2].Content)
}

func TestRunnerTagsUnavailableResults(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{ToolCalls: []providers.ToolCall{probeCall("call_0")}},
		{Text: `{"results": []}`},
	}}
	runner := newProbeRunner(provider, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		return tools.Result{Output: "php binary not installed", Outcome: tools.OutcomeUnavailable}, nil
	})

	out, err := runner.Run(context.Background(), "test", "prompt")
	require.NoError(t, err)
	require.Len(t, out.Trace, 1)
	assert.Equal(t, tools.OutcomeUnavailable, out.Trace[0].Outcome)

	second := provider.requests[1].Messages
	assert.Equal(t, "unavailable: php binary not installed", second[2].Content)
}

func TestRunnerAbortsOnUnknownTool(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{ToolCalls: []providers.ToolCall{{ID: "call_0", Name: "rm_rf", Arguments: json.RawMessage(`{}`)}}},
	}}
	runner := newProbeRunner(provider, nil)

	_, err := runner.Run(context.Background(), "audit", "prompt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrUnknownTool))
	assert.Len(t, provider.requests, 1)
}

func TestRunnerAbortsOnPathEscape(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{ToolCalls: []providers.ToolCall{probeCall("call_0")}},
	}}
	runner := newProbeRunner(provider, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		return tools.Result{}, &tools.ToolError{Kind: tools.KindPathEscape, Tool: "probe", Message: "path escapes plugin workspace"}
	})

	_, err := runner.Run(context.Background(), "audit", "prompt")
	require.Error(t, err)
	assert.True(t, tools.IsKind(err, tools.KindPathEscape))
}

func TestRunnerStopsAtLoopBudget(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{replies: []providers.CompletionResponse{
		{ToolCalls: []providers.ToolCall{probeCall("call_0")}},
	}}
	runner := newProbeRunner(provider, func(ctx context.Context, params map[string]any) (tools.Result, error) {
		return tools.Result{Output: "all clear", Outcome: tools.OutcomeOK}, nil
	})
	runner.MaxLoops = 3

	out, err := runner.Run(context.Background(), "audit", "prompt")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindToolLoopExceeded))
	assert.Equal(t, 3, out.Loops)
	assert.Len(t, out.Trace, 3)
	assert.Len(t, provider.requests, 3)
}

func TestRunnerReportsProviderDown(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{pingErr: errors.New("connection refused")}
	runner := newProbeRunner(provider, nil)

	_, err := runner.Run(context.Background(), "audit", "prompt")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindModelUnavailable))
	assert.Empty(t, provider.requests)
}

func TestRunnerSurfacesAuthFailures(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{completeErr: &providers.ProviderAuthError{ProviderName: "openai", Msg: "invalid api key"}}
	runner := newProbeRunner(provider, nil)

	_, err := runner.Run(context.Background(), "audit", "prompt")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindModelUnavailable))
	var authErr *providers.ProviderAuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestRunnerValidates(t *testing.T) {
	t.Parallel()

	var nilRunner *Runner
	assert.ErrorIs(t, nilRunner.Validate(), ErrRunnerNotReady)

	missingModel := &Runner{Def: probeDefinition(), Provider: &scriptedProvider{}}
	assert.Error(t, missingModel.Validate())

	missingProvider := &Runner{Def: probeDefinition(), Model: "test-model"}
	assert.Error(t, missingProvider.Validate())
}
