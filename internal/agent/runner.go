package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/tools"
)

// DefaultMaxLoops bounds how many tool rounds an agent gets before the run
// is declared stuck.
const DefaultMaxLoops = 12

var ErrRunnerNotReady = errors.New("agent runner is not initialized")

// ToolExecution records one dispatched call as it actually ran. The pipeline
// reads this trace instead of trusting the model's account of what happened.
type ToolExecution struct {
	Tool    string
	Outcome tools.Outcome
	Output  string
}

// Output is what one agent run produced: the final message text, the ground
// truth of every tool call, and the token spend across all loops.
type Output struct {
	Text  string
	Trace []ToolExecution
	Loops int
	Usage providers.Usage
}

// Runner drives one phase agent: completion, tool dispatch, repeat until the
// model answers without requesting tools or the loop budget runs out.
type Runner struct {
	Def      Definition
	Provider providers.Provider
	Model    string
	// Catalog is the full tool catalog; Run narrows it to Def.AllowedTools.
	Catalog   tools.Registry
	MaxLoops  int
	MaxTokens int
	Log       *zap.Logger
	OnEvent   func(Event)
}

func (r *Runner) Validate() error {
	if r == nil {
		return ErrRunnerNotReady
	}
	if r.Def.Role == "" {
		return fmt.Errorf("agent definition is empty")
	}
	if r.Provider == nil {
		return fmt.Errorf("%s agent provider is not configured", r.Def.Role)
	}
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("%s agent model is empty", r.Def.Role)
	}
	return nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

func (r *Runner) emit(t EventType, detail string) {
	if r.OnEvent == nil {
		return
	}
	r.OnEvent(Event{Type: t, Role: r.Def.Role, Detail: detail, At: time.Now()})
}

// Run executes the agent loop. Instructions become the system message along
// with the tool contract; userMessage is the task itself. Both are scrubbed
// for secrets before leaving the process.
func (r *Runner) Run(ctx context.Context, instructions, userMessage string) (Output, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := r.Validate(); err != nil {
		return Output{}, err
	}
	if err := r.Provider.Ping(ctx); err != nil {
		return Output{}, &AgentError{Kind: KindModelUnavailable, Role: r.Def.Role, Message: "provider is not ready", Err: err}
	}

	subset := r.Catalog.Subset(r.Def.AllowedTools...)
	system := providers.Scrub(instructions)
	if block := subset.PromptBlock(); block != "" {
		system += "\n\n" + block
	}

	messages := []providers.Message{
		{Role: "user", Content: providers.Scrub(userMessage)},
	}

	maxLoops := r.MaxLoops
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}

	var out Output
	for loop := 0; loop < maxLoops; loop++ {
		r.emit(EventThinking, fmt.Sprintf("querying %s", r.Model))
		resp, err := r.Provider.Complete(ctx, providers.CompletionRequest{
			Model:       r.Model,
			System:      system,
			Messages:    messages,
			Tools:       subset.ProviderTools(),
			Temperature: providers.EffectiveTemperature(r.Model, r.Def.Temperature),
			MaxTokens:   r.MaxTokens,
			ForceJSON:   r.Def.ForceJSON,
		})
		if err != nil {
			return out, &AgentError{Kind: KindModelUnavailable, Role: r.Def.Role, Message: "completion failed", Err: err}
		}
		out.Usage.InputTokens += resp.Usage.InputTokens
		out.Usage.OutputTokens += resp.Usage.OutputTokens
		out.Loops = loop + 1

		if len(resp.ToolCalls) == 0 {
			out.Text = resp.Text
			r.emit(EventDone, "final answer received")
			return out, nil
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		results := make([]providers.Message, len(resp.ToolCalls))
		traces := make([]ToolExecution, len(resp.ToolCalls))
		g, gctx := errgroup.WithContext(ctx)
		for i, call := range resp.ToolCalls {
			r.emit(EventToolCall, call.Name)
			g.Go(func() error {
				res, err := subset.Dispatch(gctx, call)
				if err != nil {
					// A request for a tool outside the contract or a path
					// outside the workspace ends the phase immediately.
					if errors.Is(err, tools.ErrUnknownTool) || tools.IsKind(err, tools.KindPathEscape) {
						return err
					}
					r.logger().Warn("tool call failed",
						zap.String("role", string(r.Def.Role)),
						zap.String("tool", call.Name),
						zap.Error(err))
					traces[i] = ToolExecution{Tool: call.Name, Outcome: tools.OutcomeFailed, Output: err.Error()}
					results[i] = providers.Message{Role: "tool", ToolCallID: call.ID, Content: "error: " + err.Error()}
					return nil
				}
				traces[i] = ToolExecution{Tool: call.Name, Outcome: res.Outcome, Output: res.Output}
				results[i] = providers.Message{Role: "tool", ToolCallID: call.ID, Content: toolMessage(res)}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			r.emit(EventError, err.Error())
			return out, fmt.Errorf("%s agent: %w", r.Def.Role, err)
		}
		for i := range results {
			out.Trace = append(out.Trace, traces[i])
			messages = append(messages, results[i])
			r.emit(EventToolResult, fmt.Sprintf("%s: %s", traces[i].Tool, traces[i].Outcome))
		}
	}

	r.emit(EventError, "tool loop budget exhausted")
	return out, &AgentError{
		Kind:    KindToolLoopExceeded,
		Role:    r.Def.Role,
		Message: fmt.Sprintf("no final answer after %d tool loops", maxLoops),
	}
}

// toolMessage renders a tool result for the model. Unavailability is tagged
// so the testing agent can tell a missing host capability from a failure.
func toolMessage(res tools.Result) string {
	output := strings.TrimSpace(res.Output)
	if output == "" {
		output = "(no output)"
	}
	if res.Outcome == tools.OutcomeUnavailable {
		return "unavailable: " + output
	}
	return output
}
