package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wpforge-dev/wpforge/internal/agent"
	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/tools"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"user cancelled", ErrUserCancelled, false},
		{"context cancelled", context.Canceled, false},
		{"wrapped cancellation", fmt.Errorf("specification phase: %w", context.Canceled), false},
		{"auth failure", &providers.ProviderAuthError{ProviderName: "openai", Msg: "invalid api key"}, false},
		{"auth failure under agent wrap", &agent.AgentError{
			Kind: agent.KindModelUnavailable, Role: agent.RoleSpecification,
			Message: "completion failed",
			Err:     &providers.ProviderAuthError{ProviderName: "anthropic", Msg: "expired key"},
		}, false},
		{"unknown tool", fmt.Errorf("dispatch: %w", tools.ErrUnknownTool), false},
		{"path escape", &tools.ToolError{Kind: tools.KindPathEscape, Tool: "read_file", Message: "path leaves the plugin directory"}, false},
		{"malformed output", &agent.AgentError{Kind: agent.KindMalformedOutput, Role: agent.RoleSpecification, Message: "no JSON object found"}, true},
		{"model unavailable", &agent.AgentError{Kind: agent.KindModelUnavailable, Role: agent.RoleGeneration, Message: "completion failed"}, true},
		{"tool loop exceeded", &agent.AgentError{Kind: agent.KindToolLoopExceeded, Role: agent.RoleTesting, Message: "no final answer after 12 tool loops"}, true},
		{"call deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Errorf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestPhaseErrorUnwraps(t *testing.T) {
	inner := &agent.AgentError{Kind: agent.KindMalformedOutput, Role: agent.RoleCompliance, Message: "no JSON object found"}
	err := &PhaseError{Phase: PhaseCompliance, Attempts: 3, Err: inner}

	if !agent.IsKind(err, agent.KindMalformedOutput) {
		t.Error("PhaseError should expose the wrapped agent error")
	}
	msg := err.Error()
	if want := "compliance phase failed after 3 attempt(s)"; !strings.Contains(msg, want) {
		t.Errorf("Error() = %q, want it to contain %q", msg, want)
	}
}

func TestPhasesAreOrdered(t *testing.T) {
	want := []Phase{PhaseSpecification, PhaseGeneration, PhaseCompliance, PhaseTesting, PhaseReporting}
	got := Phases()
	if len(got) != len(want) {
		t.Fatalf("Phases() has %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Phases()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestIsUserCancelled(t *testing.T) {
	wrapped := &PhaseError{Phase: PhaseTesting, Attempts: 1, Err: ErrUserCancelled}
	if !IsUserCancelled(wrapped) {
		t.Error("IsUserCancelled should see through PhaseError")
	}
	if !IsUserCancelled(context.Canceled) {
		t.Error("context.Canceled should normalize to user cancellation")
	}
	if IsUserCancelled(errors.New("other")) {
		t.Error("unrelated errors are not cancellations")
	}
}
