package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/wpforge-dev/wpforge/internal/agent"
	"github.com/wpforge-dev/wpforge/internal/tools"
)

// PhaseState is the lifecycle of one phase as the TUI presents it.
type PhaseState string

const (
	StatePending PhaseState = "pending"
	StateRunning PhaseState = "running"
	StateOK      PhaseState = "ok"
	StateFailed  PhaseState = "failed"
	StateSkipped PhaseState = "skipped"
)

// RunEvent is one line of run narration. The orchestrator emits phase
// transitions itself and translates tool and agent activity into the same
// stream so the TUI has a single thing to consume.
type RunEvent struct {
	Phase   Phase
	State   PhaseState
	Attempt int
	Detail  string
	At      time.Time
}

func toolEventDetail(e tools.Event) string {
	detail := strings.TrimSpace(e.Detail)
	if detail == "" {
		return e.Tool
	}
	return fmt.Sprintf("%s: %s", e.Tool, detail)
}

func agentEventDetail(e agent.Event) string {
	switch e.Type {
	case agent.EventToolCall:
		return "requesting " + e.Detail
	case agent.EventToolResult:
		return e.Detail
	case agent.EventError:
		return "error: " + e.Detail
	default:
		return e.Detail
	}
}
