package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wpforge-dev/wpforge/internal/pipeline"
	"github.com/wpforge-dev/wpforge/internal/plugin"
)

func newTestModel() *RunModel {
	ctx, cancel := context.WithCancel(context.Background())
	orch := &pipeline.Orchestrator{
		Model:   "gpt-4o",
		Options: pipeline.Options{Prompt: "Build a contact form plugin"},
	}
	events := make(chan pipeline.RunEvent, 16)
	m := NewRunModel(ctx, cancel, orch, events)
	m.width = 100
	return m
}

func TestRunViewListsAllPhases(t *testing.T) {
	t.Parallel()

	m := newTestModel()
	view := m.View()
	for _, phase := range pipeline.Phases() {
		if !strings.Contains(view, string(phase)) {
			t.Errorf("view is missing phase %s:\n%s", phase, view)
		}
	}
	if !strings.Contains(view, "Build a contact form plugin") {
		t.Errorf("view is missing the prompt:\n%s", view)
	}
	if !strings.Contains(view, "ctrl+c to cancel") {
		t.Errorf("view is missing the cancel hint:\n%s", view)
	}
}

func TestRunViewAppliesEvents(t *testing.T) {
	t.Parallel()

	m := newTestModel()
	m.apply(pipeline.RunEvent{Phase: pipeline.PhaseSpecification, State: pipeline.StateOK, Attempt: 1, At: time.Now()})
	m.apply(pipeline.RunEvent{Phase: pipeline.PhaseGeneration, State: pipeline.StateRunning, Attempt: 2, At: time.Now()})
	m.apply(pipeline.RunEvent{Phase: pipeline.PhaseGeneration, State: pipeline.StateRunning, Attempt: 2, Detail: "write_file: writing my-plugin.php", At: time.Now()})

	view := m.View()
	if !strings.Contains(view, "✓") {
		t.Errorf("finished phase should show a check mark:\n%s", view)
	}
	if !strings.Contains(view, "(attempt 2)") {
		t.Errorf("retries should be visible:\n%s", view)
	}
	if !strings.Contains(view, "write_file") {
		t.Errorf("tool activity should reach the tail:\n%s", view)
	}
}

func TestRunViewTailIsBounded(t *testing.T) {
	t.Parallel()

	m := newTestModel()
	for i := 0; i < tailLines*3; i++ {
		m.apply(pipeline.RunEvent{
			Phase:  pipeline.PhaseGeneration,
			State:  pipeline.StateRunning,
			Detail: "write_file: writing file",
			At:     time.Now(),
		})
	}
	if len(m.tail) != tailLines {
		t.Errorf("tail holds %d lines, want %d", len(m.tail), tailLines)
	}
}

func TestRunViewCancelKeyRequestsCancellation(t *testing.T) {
	t.Parallel()

	m := newTestModel()
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(*RunModel)

	if !m.cancelRequested {
		t.Fatal("ctrl+c should request cancellation")
	}
	if m.ctx.Err() == nil {
		t.Fatal("the run context should be cancelled")
	}
	if !strings.Contains(m.View(), "cancelling") {
		t.Errorf("view should announce the cancellation:\n%s", m.View())
	}
}

func TestRunViewQuitsWhenFinished(t *testing.T) {
	t.Parallel()

	m := newTestModel()
	updated, cmd := m.Update(RunFinishedMsg{Run: &plugin.Run{Status: plugin.StatusSuccess}})
	m = updated.(*RunModel)

	if cmd == nil {
		t.Fatal("a finished run should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg, got %T", cmd())
	}
	run, err := m.Result()
	if err != nil || run == nil || run.Status != plugin.StatusSuccess {
		t.Fatalf("Result() = %v, %v", run, err)
	}
}

func TestRunViewRearmsEventWaiter(t *testing.T) {
	t.Parallel()

	m := newTestModel()
	_, cmd := m.Update(pipeline.RunEvent{Phase: pipeline.PhaseSpecification, State: pipeline.StateRunning, Attempt: 1})
	if cmd == nil {
		t.Fatal("an applied event should re-arm the channel waiter")
	}

	// The zero event from a closed channel must not re-arm.
	_, cmd = m.Update(pipeline.RunEvent{})
	if cmd != nil {
		t.Fatal("a zero event should stop the waiter loop")
	}
}

func TestStatusBarShowsModelAndStatus(t *testing.T) {
	t.Parallel()

	sb := NewStatusBarModel("gpt-4o")
	sb.SetWidth(100)
	sb.Status = "running generation"

	view := sb.View()
	if !strings.Contains(view, "gpt-4o") {
		t.Errorf("status bar should show the model: %q", view)
	}
	if !strings.Contains(view, "running generation") {
		t.Errorf("status bar should show the status: %q", view)
	}
	if !strings.Contains(view, "[wpforge]") {
		t.Errorf("status bar should carry the app tag: %q", view)
	}
}

func TestTruncateLineKeepsShortStrings(t *testing.T) {
	t.Parallel()

	if got := truncateLine("short", 40); got != "short" {
		t.Errorf("truncateLine = %q", got)
	}
	long := strings.Repeat("a", 60)
	got := truncateLine(long, 20)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("long lines end with an ellipsis: %q", got)
	}
	if len([]rune(got)) != 20 {
		t.Errorf("truncated to %d runes, want 20", len([]rune(got)))
	}
}
