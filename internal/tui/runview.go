package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wpforge-dev/wpforge/internal/pipeline"
	"github.com/wpforge-dev/wpforge/internal/plugin"
)

var (
	titleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	promptStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	phaseOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	phaseFailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	phaseIdleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	phaseRunStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	phaseLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	detailStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	tailStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cancelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

const tailLines = 8

// RunFinishedMsg carries the pipeline result into the update loop.
type RunFinishedMsg struct {
	Run *plugin.Run
	Err error
}

// RunModel is the live progress view for one pipeline run: the phase list,
// a tail of recent tool activity, and a status bar.
type RunModel struct {
	ctx    context.Context
	cancel context.CancelFunc
	orch   *pipeline.Orchestrator
	events chan pipeline.RunEvent

	spin      spinner.Model
	statusbar *StatusBarModel

	prompt   string
	states   map[pipeline.Phase]pipeline.PhaseState
	attempts map[pipeline.Phase]int
	details  map[pipeline.Phase]string
	tail     []string

	width           int
	cancelRequested bool
	done            bool
	run             *plugin.Run
	err             error
}

func NewRunModel(ctx context.Context, cancel context.CancelFunc, orch *pipeline.Orchestrator, events chan pipeline.RunEvent) *RunModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = phaseRunStyle

	return &RunModel{
		ctx:       ctx,
		cancel:    cancel,
		orch:      orch,
		events:    events,
		spin:      s,
		statusbar: NewStatusBarModel(orch.Model),
		prompt:    orch.Options.Prompt,
		states:    make(map[pipeline.Phase]pipeline.PhaseState),
		attempts:  make(map[pipeline.Phase]int),
		details:   make(map[pipeline.Phase]string),
	}
}

// Result returns the finished run once the program has quit.
func (m *RunModel) Result() (*plugin.Run, error) {
	return m.run, m.err
}

func (m *RunModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.startRunCmd(), waitForRunEvent(m.events))
}

func (m *RunModel) startRunCmd() tea.Cmd {
	return func() tea.Msg {
		run, err := m.orch.Run(m.ctx)
		return RunFinishedMsg{Run: run, Err: err}
	}
}

func waitForRunEvent(ch chan pipeline.RunEvent) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m *RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.statusbar.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelRequested {
				m.cancelRequested = true
				m.statusbar.Status = "cancelling"
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case pipeline.RunEvent:
		if msg.Phase == "" {
			// Zero event from a closed channel; nothing left to watch.
			return m, nil
		}
		m.apply(msg)
		return m, waitForRunEvent(m.events)

	case RunFinishedMsg:
		m.done = true
		m.run = msg.Run
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *RunModel) apply(ev pipeline.RunEvent) {
	m.states[ev.Phase] = ev.State
	if ev.Attempt > 0 {
		m.attempts[ev.Phase] = ev.Attempt
	}
	if ev.State == pipeline.StateRunning && ev.Detail != "" {
		m.details[ev.Phase] = ev.Detail
		m.tail = append(m.tail, fmt.Sprintf("%s  %s: %s", ev.At.Format("15:04:05"), ev.Phase, ev.Detail))
		if len(m.tail) > tailLines {
			m.tail = m.tail[len(m.tail)-tailLines:]
		}
	}
	if !m.cancelRequested {
		switch ev.State {
		case pipeline.StateRunning:
			m.statusbar.Status = "running " + string(ev.Phase)
		case pipeline.StateFailed:
			m.statusbar.Status = string(ev.Phase) + " failed"
		}
	}
}

func (m *RunModel) View() string {
	var b strings.Builder

	width := m.width
	if width <= 0 {
		width = 80
	}

	b.WriteString(titleStyle.Render("wpforge"))
	b.WriteString("  ")
	b.WriteString(promptStyle.Render(truncateLine(m.prompt, width-12)))
	b.WriteString("\n\n")

	for _, phase := range pipeline.Phases() {
		b.WriteString(m.phaseLine(phase, width))
		b.WriteString("\n")
	}

	if len(m.tail) > 0 {
		b.WriteString("\n")
		for _, line := range m.tail {
			b.WriteString(tailStyle.Render(truncateLine(line, width-2)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if m.cancelRequested && !m.done {
		b.WriteString(cancelStyle.Render("● cancelling, waiting for the current step to stop"))
	} else if !m.done {
		b.WriteString(hintStyle.Render("ctrl+c to cancel"))
	}
	b.WriteString("\n")
	b.WriteString(m.statusbar.View())
	return b.String()
}

func (m *RunModel) phaseLine(phase pipeline.Phase, width int) string {
	state, seen := m.states[phase]
	if !seen {
		state = pipeline.StatePending
	}

	var glyph string
	switch state {
	case pipeline.StateRunning:
		glyph = m.spin.View()
	case pipeline.StateOK:
		glyph = phaseOKStyle.Render("✓")
	case pipeline.StateFailed:
		glyph = phaseFailStyle.Render("✗")
	case pipeline.StateSkipped:
		glyph = phaseIdleStyle.Render("○")
	default:
		glyph = phaseIdleStyle.Render("·")
	}

	label := phaseLabelStyle.Render(fmt.Sprintf("%-14s", string(phase)))
	if state == pipeline.StatePending || state == pipeline.StateSkipped {
		label = phaseIdleStyle.Render(fmt.Sprintf("%-14s", string(phase)))
	}

	suffix := ""
	if n := m.attempts[phase]; n > 1 {
		suffix = phaseRunStyle.Render(fmt.Sprintf(" (attempt %d)", n))
	}
	if state == pipeline.StateRunning {
		if detail := m.details[phase]; detail != "" {
			room := width - 22 - lipgloss.Width(suffix)
			suffix += "  " + detailStyle.Render(truncateLine(detail, room))
		}
	}
	return fmt.Sprintf("  %s %s%s", glyph, label, suffix)
}

func truncateLine(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

// RunProgram runs the progress view until the pipeline finishes or the user
// quits, returning the pipeline result.
func RunProgram(ctx context.Context, cancel context.CancelFunc, orch *pipeline.Orchestrator, events chan pipeline.RunEvent) (*plugin.Run, error) {
	model := NewRunModel(ctx, cancel, orch, events)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("render run progress: %w", err)
	}
	if m, ok := final.(*RunModel); ok {
		return m.Result()
	}
	return model.Result()
}
