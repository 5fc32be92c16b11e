package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	sbBaseStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("235")).Padding(0, 1)
	sbAppStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	sbModelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	sbStatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

type StatusBarModel struct {
	ModelName string
	Status    string
	width     int
	started   time.Time
}

func NewStatusBarModel(modelName string) *StatusBarModel {
	return &StatusBarModel{
		ModelName: modelName,
		Status:    "starting",
		started:   time.Now(),
	}
}

func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

func (m *StatusBarModel) View() string {
	elapsed := time.Since(m.started).Round(time.Second)
	left := fmt.Sprintf("%s %s %s",
		sbAppStyle.Render("[wpforge]"),
		sbModelStyle.Render(m.ModelName),
		sbStatusStyle.Render(m.Status))
	right := elapsed.String()

	gap := 1
	if m.width > 0 {
		used := lipgloss.Width(left) + len(right) + 2
		if pad := m.width - used; pad > 1 {
			gap = pad
		}
	}
	return sbBaseStyle.Render(left + strings.Repeat(" ", gap) + right)
}
