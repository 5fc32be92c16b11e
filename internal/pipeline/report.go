package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/wpforge-dev/wpforge/internal/plugin"
)

var (
	reportTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	reportHeadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	reportOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	reportWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	reportFailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	reportDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	reportFaintStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// RenderReport formats the final run report as terminal text. plain strips
// styling for piped or logged output.
func RenderReport(run *plugin.Run, plain bool) string {
	r := &reporter{run: run, plain: plain}
	return r.render()
}

type reporter struct {
	run   *plugin.Run
	plain bool
	b     strings.Builder
}

func (r *reporter) paint(st lipgloss.Style, s string) string {
	if r.plain {
		return s
	}
	return st.Render(s)
}

func (r *reporter) line(format string, args ...any) {
	fmt.Fprintf(&r.b, format, args...)
	r.b.WriteByte('\n')
}

func (r *reporter) render() string {
	r.header()
	r.identity()
	r.phases()
	r.findings()
	r.tests()
	r.failure()
	r.footer()
	return r.b.String()
}

func (r *reporter) header() {
	badge := r.statusBadge()
	r.line("%s  %s", r.paint(reportTitleStyle, "wpforge run "+shortID(r.run.ID)), badge)
	if !r.run.FinishedAt.IsZero() && !r.run.StartedAt.IsZero() {
		dur := r.run.FinishedAt.Sub(r.run.StartedAt).Round(time.Second)
		r.line("%s", r.paint(reportFaintStyle, fmt.Sprintf("model %s  duration %s", r.run.Model, dur)))
	}
	r.line("")
}

func (r *reporter) statusBadge() string {
	switch r.run.Status {
	case plugin.StatusSuccess:
		return r.paint(reportOKStyle, "SUCCESS")
	case plugin.StatusPartialSuccess:
		return r.paint(reportWarnStyle, "PARTIAL SUCCESS")
	case plugin.StatusFailed:
		return r.paint(reportFailStyle, "FAILED")
	default:
		return r.paint(reportDimStyle, strings.ToUpper(string(r.run.Status)))
	}
}

func (r *reporter) identity() {
	spec := r.run.Spec
	if spec == nil {
		return
	}
	r.line("%s %s %s", r.paint(reportHeadStyle, spec.Name), r.paint(reportFaintStyle, "v"+spec.Version), r.paint(reportDimStyle, "("+spec.Slug+")"))
	if desc := firstLine(spec.Description); desc != "" {
		r.line("%s", r.paint(reportFaintStyle, desc))
	}
	r.line("")
}

func (r *reporter) phases() {
	r.line("%s", r.paint(reportHeadStyle, "Phases"))
	for _, phase := range Phases() {
		if phase == PhaseReporting {
			continue
		}
		attempts := r.run.PhaseAttempts[string(phase)]
		glyph, st := r.phaseGlyph(phase, attempts)
		note := ""
		if attempts > 1 {
			note = r.paint(reportWarnStyle, fmt.Sprintf("  (%d attempts)", attempts))
		}
		r.line("  %s %-14s%s", r.paint(st, glyph), phase, note)
	}
	r.line("")
}

func (r *reporter) phaseGlyph(phase Phase, attempts int) (string, lipgloss.Style) {
	if attempts == 0 {
		return "○", reportDimStyle
	}
	if r.run.FailedPhase == string(phase) {
		return "✗", reportFailStyle
	}
	return "✓", reportOKStyle
}

func (r *reporter) findings() {
	if len(r.run.Findings) == 0 {
		if r.run.PhaseAttempts[string(PhaseCompliance)] > 0 {
			r.line("%s", r.paint(reportHeadStyle, "Compliance"))
			r.line("  %s", r.paint(reportOKStyle, "no findings"))
			r.line("")
		}
		return
	}
	errs, warns, hints := splitFindings(r.run.Findings)
	r.line("%s %s", r.paint(reportHeadStyle, "Compliance"),
		r.paint(reportFaintStyle, fmt.Sprintf("(%d error(s), %d warning(s), %d suggestion(s))", len(errs), len(warns), len(hints))))
	r.findingGroup(errs, "✗", reportFailStyle)
	r.findingGroup(warns, "!", reportWarnStyle)
	r.findingGroup(hints, "·", reportDimStyle)
	r.line("")
}

func (r *reporter) findingGroup(findings []plugin.Finding, glyph string, st lipgloss.Style) {
	for _, f := range findings {
		loc := ""
		if f.File != "" {
			loc = r.paint(reportDimStyle, f.File+": ")
		}
		rule := ""
		if f.Rule != "" {
			rule = r.paint(reportDimStyle, "  ["+f.Rule+"]")
		}
		r.line("  %s %s%s%s", r.paint(st, glyph), loc, f.Message, rule)
	}
}

func splitFindings(all []plugin.Finding) (errs, warns, hints []plugin.Finding) {
	for _, f := range all {
		switch f.Severity {
		case plugin.SeverityError:
			errs = append(errs, f)
		case plugin.SeverityWarning:
			warns = append(warns, f)
		default:
			hints = append(hints, f)
		}
	}
	return errs, warns, hints
}

func (r *reporter) tests() {
	if len(r.run.Tests) == 0 {
		return
	}
	r.line("%s", r.paint(reportHeadStyle, "Tests"))
	for _, t := range r.run.Tests {
		glyph, st := testGlyph(t.Status)
		detail := ""
		if t.Detail != "" {
			detail = "  " + r.paint(reportFaintStyle, firstLine(t.Detail))
		}
		r.line("  %s %-22s %s%s", r.paint(st, glyph), t.TestName, r.paint(st, string(t.Status)), detail)
	}
	r.line("")
}

func testGlyph(status plugin.TestStatus) (string, lipgloss.Style) {
	switch status {
	case plugin.TestPassed:
		return "✓", reportOKStyle
	case plugin.TestSkipped:
		return "○", reportDimStyle
	case plugin.TestErrored:
		return "!", reportWarnStyle
	default:
		return "✗", reportFailStyle
	}
}

func (r *reporter) failure() {
	if r.run.Status != plugin.StatusFailed {
		return
	}
	r.line("%s", r.paint(reportFailStyle, "Run failed"))
	if r.run.FailedPhase != "" {
		attempts := r.run.PhaseAttempts[r.run.FailedPhase]
		r.line("  phase:    %s %s", r.run.FailedPhase, r.paint(reportFaintStyle, fmt.Sprintf("(after %d attempt(s))", attempts)))
	}
	if r.run.LastError != "" {
		r.line("  error:    %s", firstLine(r.run.LastError))
	}
	r.line("")
}

func (r *reporter) footer() {
	if len(r.run.Files) > 0 {
		r.line("%s %d file(s) generated", r.paint(reportFaintStyle, "files:"), len(r.run.Files))
	}
	if r.run.OutputRoot != "" && len(r.run.Files) > 0 {
		r.line("%s  %s", r.paint(reportFaintStyle, "plugin:"), r.run.OutputRoot)
	}
	if r.run.ArchivePath != "" {
		r.line("%s %s", r.paint(reportFaintStyle, "archive:"), r.run.ArchivePath)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
