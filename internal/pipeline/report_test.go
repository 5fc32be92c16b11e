package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/wpforge-dev/wpforge/internal/plugin"
)

func sampleSpec() *plugin.Specification {
	return &plugin.Specification{
		Name:        "Contact Form Mini",
		Slug:        "contact-form-mini",
		Description: "A minimal contact form rendered through a shortcode.\nSecond line is ignored.",
		Version:     "1.2.0",
	}
}

func TestRenderReportSuccess(t *testing.T) {
	run := &plugin.Run{
		ID:         "0123456789abcdef",
		Model:      "gpt-4o",
		StartedAt:  time.Now().Add(-90 * time.Second),
		FinishedAt: time.Now(),
		Spec:       sampleSpec(),
		Status:     plugin.StatusSuccess,
		Files:      []plugin.GeneratedFile{{RelativePath: "contact-form-mini.php"}, {RelativePath: "readme.txt"}},
		Findings: []plugin.Finding{
			{Severity: plugin.SeverityWarning, File: "contact-form-mini.php", Message: "missing text domain on one string", Rule: "i18n"},
		},
		Tests: []plugin.TestResult{
			{TestName: plugin.TestSyntaxCheck, Status: plugin.TestPassed, Detail: "all 2 PHP files pass lint"},
			{TestName: plugin.TestPHPUnit, Status: plugin.TestSkipped, Detail: "not requested"},
		},
		PhaseAttempts: map[string]int{
			"specification": 1, "generation": 1, "compliance": 1, "testing": 1,
		},
		ArchivePath: "plugins/contact-form-mini/dist/contact-form-mini.zip",
	}

	out := RenderReport(run, true)
	for _, want := range []string{
		"wpforge run 01234567",
		"SUCCESS",
		"Contact Form Mini",
		"v1.2.0",
		"(contact-form-mini)",
		"A minimal contact form rendered through a shortcode.",
		"Phases",
		"specification",
		"testing",
		"Compliance",
		"missing text domain on one string",
		"[i18n]",
		"Tests",
		"syntax-check",
		"passed",
		"phpunit",
		"skipped",
		"2 file(s) generated",
		"plugins/contact-form-mini/dist/contact-form-mini.zip",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Second line is ignored") {
		t.Error("the description should be cut at its first line")
	}
	if strings.Contains(out, "Run failed") {
		t.Error("a clean run must not carry a failure block")
	}
}

func TestRenderReportFailure(t *testing.T) {
	run := &plugin.Run{
		ID:         "deadbeefcafe",
		Model:      "gpt-4o",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Spec:       sampleSpec(),
		Status:     plugin.StatusFailed,
		PhaseAttempts: map[string]int{
			"specification": 1, "generation": 3,
		},
		FailedPhase: "generation",
		LastError:   "generation phase failed after 3 attempt(s): generation agent: no files were written to the plugin directory",
	}

	out := RenderReport(run, true)
	for _, want := range []string{
		"FAILED",
		"Run failed",
		"phase:    generation",
		"(after 3 attempt(s))",
		"no files were written to the plugin directory",
		"(3 attempts)",
		"○",
		"✗",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "archive:") {
		t.Error("a failed run without an archive must not print one")
	}
}

func TestRenderReportWithoutSpec(t *testing.T) {
	// Specification never parsed: the report still renders.
	run := &plugin.Run{
		ID:            "f00",
		Model:         "llama3.1",
		StartedAt:     time.Now(),
		FinishedAt:    time.Now(),
		Status:        plugin.StatusFailed,
		FailedPhase:   "specification",
		LastError:     "specification phase failed after 2 attempt(s): specification agent: no JSON object found",
		PhaseAttempts: map[string]int{"specification": 2},
	}

	out := RenderReport(run, true)
	if !strings.Contains(out, "wpforge run f00") {
		t.Errorf("short ids must render unsliced:\n%s", out)
	}
	if !strings.Contains(out, "no JSON object found") {
		t.Errorf("the last error belongs in the report:\n%s", out)
	}
}

func TestRenderReportPartialSuccess(t *testing.T) {
	run := &plugin.Run{
		ID:         "0011223344556677",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Spec:       sampleSpec(),
		Status:     plugin.StatusPartialSuccess,
		Findings: []plugin.Finding{
			{Severity: plugin.SeverityError, Message: "direct database query without preparation"},
			{Severity: plugin.SeveritySuggestion, Message: "consider escaping late"},
		},
		Tests: []plugin.TestResult{
			{TestName: plugin.TestSyntaxCheck, Status: plugin.TestErrored, Detail: "the testing agent never ran the syntax check"},
		},
		PhaseAttempts: map[string]int{
			"specification": 1, "generation": 1, "compliance": 1, "testing": 1,
		},
	}

	out := RenderReport(run, true)
	for _, want := range []string{
		"PARTIAL SUCCESS",
		"1 error(s), 0 warning(s), 1 suggestion(s)",
		"direct database query without preparation",
		"consider escaping late",
		"the testing agent never ran the syntax check",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report is missing %q:\n%s", want, out)
		}
	}
}
