package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want FileKind
	}{
		{"footer-message.php", FilePHP},
		{"includes/class-footer-message.php", FilePHP},
		{"admin/css/admin.css", FileCSS},
		{"public/js/public.js", FileJS},
		{"readme.txt", FileReadme},
		{"README.md", FileReadme},
		{"languages/footer-message.pot", FilePOT},
		{"assets/banner.png", FileOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindForPath(tt.path), "path %q", tt.path)
	}
}

func TestRunResolve(t *testing.T) {
	t.Parallel()

	t.Run("clean run is success", func(t *testing.T) {
		r := &Run{
			Tests:    []TestResult{{TestName: TestSyntaxCheck, Status: TestPassed}},
			Findings: []Finding{{Severity: SeverityWarning, Message: "minor"}},
		}
		assert.Equal(t, StatusSuccess, r.Resolve())
	})

	t.Run("error finding degrades to partial", func(t *testing.T) {
		r := &Run{Findings: []Finding{{Severity: SeverityError, Message: "bad"}}}
		assert.Equal(t, StatusPartialSuccess, r.Resolve())
	})

	t.Run("failed test degrades to partial", func(t *testing.T) {
		r := &Run{Tests: []TestResult{{TestName: TestPlayground, Status: TestFailed}}}
		assert.Equal(t, StatusPartialSuccess, r.Resolve())
	})

	t.Run("skipped test alone stays success", func(t *testing.T) {
		r := &Run{Tests: []TestResult{
			{TestName: TestSyntaxCheck, Status: TestPassed},
			{TestName: TestPlayground, Status: TestSkipped},
		}}
		assert.Equal(t, StatusSuccess, r.Resolve())
	})

	t.Run("failed status is sticky", func(t *testing.T) {
		r := &Run{Status: StatusFailed}
		assert.Equal(t, StatusFailed, r.Resolve())
	})
}

func TestSpecificationApplyDefaults(t *testing.T) {
	t.Parallel()

	spec := &Specification{Name: "Footer Message", Slug: "footer-message"}
	spec.ApplyDefaults()

	assert.Equal(t, "1.0.0", spec.Version)
	assert.Equal(t, "WPForge", spec.Author)
	assert.Equal(t, "5.8", spec.RequiresAtLeast)
	assert.Equal(t, "6.7", spec.TestedUpTo)
	assert.Equal(t, "7.4", spec.RequiresPHP)
}

func TestLayoutPaths(t *testing.T) {
	t.Parallel()

	l := NewLayout("plugins", "footer-message")
	if l.MainFile() != "plugins/footer-message/footer-message.php" {
		t.Fatalf("unexpected main file: %s", l.MainFile())
	}
	if l.Readme() != "plugins/footer-message/readme.txt" {
		t.Fatalf("unexpected readme: %s", l.Readme())
	}
	if len(l.StandardDirs()) != 6 {
		t.Fatalf("expected 6 standard dirs, got %d", len(l.StandardDirs()))
	}
}
