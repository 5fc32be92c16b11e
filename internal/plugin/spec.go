package plugin

import (
	"strings"
	"time"
)

// Feature is one planned capability of the plugin, in the order the
// specification phase decided to build them.
type Feature struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// Specification is the structured plan produced by the specification phase.
// It is immutable once handed to generation; later phases only read it.
type Specification struct {
	Name string `json:"name" validate:"required"`
	// Slug is unvalidated on purpose: whatever the model suggests is run
	// through Slugify before anything touches the filesystem.
	Slug            string    `json:"slug"`
	Description     string    `json:"description" validate:"required"`
	Version         string    `json:"version" validate:"required"`
	Author          string    `json:"author"`
	AuthorURI       string    `json:"author_uri,omitempty"`
	RequiresAtLeast string    `json:"requires_at_least"`
	TestedUpTo      string    `json:"tested_up_to"`
	RequiresPHP     string    `json:"requires_php"`
	Features        []Feature `json:"features" validate:"required,min=1,dive"`
	Files           []string  `json:"files"`
}

// ApplyDefaults fills the header fields the model routinely omits.
func (s *Specification) ApplyDefaults() {
	if strings.TrimSpace(s.Version) == "" {
		s.Version = "1.0.0"
	}
	if strings.TrimSpace(s.Author) == "" {
		s.Author = "WPForge"
	}
	if strings.TrimSpace(s.RequiresAtLeast) == "" {
		s.RequiresAtLeast = "5.8"
	}
	if strings.TrimSpace(s.TestedUpTo) == "" {
		s.TestedUpTo = "6.7"
	}
	if strings.TrimSpace(s.RequiresPHP) == "" {
		s.RequiresPHP = "7.4"
	}
}

type FileKind string

const (
	FilePHP    FileKind = "php"
	FileCSS    FileKind = "css"
	FileJS     FileKind = "js"
	FileReadme FileKind = "readme"
	FilePOT    FileKind = "pot"
	FileOther  FileKind = "other"
)

// GeneratedFile is one file the generation phase wrote under the plugin root.
type GeneratedFile struct {
	RelativePath string   `json:"relative_path" validate:"required"`
	Content      string   `json:"content"`
	Kind         FileKind `json:"kind"`
}

// KindForPath infers the file kind when the model leaves it empty.
func KindForPath(rel string) FileKind {
	rel = strings.ToLower(strings.TrimSpace(rel))
	base := rel
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		base = rel[idx+1:]
	}
	switch {
	case base == "readme.txt" || base == "readme.md":
		return FileReadme
	case strings.HasSuffix(base, ".php"):
		return FilePHP
	case strings.HasSuffix(base, ".css"):
		return FileCSS
	case strings.HasSuffix(base, ".js"):
		return FileJS
	case strings.HasSuffix(base, ".pot"):
		return FilePOT
	default:
		return FileOther
	}
}

type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// Finding is one compliance observation against a generated file.
type Finding struct {
	Severity Severity `json:"severity" validate:"required,oneof=error warning suggestion"`
	File     string   `json:"file"`
	Message  string   `json:"message" validate:"required"`
	Rule     string   `json:"rule,omitempty"`
}

type TestName string

const (
	TestSyntaxCheck TestName = "syntax-check"
	TestPlayground  TestName = "playground-activation"
	TestPluginCheck TestName = "plugin-check"
	TestPHPUnit     TestName = "phpunit"
)

type TestStatus string

const (
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
	TestSkipped TestStatus = "skipped"
	TestErrored TestStatus = "error"
)

// TestResult is one entry of the testing phase, in execution order.
type TestResult struct {
	TestName TestName   `json:"test_name" validate:"required,oneof=syntax-check playground-activation plugin-check phpunit"`
	Status   TestStatus `json:"status" validate:"required,oneof=passed failed skipped error"`
	Detail   string     `json:"detail"`
}

// GenerationReport is the generation phase's final message. Files lists the
// paths the agent claims to have written; the pipeline trusts the disk, not
// this list, and uses it only for cross-checking.
type GenerationReport struct {
	Files   []string `json:"files" validate:"required,min=1"`
	Summary string   `json:"summary"`
}

// ComplianceReport is the compliance phase's final message.
type ComplianceReport struct {
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings" validate:"dive"`
	Summary  string    `json:"summary"`
}

// TestingReport is the testing phase's final message.
type TestingReport struct {
	Results []TestResult `json:"results" validate:"dive"`
	Notes   string       `json:"notes"`
}

type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialSuccess RunStatus = "partial-success"
	StatusFailed         RunStatus = "failed"
)

// Run aggregates everything one invocation produced. It is owned by the
// pipeline, rendered once at the end, and then discarded.
type Run struct {
	ID            string
	Prompt        string
	Model         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Spec          *Specification
	Files         []GeneratedFile
	Findings      []Finding
	Tests         []TestResult
	PhaseAttempts map[string]int
	OutputRoot    string
	ArchivePath   string
	Status        RunStatus
	FailedPhase   string
	LastError     string
}

// Resolve computes the overall status from observed results. Failed is
// reserved for aborted runs and must be set by the pipeline before rendering;
// Resolve only distinguishes clean success from degraded success.
func (r *Run) Resolve() RunStatus {
	if r.Status == StatusFailed {
		return StatusFailed
	}
	worst := StatusSuccess
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			worst = StatusPartialSuccess
		}
	}
	for _, t := range r.Tests {
		if t.Status == TestFailed || t.Status == TestErrored {
			worst = StatusPartialSuccess
		}
	}
	r.Status = worst
	return worst
}
