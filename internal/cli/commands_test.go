package cli

import (
	"testing"
	"time"
)

func TestResolveProviderAcceptsAliases(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"anthropic": "anthropic",
		"Claude":    "anthropic",
		"gpt":       "openai",
		"OpenAI":    "openai",
		"local":     "ollama",
		" ollama ":  "ollama",
	}
	for input, want := range cases {
		spec, err := resolveProvider(input)
		if err != nil {
			t.Errorf("resolveProvider(%q) returned %v", input, err)
			continue
		}
		if spec.Name != want {
			t.Errorf("resolveProvider(%q) = %s, want %s", input, spec.Name, want)
		}
	}

	if _, err := resolveProvider("bedrock"); err == nil {
		t.Error("unknown providers should be rejected")
	}
}

func TestShortRunID(t *testing.T) {
	t.Parallel()

	if got := shortRunID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortRunID = %q", got)
	}
	if got := shortRunID("abc"); got != "abc" {
		t.Errorf("short ids pass through, got %q", got)
	}
}

func TestRunDuration(t *testing.T) {
	t.Parallel()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := runDuration(started, started.Add(95*time.Second)); got != "1m35s" {
		t.Errorf("runDuration = %q", got)
	}
	if got := runDuration(started, time.Time{}); got != "-" {
		t.Errorf("unfinished runs show a dash, got %q", got)
	}
}

func TestFirstOutputLine(t *testing.T) {
	t.Parallel()

	out := []byte("PHP 8.3.6 (cli) (built: Apr 15 2025)\nCopyright (c) The PHP Group\n")
	if got := firstOutputLine(out); got != "PHP 8.3.6 (cli) (built: Apr 15 2025)" {
		t.Errorf("firstOutputLine = %q", got)
	}
	if got := firstOutputLine([]byte("  \n")); got != "" {
		t.Errorf("blank output yields empty string, got %q", got)
	}
}
