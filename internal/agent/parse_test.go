package agent

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "bare object",
			text: `{"passed": true}`,
			want: `{"passed": true}`,
		},
		{
			name: "fenced",
			text: "```json\n{\"passed\": true}\n```",
			want: `{"passed": true}`,
		},
		{
			name: "prose before and after",
			text: "Here is my verdict: {\"passed\": false} Hope that helps!",
			want: `{"passed": false}`,
		},
		{
			name: "nested objects",
			text: `{"a": {"b": {"c": 1}}, "d": 2}`,
			want: `{"a": {"b": {"c": 1}}, "d": 2}`,
		},
		{
			name: "braces inside string values",
			text: `{"files": [{"content": "<?php if (true) { echo \"}\"; }"}]} trailing`,
			want: `{"files": [{"content": "<?php if (true) { echo \"}\"; }"}]}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractJSON(tc.text)
			if err != nil {
				t.Fatalf("ExtractJSON: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestExtractJSONErrors(t *testing.T) {
	t.Parallel()

	if _, err := ExtractJSON("no json here at all"); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
	if _, err := ExtractJSON(`{"never": "closes"`); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON for unbalanced object, got %v", err)
	}
}

func TestParseInto(t *testing.T) {
	t.Parallel()

	type verdict struct {
		Passed  bool   `json:"passed"`
		Summary string `json:"summary" validate:"required"`
	}

	var ok verdict
	if err := ParseInto(RoleCompliance, "```json\n{\"passed\": true, \"summary\": \"clean\"}\n```", &ok); err != nil {
		t.Fatalf("ParseInto: %v", err)
	}
	if !ok.Passed || ok.Summary != "clean" {
		t.Fatalf("unexpected decode: %+v", ok)
	}

	var missing verdict
	err := ParseInto(RoleCompliance, `{"passed": true}`, &missing)
	if !IsKind(err, KindMalformedOutput) {
		t.Fatalf("expected malformed output for missing field, got %v", err)
	}

	var prose verdict
	err = ParseInto(RoleCompliance, "I could not finish the audit, sorry.", &prose)
	if !IsKind(err, KindMalformedOutput) {
		t.Fatalf("expected malformed output for prose reply, got %v", err)
	}

	var broken verdict
	err = ParseInto(RoleCompliance, `{"passed": yes}`, &broken)
	if !IsKind(err, KindMalformedOutput) {
		t.Fatalf("expected malformed output for invalid JSON, got %v", err)
	}
}
