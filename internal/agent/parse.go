package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrNoJSON is returned by ExtractJSON when the text contains no balanced
// JSON object at all.
var ErrNoJSON = errors.New("no JSON object found")

// ExtractJSON returns the first balanced JSON object embedded in text.
// Models wrap their answers in code fences or pad them with prose; neither
// survives extraction. String contents are respected, so braces inside
// generated PHP source do not confuse the scan.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: object opened at offset %d never closes", ErrNoJSON, start)
}

// ParseInto extracts the phase's JSON answer from text and decodes it into
// target, then validates the struct tags. Every failure mode maps to a
// malformed-output error so the caller can retry with a stricter reminder.
func ParseInto(role Role, text string, target any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return &AgentError{Kind: KindMalformedOutput, Role: role, Message: "reply contains no JSON object", Err: err}
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(target); err != nil {
		return &AgentError{Kind: KindMalformedOutput, Role: role, Message: "reply is not valid JSON", Err: err}
	}
	if err := validate.Struct(target); err != nil {
		return &AgentError{Kind: KindMalformedOutput, Role: role, Message: "reply is missing required fields", Err: err}
	}
	return nil
}
