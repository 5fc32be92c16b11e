package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wpforge-dev/wpforge/internal/config"
	"github.com/wpforge-dev/wpforge/internal/wpenv"
)

var errMissingParameter = errors.New("required tool parameter is missing")

// Outcome classifies what a completed tool run means for the pipeline.
// Mechanical failures (bad params, escaped paths, I/O) are Go errors instead.
type Outcome string

const (
	// OutcomeOK means the tool ran and its verdict is positive.
	OutcomeOK Outcome = "ok"
	// OutcomeFailed means the tool ran and found a problem, a syntax error,
	// a failing test, a dangerous pattern.
	OutcomeFailed Outcome = "failed"
	// OutcomeUnavailable means a required binary or daemon is missing. The
	// testing phase records these as skipped, never as failures.
	OutcomeUnavailable Outcome = "unavailable"
)

type Result struct {
	Output  string
	Outcome Outcome
	Data    map[string]any
}

func ok(output string, data map[string]any) Result {
	return Result{Output: output, Outcome: OutcomeOK, Data: data}
}

func failed(output string, data map[string]any) Result {
	return Result{Output: output, Outcome: OutcomeFailed, Data: data}
}

func unavailable(output string) Result {
	return Result{Output: output, Outcome: OutcomeUnavailable}
}

type Tool struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	Execute     func(ctx context.Context, params map[string]any) (Result, error)
}

// Event is emitted as tools act so the TUI and log can narrate progress.
type Event struct {
	Kind    string
	Tool    string
	Detail  string
	Payload any
}

const (
	EventReading  = "reading"
	EventWriting  = "writing"
	EventDeleting = "deleting"
	EventRunning  = "running"
	EventDiff     = "diff"
)

// Env carries everything tool builders close over. Root is the directory of
// the plugin being generated; nothing outside it is readable or writable.
type Env struct {
	Root     string
	Stack    *wpenv.Stack
	Timeouts config.Timeouts
	Log      *zap.Logger
	Emit     func(Event)
	// Guidelines answers lookup_guidelines queries. Nil when the knowledge
	// base is disabled.
	Guidelines GuidelineSource
}

// GuidelineSource is the slice of the knowledge base tools need.
type GuidelineSource interface {
	Lookup(ctx context.Context, query string, limit int) ([]GuidelineSnippet, error)
}

type GuidelineSnippet struct {
	Source  string
	Content string
}

func (e Env) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e Env) emit(kind, toolName, detail string, payload any) {
	if e.Emit == nil {
		return
	}
	e.Emit(Event{
		Kind:    kind,
		Tool:    toolName,
		Detail:  strings.TrimSpace(detail),
		Payload: payload,
	})
}

func requiredStringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", errMissingParameter, key)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s", errMissingParameter, key)
	}
	return value, nil
}

func optionalStringParam(params map[string]any, key, fallback string) string {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	value, ok := raw.(string)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}

// schemaObject builds the JSON Schema for a tool's parameters.
func schemaObject(required []string, props map[string]string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for name, desc := range props {
		properties[name] = map[string]interface{}{
			"type":        "string",
			"description": desc,
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
