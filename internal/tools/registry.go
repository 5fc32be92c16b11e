package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wpforge-dev/wpforge/internal/providers"
)

// Registry holds tools in registration order with case-insensitive lookup.
type Registry struct {
	ordered []Tool
	byName  map[string]Tool
}

func NewRegistry(tools ...Tool) Registry {
	byName := make(map[string]Tool, len(tools))
	ordered := make([]Tool, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(strings.ToLower(t.Name))
		if name == "" {
			continue
		}
		t.Name = name
		ordered = append(ordered, t)
		byName[name] = t
	}
	return Registry{
		ordered: ordered,
		byName:  byName,
	}
}

func (r Registry) Get(name string) (Tool, bool) {
	if r.byName == nil {
		return Tool{}, false
	}
	tool, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return tool, ok
}

func (r Registry) Names() []string {
	out := make([]string, 0, len(r.ordered))
	for _, tool := range r.ordered {
		out = append(out, tool.Name)
	}
	return out
}

// Subset returns a registry restricted to the named tools, preserving the
// requested order. Unknown names are skipped.
func (r Registry) Subset(names ...string) Registry {
	subset := make([]Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.Get(name); ok {
			subset = append(subset, tool)
		}
	}
	return NewRegistry(subset...)
}

func (r Registry) PromptBlock() string {
	if len(r.ordered) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.ordered)+2)
	lines = append(lines, "Available tools (enforced at runtime):")
	for _, tool := range r.ordered {
		lines = append(lines, fmt.Sprintf("- %s: %s", tool.Name, strings.TrimSpace(tool.Description)))
	}
	lines = append(lines, "If a needed tool is unavailable, explain the limitation and continue with available tools.")
	return strings.Join(lines, "\n")
}

// ProviderTools converts the registry to provider-compatible tool definitions
// with JSON Schema for each tool's parameters.
func (r Registry) ProviderTools() []providers.Tool {
	out := make([]providers.Tool, 0, len(r.ordered))
	for _, tool := range r.ordered {
		schema := tool.Schema
		if schema == nil {
			schema = map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}
		}
		out = append(out, providers.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return out
}

// Dispatch decodes a provider tool call and executes the matching tool.
func (r Registry) Dispatch(ctx context.Context, call providers.ToolCall) (Result, error) {
	tool, found := r.Get(call.Name)
	if !found {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	params := make(map[string]any)
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &params); err != nil {
			return Result{}, fmt.Errorf("decode %s arguments: %w", tool.Name, err)
		}
	}
	return tool.Execute(ctx, params)
}
