package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		model        string
		wantProvider string
		wantBare     string
	}{
		{"claude-3-5-sonnet-20241022", "anthropic", "claude-3-5-sonnet-20241022"},
		{"gpt-4o", "openai", "gpt-4o"},
		{"gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"o1-preview", "openai", "o1-preview"},
		{"o3-mini", "openai", "o3-mini"},
		{"chatgpt-4o-latest", "openai", "chatgpt-4o-latest"},
		{"ollama/llama3.1", "ollama", "llama3.1"},
		{"llama3.1:8b", "ollama", "llama3.1:8b"},
		{"anthropic/claude-3-opus", "anthropic", "claude-3-opus"},
		{"openai/gpt-4-turbo", "openai", "gpt-4-turbo"},
		{"litellm/bedrock-claude", "openai", "bedrock-claude"},
		{"mystery-model", "openai", "mystery-model"},
		{"  gpt-4o  ", "openai", "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, bare := Resolve(tt.model)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantBare, bare)
		})
	}
}

func TestEffectiveTemperature(t *testing.T) {
	assert.InDelta(t, 0.2, EffectiveTemperature("gpt-4o", 0.2), 1e-9)
	assert.InDelta(t, 0.1, EffectiveTemperature("claude-3-5-sonnet-20241022", 0.1), 1e-9)
	assert.InDelta(t, 1.0, EffectiveTemperature("o1-preview", 0.2), 1e-9)
	assert.InDelta(t, 1.0, EffectiveTemperature("openai/o3-mini", 0.3), 1e-9)
}
