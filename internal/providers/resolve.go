package providers

import "strings"

// Resolve maps a user-facing model string to a provider name and the bare
// model identifier that provider expects. Explicit "provider/model" prefixes
// win; otherwise the model family decides.
func Resolve(model string) (provider, bare string) {
	model = strings.TrimSpace(model)

	for _, p := range []string{"ollama", "anthropic", "openai", "litellm"} {
		if rest, ok := strings.CutPrefix(model, p+"/"); ok {
			if p == "litellm" {
				// LiteLLM proxies speak the OpenAI wire format.
				return "openai", rest
			}
			return p, rest
		}
	}

	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic", model
	case strings.HasPrefix(model, "gpt"),
		strings.HasPrefix(model, "chatgpt"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return "openai", model
	case strings.Contains(model, ":"):
		// Ollama tags look like "llama3.1:8b".
		return "ollama", model
	default:
		return "openai", model
	}
}

// EffectiveTemperature clamps the temperature for model families that reject
// custom sampling. OpenAI reasoning models only accept the default of 1.
func EffectiveTemperature(model string, temperature float64) float64 {
	_, bare := Resolve(model)
	if strings.HasPrefix(bare, "o1") || strings.HasPrefix(bare, "o3") || strings.HasPrefix(bare, "o4") {
		return 1.0
	}
	return temperature
}
