package providers

import (
	"fmt"

	"github.com/wpforge-dev/wpforge/internal/config"
)

// New builds the provider for a resolved provider name using the effective
// configuration. Callers typically feed it the first return of Resolve.
func New(cfg *config.Config, providerName string) (Provider, error) {
	switch providerName {
	case "anthropic":
		return NewAnthropic(), nil
	case "openai":
		return NewOpenAI(cfg.Providers.OpenAI.BaseURL, "openai"), nil
	case "ollama":
		return NewOllama(cfg.Providers.Ollama.Host)
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

// ForModel resolves a model string, builds its provider, and applies the
// configured request budget.
func ForModel(cfg *config.Config, model string) (Provider, string, error) {
	providerName, bare := Resolve(model)
	p, err := New(cfg, providerName)
	if err != nil {
		return nil, "", err
	}
	return WithRateLimit(p, cfg.Limits.RequestsPerMinute), bare, nil
}
