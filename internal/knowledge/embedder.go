package knowledge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// Embedder turns guideline text into vectors with a local Ollama embedding
// model.
type Embedder struct {
	Host  string
	Model string

	client *ollama.Client
}

var ErrEmbedderNotReady = errors.New("knowledge embedder is not initialized")

func NewEmbedder(host, model string) (*Embedder, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
	}
	return &Embedder{
		Host:   host,
		Model:  model,
		client: ollama.NewClient(base, http.DefaultClient),
	}, nil
}

func (e *Embedder) ensureConfigured() error {
	if e == nil || e.client == nil {
		return ErrEmbedderNotReady
	}
	if strings.TrimSpace(e.Model) == "" {
		return errors.New("knowledge embedder model is empty")
	}
	return nil
}

// EnsureReady probes the Ollama host so indexing can bail out early instead
// of failing chunk by chunk.
func (e *Embedder) EnsureReady(ctx context.Context) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if _, err := e.client.List(ctx); err != nil {
		return fmt.Errorf("ollama embedder is unreachable at %s: %w", e.Host, err)
	}
	return nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}

	resp, err := e.client.Embeddings(ctx, &ollama.EmbeddingRequest{
		Model:  e.Model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", e.Model, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.Model)
	}

	out := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
