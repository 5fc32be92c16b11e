package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	name string
	err  error
}

func (s stubPinger) Name() string                                     { return s.name }
func (s stubPinger) Ping(ctx context.Context) error                   { return s.err }
func (s stubPinger) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (s stubPinger) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return CompletionResponse{}, nil
}

func TestProbeAllKeepsInputOrder(t *testing.T) {
	t.Parallel()

	provs := []Provider{
		stubPinger{name: "openai"},
		stubPinger{name: "ollama", err: errors.New("connection refused")},
		stubPinger{name: "anthropic"},
	}

	results := ProbeAll(context.Background(), provs)
	assert.Len(t, results, 3)

	assert.Equal(t, "openai", results[0].Provider)
	assert.True(t, results[0].Reachable)
	assert.Empty(t, results[0].Detail)

	assert.Equal(t, "ollama", results[1].Provider)
	assert.False(t, results[1].Reachable)
	assert.Contains(t, results[1].Detail, "connection refused")

	assert.Equal(t, "anthropic", results[2].Provider)
	assert.True(t, results[2].Reachable)
}

func TestProbeRecordsLatency(t *testing.T) {
	t.Parallel()

	res := Probe(context.Background(), stubPinger{name: "anthropic"})
	assert.True(t, res.Reachable)
	assert.GreaterOrEqual(t, res.Latency, time.Duration(0))
}

func TestProbeAllEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, ProbeAll(context.Background(), nil))
}
