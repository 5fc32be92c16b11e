package providers

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProbeResult is the outcome of one provider reachability check.
type ProbeResult struct {
	Provider  string
	Reachable bool
	Latency   time.Duration
	Detail    string
}

// Probe pings a single provider and times the round trip.
func Probe(ctx context.Context, p Provider) ProbeResult {
	start := time.Now()
	err := p.Ping(ctx)
	res := ProbeResult{
		Provider:  p.Name(),
		Reachable: err == nil,
		Latency:   time.Since(start),
	}
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}

// ProbeAll checks the providers concurrently. Results come back in input
// order regardless of which ping finishes first.
func ProbeAll(ctx context.Context, provs []Provider) []ProbeResult {
	results := make([]ProbeResult, len(provs))
	var g errgroup.Group
	for i, p := range provs {
		g.Go(func() error {
			results[i] = Probe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
