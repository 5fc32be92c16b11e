package providers

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider with a client-side request budget so retry
// storms across phases cannot hammer an API.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit applies a requests-per-minute budget with a burst of one.
// rpm <= 0 disables limiting.
func WithRateLimit(p Provider, rpm int) Provider {
	if rpm <= 0 {
		return p
	}
	return &RateLimited{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

func (r *RateLimited) Name() string { return r.inner.Name() }

func (r *RateLimited) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return CompletionResponse{}, err
	}
	return r.inner.Complete(ctx, req)
}

func (r *RateLimited) ListModels(ctx context.Context) ([]string, error) {
	return r.inner.ListModels(ctx)
}

func (r *RateLimited) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx)
}
