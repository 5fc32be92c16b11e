package pipeline

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes the pause between attempts of a failed phase.
type BackoffPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of the computed delay added at random on top,
	// spreading repeated hits on a rate-limited API.
	Jitter float64
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:       500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.5,
	}
}

// NewBackoff builds a policy from configured millisecond values.
func NewBackoff(baseMillis, maxMillis int, multiplier float64) BackoffPolicy {
	p := DefaultBackoff()
	if baseMillis > 0 {
		p.Base = time.Duration(baseMillis) * time.Millisecond
	}
	if maxMillis > 0 {
		p.Max = time.Duration(maxMillis) * time.Millisecond
	}
	if multiplier >= 1 {
		p.Multiplier = multiplier
	}
	return p
}

// Delay returns the pause before retry number attempt (0-based): exponential
// growth capped at Max, plus up to Jitter extra.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if ceiling := float64(p.Max); delay > ceiling {
		delay = ceiling
	}
	delay += rand.Float64() * p.Jitter * delay
	return time.Duration(delay)
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return checkCancelled(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return asCancellation(ctx.Err())
	case <-timer.C:
		return nil
	}
}
