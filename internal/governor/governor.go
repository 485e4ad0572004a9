// Package governor implements the token-bucket call budget shared by every
// caller of the external reasoning service. All reasoner traffic must pass
// through Acquire; analyzers never talk to the reasoner directly.
package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/faultlens/faultlens-agent/internal/metrics"
)

// ErrRateExceeded signals that the budget could not grant a permit within the
// configured maximum wait.
var ErrRateExceeded = errors.New("rate budget exceeded")

// Governor wraps a token bucket with a bounded wait. Safe for concurrent use;
// the underlying limiter serialises token accounting so concurrent acquisitions
// never double-spend.
type Governor struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// New constructs a Governor refilling at ratePerMinute tokens per minute with
// the given burst capacity. Callers blocked longer than maxWait fail with
// ErrRateExceeded.
func New(ratePerMinute, burst int, maxWait time.Duration) *Governor {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &Governor{
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), burst),
		maxWait: maxWait,
	}
}

// Acquire obtains cost tokens, blocking until they accrue or maxWait elapses.
// Context cancellation aborts the wait with the context's error.
func (g *Governor) Acquire(ctx context.Context, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	if cost > g.limiter.Burst() {
		return fmt.Errorf("%w: cost %d exceeds bucket capacity %d", ErrRateExceeded, cost, g.limiter.Burst())
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.maxWait)
	defer cancel()

	start := time.Now()
	err := g.limiter.WaitN(waitCtx, cost)
	metrics.ObserveGovernorWait(time.Since(start))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: no permit within %s", ErrRateExceeded, g.maxWait)
}

// Tokens reports the number of tokens currently available. Informational only;
// a positive value does not guarantee a subsequent Acquire succeeds.
func (g *Governor) Tokens() float64 {
	return g.limiter.Tokens()
}
