package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/smukkama/prayer-times/internal/prayer"
)

// RateLimitedSource wraps a Source with a token bucket so that concurrent
// month builds do not flood the remote service
type RateLimitedSource struct {
	source  Source
	limiter *rate.Limiter
}

// Ensure RateLimitedSource implements Source
var _ Source = (*RateLimitedSource)(nil)

// NewRateLimitedSource creates a new rate limited source.
// rps is the maximum requests per second allowed (can be fractional)
// burst is the maximum burst size allowed
func NewRateLimitedSource(source Source, rps float64, burst int) *RateLimitedSource {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSource{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the name of the wrapped source
func (r *RateLimitedSource) Name() prayer.SourceName {
	return r.source.Name()
}

// Invoke waits for a token, then forwards to the wrapped source
func (r *RateLimitedSource) Invoke(ctx context.Context, req prayer.CalculationRequest) prayer.SourceResult {
	if err := r.limiter.Wait(ctx); err != nil {
		return prayer.Failed(prayer.FailureRateLimited, fmt.Sprintf("rate limit wait canceled: %v", err))
	}
	return r.source.Invoke(ctx, req)
}
