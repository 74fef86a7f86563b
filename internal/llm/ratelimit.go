package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// limitedProvider waits on a token bucket before every call.
type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most perMinute calls start per minute,
// with bursts up to burst. A non-positive perMinute returns p unchanged.
func WithRateLimit(p Provider, perMinute, burst int) Provider {
	if perMinute <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	return &limitedProvider{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
	}
}

func (l *limitedProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return l.Provider.Complete(ctx, prompt, opts)
}
