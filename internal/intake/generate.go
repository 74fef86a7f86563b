package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/intake/internal/llm"
)

const (
	// DefaultGenerationTimeout bounds a single generation attempt.
	DefaultGenerationTimeout = 30 * time.Second
	// DefaultGenerationRetries is how many times a failed attempt is retried.
	DefaultGenerationRetries = 1
)

// generate calls the provider with a per-attempt timeout and retries. It
// returns the trimmed response, or the last error once attempts run out.
// An empty response counts as a failure.
func (e *Engine) generate(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	if e.provider == nil {
		return "", errors.New("no text generation provider configured")
	}
	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			e.log.Warn("retrying generation", "provider", e.provider.Name(), "attempt", attempt, "error", lastErr)
		}
		out, err := e.attempt(ctx, prompt, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("generating response via %s: %w", e.provider.Name(), lastErr)
}

func (e *Engine) attempt(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	out, err := e.provider.Complete(actx, prompt, opts)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty response")
	}
	return out, nil
}
