package embed

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures retry behavior for embedding calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BackoffBase is the delay before the first retry; each subsequent
	// retry doubles it.
	BackoffBase time.Duration
}

// DefaultRetryConfig returns the default retry configuration:
// three attempts with delays of 1s and 2s between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
	}
}

// BatchFunc embeds a batch of texts, index-aligned with the input.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// RetryEmbedding executes fn with exponential backoff. The delay before
// retry n is BackoffBase * 2^(n-1). A result whose length does not match the
// input counts as a failure. Context cancellation is honored both before an
// attempt and during the backoff sleep.
func RetryEmbedding(ctx context.Context, cfg RetryConfig, fn BatchFunc, texts []string) ([][]float32, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.BackoffBase

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vecs, err := fn(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts))
		}
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
