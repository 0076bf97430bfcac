// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"time"

	"github.com/quiltmemory/quilt/internal/metrics"
)

// RetryOpts configures exponential backoff retry.
type RetryOpts struct {
	MaxAttempts  int
	InitialWait  time.Duration
	BackoffFactor float64
}

// DefaultEmbeddingRetry matches spec.md 4.5: base 500ms, factor 2, R=3
// retries after the first attempt (four attempts in all).
var DefaultEmbeddingRetry = RetryOpts{
	MaxAttempts:   4,
	InitialWait:   500 * time.Millisecond,
	BackoffFactor: 2,
}

// Retry calls f until it succeeds or MaxAttempts is exhausted, sleeping
// with exponential backoff between attempts. It returns the last error on
// exhaustion, or the context error if canceled while waiting.
func Retry(ctx context.Context, opts RetryOpts, f func(context.Context) error) error {
	wait := opts.InitialWait
	var lastErr error

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		lastErr = f(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}

		metrics.EmbeddingRetriesTotal.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * opts.BackoffFactor)
	}
	return lastErr
}
