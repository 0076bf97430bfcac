// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package embedding

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/quiltmemory/quilt/internal/metrics"
	"github.com/quiltmemory/quilt/internal/resilience"
)

// ClientOpts configures the resilient wrapper around a Service.
type ClientOpts struct {
	RetryOpts resilience.RetryOpts

	// RequestsPerSecond and Burst bound the rate of outgoing embedding
	// requests, independently of the retry/backoff policy.
	RequestsPerSecond rate.Limit
	Burst             int
}

// DefaultClientOpts matches spec.md 4.5: R=3 retries, base 500ms,
// factor 2. The rate limit is a local default with no source-of-truth
// in spec.md; it exists purely to bound client-side request bursts.
func DefaultClientOpts() ClientOpts {
	return ClientOpts{
		RetryOpts:         resilience.DefaultEmbeddingRetry,
		RequestsPerSecond: 10,
		Burst:             20,
	}
}

// Client wraps a Service with client-side rate limiting, exponential
// backoff retry, and a circuit breaker, so Swatching can call Embed
// without repeating this policy at every call site.
type Client struct {
	svc     Service
	limiter *rate.Limiter
	retry   resilience.RetryOpts
	breaker *resilience.CircuitBreaker
}

// NewClient wraps svc with the given policy.
func NewClient(svc Service, opts ClientOpts) *Client {
	return &Client{
		svc:     svc,
		limiter: rate.NewLimiter(opts.RequestsPerSecond, opts.Burst),
		retry:   opts.RetryOpts,
		breaker: resilience.NewCircuitBreaker("embedding", 3, 5, 0, 0),
	}
}

func (c *Client) Identity() Identity { return c.svc.Identity() }

// Embed requests a single embedding, applying the rate limiter, retry
// policy, and circuit breaker around the underlying Service. Only
// ErrModelLoadFailed and resilience.ErrCircuitOpen are retried;
// ErrGenerationFailed and ErrEmptyInput fail on the first attempt since
// retrying the same input cannot change their outcome.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	wait := c.retry.InitialWait
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		vec, err := c.attempt(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if !errors.Is(err, ErrModelLoadFailed) && !errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, err
		}
		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		metrics.EmbeddingRetriesTotal.Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait = time.Duration(float64(wait) * c.retry.BackoffFactor)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, text string) ([]float32, error) {
	if !c.breaker.AllowRequest() {
		return nil, resilience.ErrCircuitOpen
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.breaker.RecordAttempt()
	vecs, err := c.svc.Embed(ctx, []string{text})
	if err != nil {
		c.breaker.RecordTechnicalFailure()
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	c.breaker.RecordSuccess()
	metrics.EmbeddingRequestsTotal.WithLabelValues("success").Inc()
	return vecs[0], nil
}

var _ Service = (*HTTPService)(nil)
