// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package embedding

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/quiltmemory/quilt/internal/resilience"
)

type stubService struct {
	identity Identity
	calls    atomic.Int32
	fail     func(call int32) error
	vec      []float32
}

func (s *stubService) Identity() Identity { return s.identity }

func (s *stubService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	n := s.calls.Add(1)
	if s.fail != nil {
		if err := s.fail(n); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}

func fastOpts() ClientOpts {
	return ClientOpts{
		RetryOpts:         resilience.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, BackoffFactor: 2},
		RequestsPerSecond: rate.Inf,
		Burst:             1000,
	}
}

func TestClientEmbedSucceedsOnFirstTry(t *testing.T) {
	svc := &stubService{identity: Identity{Name: "m", Dimensions: 3}, vec: []float32{1, 0, 0}}
	c := NewClient(svc, fastOpts())

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 0, 0}, vec)
	require.EqualValues(t, 1, svc.calls.Load())
}

func TestClientEmbedRetriesOnModelLoadFailed(t *testing.T) {
	svc := &stubService{
		identity: Identity{Name: "m", Dimensions: 3},
		vec:      []float32{0, 1, 0},
		fail: func(call int32) error {
			if call < 3 {
				return ErrModelLoadFailed
			}
			return nil
		},
	}
	c := NewClient(svc, fastOpts())

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0, 1, 0}, vec)
	require.EqualValues(t, 3, svc.calls.Load())
}

func TestClientEmbedDoesNotRetryGenerationFailed(t *testing.T) {
	svc := &stubService{
		identity: Identity{Name: "m", Dimensions: 3},
		fail:     func(call int32) error { return ErrGenerationFailed },
	}
	c := NewClient(svc, fastOpts())

	_, err := c.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.EqualValues(t, 1, svc.calls.Load())
}

func TestClientEmbedExhaustsRetriesAndReturnsLastError(t *testing.T) {
	svc := &stubService{
		identity: Identity{Name: "m", Dimensions: 3},
		fail:     func(call int32) error { return ErrModelLoadFailed },
	}
	c := NewClient(svc, fastOpts())

	_, err := c.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrModelLoadFailed)
	require.EqualValues(t, 3, svc.calls.Load())
}
