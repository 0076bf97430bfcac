// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package swatching

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/cut"
	"github.com/quiltmemory/quilt/internal/embedding"
	"github.com/quiltmemory/quilt/internal/material"
	"github.com/quiltmemory/quilt/internal/resilience"
	"github.com/quiltmemory/quilt/internal/swatch"
)

type fakeRegistry struct {
	mu          sync.Mutex
	swatchIDs   map[string][]string
	errored     map[string]string
	transitions int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{swatchIDs: map[string][]string{}, errored: map[string]string{}}
}

func (r *fakeRegistry) TransitionToSwatched(ctx context.Context, id string, swatchIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swatchIDs[id] = swatchIDs
	r.transitions++
	return nil
}

func (r *fakeRegistry) MarkError(ctx context.Context, id string, stage material.Stage, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored[id] = message
	return nil
}

type stubEmbedder struct{}

func (stubEmbedder) Identity() embedding.Identity {
	return embedding.Identity{Name: "stub", Version: "v1", Dimensions: 3}
}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{3, 0, 4} // normalises to [0.6, 0, 0.8]
	}
	return out, nil
}

func testClient() *embedding.Client {
	return embedding.NewClient(stubEmbedder{}, embedding.ClientOpts{
		RetryOpts:         resilience.RetryOpts{MaxAttempts: 1, InitialWait: time.Millisecond, BackoffFactor: 1},
		RequestsPerSecond: rate.Inf,
		Burst:             1000,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSwatchingStageEmbedsAndTransitionsOnMaterialCut(t *testing.T) {
	b := bus.New(8)
	registry := newFakeRegistry()

	cuts := cut.NewMemoryRepository()
	require.NoError(t, cuts.SaveMany(context.Background(), "m1", []*cut.Cut{
		{ID: "c1", MaterialID: "m1", ChunkIndex: 0, Content: "hello world"},
	}))

	swatches, err := swatch.NewMemoryRepository()
	require.NoError(t, err)
	defer swatches.Close()

	stage := New(b, registry, cuts, swatches, testClient(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { defer close(done); _ = stage.Run(ctx) }()

	require.NoError(t, b.Publish(bus.MaterialCut{MaterialID: "m1", CutIDs: []string{"c1"}}))

	waitFor(t, func() bool {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		return registry.transitions == 1
	})

	saved, err := swatches.GetByMaterialID(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.InDelta(t, 1.0, float64(saved[0].Embedding[0]*saved[0].Embedding[0]+saved[0].Embedding[2]*saved[0].Embedding[2]), 1e-3)

	cancel()
	<-done
}

func TestSwatchingStageSettlesEmptyMaterialWithoutNoCutsError(t *testing.T) {
	b := bus.New(8)
	registry := newFakeRegistry()
	cuts := cut.NewMemoryRepository()
	swatches, err := swatch.NewMemoryRepository()
	require.NoError(t, err)
	defer swatches.Close()

	stage := New(b, registry, cuts, swatches, testClient(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { defer close(done); _ = stage.Run(ctx) }()

	require.NoError(t, b.Publish(bus.MaterialCut{MaterialID: "empty", CutIDs: nil}))

	waitFor(t, func() bool {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		return registry.transitions == 1
	})

	registry.mu.Lock()
	_, errored := registry.errored["empty"]
	registry.mu.Unlock()
	require.False(t, errored)

	cancel()
	<-done
}

func TestSwatchingStageDrainsQueuedItemsOnShutdown(t *testing.T) {
	b := bus.New(8)
	registry := newFakeRegistry()
	cuts := cut.NewMemoryRepository()
	swatches, err := swatch.NewMemoryRepository()
	require.NoError(t, err)
	defer swatches.Close()

	stage := New(b, registry, cuts, swatches, testClient(), DefaultOptions())

	const n = 50
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%02d", i)
		cutID := "c" + id
		require.NoError(t, cuts.SaveMany(context.Background(), id, []*cut.Cut{
			{ID: cutID, MaterialID: id, ChunkIndex: 0, Content: "hello world"},
		}))
		stage.queue <- item{materialID: id, cutIDs: []string{cutID}}
	}
	close(stage.queue)

	require.NoError(t, stage.drain())

	registry.mu.Lock()
	defer registry.mu.Unlock()
	require.Equal(t, n, registry.transitions, "every queued item must reach a terminal state, not be abandoned")
}

func TestSwatchingStageMarksNoCutsWhenExpectedCutsAreMissing(t *testing.T) {
	b := bus.New(8)
	registry := newFakeRegistry()
	cuts := cut.NewMemoryRepository() // no cuts saved, unlike the event claims
	swatches, err := swatch.NewMemoryRepository()
	require.NoError(t, err)
	defer swatches.Close()

	stage := New(b, registry, cuts, swatches, testClient(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { defer close(done); _ = stage.Run(ctx) }()

	require.NoError(t, b.Publish(bus.MaterialCut{MaterialID: "inconsistent", CutIDs: []string{"ghost"}}))

	waitFor(t, func() bool {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		_, ok := registry.errored["inconsistent"]
		return ok
	})

	registry.mu.Lock()
	msg := registry.errored["inconsistent"]
	registry.mu.Unlock()
	require.Equal(t, "no cuts", msg)

	cancel()
	<-done
}
