// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cutting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/cut"
	"github.com/quiltmemory/quilt/internal/cutter"
	"github.com/quiltmemory/quilt/internal/material"
)

type fakeRegistry struct {
	mu          sync.Mutex
	materials   map[string]*material.Material
	cutIDs      map[string][]string
	errored     map[string]string
	transitions int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		materials: map[string]*material.Material{},
		cutIDs:    map[string][]string{},
		errored:   map[string]string{},
	}
}

func (r *fakeRegistry) Lookup(ctx context.Context, id string) (*material.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials[id]
	if !ok {
		return nil, material.ErrNotFound
	}
	return m, nil
}

func (r *fakeRegistry) TransitionToCut(ctx context.Context, id string, cutIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutIDs[id] = cutIDs
	r.transitions++
	return nil
}

func (r *fakeRegistry) MarkError(ctx context.Context, id string, stage material.Stage, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored[id] = message
	return nil
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

func TestCuttingStageCutsAndTransitionsOnMaterialDiscovered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("hello world, this is a test file"), 0o644))

	b := bus.New(8)
	registry := newFakeRegistry()
	registry.materials["m1"] = &material.Material{ID: "m1", Path: path, FileType: material.FileTypeMarkdown}

	cuts := cut.NewMemoryRepository()
	stage := New(b, registry, cuts, cutter.New(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { defer close(done); _ = stage.Run(ctx) }()

	require.NoError(t, b.Publish(bus.MaterialDiscovered{MaterialID: "m1", Path: path}))

	waitFor(t, func() bool {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		return registry.transitions == 1
	})

	savedCuts, err := cuts.GetByMaterialID(ctx, "m1")
	require.NoError(t, err)
	require.NotEmpty(t, savedCuts)

	cancel()
	<-done
}

func TestCuttingStageDrainsQueuedMaterialsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	b := bus.New(8)
	registry := newFakeRegistry()
	cuts := cut.NewMemoryRepository()
	stage := New(b, registry, cuts, cutter.New(), DefaultOptions())

	const n = 50
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("m%02d", i)
		path := filepath.Join(dir, id+".md")
		require.NoError(t, os.WriteFile(path, []byte("content "+id), 0o644))
		registry.materials[id] = &material.Material{ID: id, Path: path, FileType: material.FileTypeMarkdown}
		stage.queue <- id
	}
	close(stage.queue)

	require.NoError(t, stage.drain())

	registry.mu.Lock()
	defer registry.mu.Unlock()
	require.Equal(t, n, registry.transitions, "every queued material must reach a terminal state, not be abandoned")
}

func TestCuttingStageMarksErrorOnUnreadableFile(t *testing.T) {
	b := bus.New(8)
	registry := newFakeRegistry()
	registry.materials["m1"] = &material.Material{ID: "m1", Path: "/nonexistent/path.md", FileType: material.FileTypeMarkdown}

	cuts := cut.NewMemoryRepository()
	stage := New(b, registry, cuts, cutter.New(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() { defer close(done); _ = stage.Run(ctx) }()

	require.NoError(t, b.Publish(bus.MaterialDiscovered{MaterialID: "m1", Path: "/nonexistent/path.md"}))

	waitFor(t, func() bool {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		_, ok := registry.errored["m1"]
		return ok
	})

	cancel()
	<-done
}
