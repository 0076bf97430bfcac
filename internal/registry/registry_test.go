// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	quiltbus "github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/material"
)

func newTestRegistry() (*Registry, *quiltbus.Bus) {
	b := quiltbus.New(16)
	repo := material.NewMemoryRepository()
	return New(repo, b), b
}

func TestRegisterIsIdempotentAndEmitsOnce(t *testing.T) {
	r, b := newTestRegistry()
	defer b.Close()

	sub := b.Subscribe(context.Background(), "test")
	defer sub.Close()

	m1, err := r.Register(context.Background(), "/abs/a.md", material.FileTypeMarkdown)
	require.NoError(t, err)
	m2, err := r.Register(context.Background(), "/abs/a.md", material.FileTypeMarkdown)
	require.NoError(t, err)
	require.Equal(t, m1.ID, m2.ID)

	select {
	case ev := <-sub.C():
		require.IsType(t, quiltbus.MaterialDiscovered{}, ev)
	case <-time.After(time.Second):
		t.Fatal("expected MaterialDiscovered event")
	}

	select {
	case ev := <-sub.C():
		t.Fatalf("expected no second event, got %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransitionToCutThenSwatchedFollowsDAG(t *testing.T) {
	r, b := newTestRegistry()
	defer b.Close()

	m, err := r.Register(context.Background(), "/abs/b.md", material.FileTypeMarkdown)
	require.NoError(t, err)

	require.NoError(t, r.TransitionToCut(context.Background(), m.ID, []string{"c1"}))
	got, err := r.Lookup(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, material.StatusCut, got.Status)

	require.NoError(t, r.TransitionToSwatched(context.Background(), m.ID, []string{"s1"}))
	got, err = r.Lookup(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, material.StatusSwatched, got.Status)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	r, b := newTestRegistry()
	defer b.Close()

	m, err := r.Register(context.Background(), "/abs/c.md", material.FileTypeMarkdown)
	require.NoError(t, err)

	err = r.TransitionToSwatched(context.Background(), m.ID, nil)
	require.Error(t, err)

	got, err := r.Lookup(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, material.StatusDiscovered, got.Status, "state must not change on rejected transition")
}

func TestTransitionToSameStateIsNoOpAndEmitsNoEvent(t *testing.T) {
	r, b := newTestRegistry()
	defer b.Close()

	m, err := r.Register(context.Background(), "/abs/d.md", material.FileTypeMarkdown)
	require.NoError(t, err)
	require.NoError(t, r.TransitionToCut(context.Background(), m.ID, []string{"c1"}))

	sub := b.Subscribe(context.Background(), "test")
	defer sub.Close()

	require.NoError(t, r.TransitionToCut(context.Background(), m.ID, []string{"c1"}))

	select {
	case ev := <-sub.C():
		t.Fatalf("expected no event for idempotent re-transition, got %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarkErrorInfersStageFromCurrentStatus(t *testing.T) {
	r, b := newTestRegistry()
	defer b.Close()

	m, err := r.Register(context.Background(), "/abs/e.md", material.FileTypeMarkdown)
	require.NoError(t, err)

	sub := b.Subscribe(context.Background(), "test")
	defer sub.Close()

	require.NoError(t, r.MarkError(context.Background(), m.ID, "", "boom"))
	got, err := r.Lookup(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, material.StatusError, got.Status)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, "boom", *got.ErrorMessage)

	select {
	case ev := <-sub.C():
		pe, ok := ev.(quiltbus.ProcessingError)
		require.True(t, ok, "expected ProcessingError, got %#v", ev)
		require.Equal(t, string(material.StageCutting), pe.Stage, "Discovered material must be tagged with the Cutting stage")
	case <-time.After(time.Second):
		t.Fatal("expected ProcessingError event")
	}
}

func TestMarkErrorOnAlreadyErroredMaterialIsSwallowed(t *testing.T) {
	r, b := newTestRegistry()
	defer b.Close()

	m, err := r.Register(context.Background(), "/abs/f.md", material.FileTypeMarkdown)
	require.NoError(t, err)
	require.NoError(t, r.MarkError(context.Background(), m.ID, material.StageCutting, "first"))
	require.NoError(t, r.MarkError(context.Background(), m.ID, material.StageCutting, "second"))

	got, err := r.Lookup(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, "first", *got.ErrorMessage, "second mark_error on a terminal material must be a no-op")
}
