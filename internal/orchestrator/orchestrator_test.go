// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quiltmemory/quilt/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestOrchestratorStartsAndShutsDownCleanlyWithEmptyRoot(t *testing.T) {
	dir := t.TempDir()
	o, err := New(config.Snapshot{Dirs: []string{dir}, InMemory: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- o.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErrCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not shut down in time")
	}
}

func TestOrchestratorShutdownIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	o, err := New(config.Snapshot{Dirs: []string{dir}, InMemory: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = o.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	require.NoError(t, o.Shutdown(context.Background()))
}
