// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package walk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, paths <-chan string, errs <-chan error) ([]string, []error) {
	t.Helper()
	var gotPaths []string
	var gotErrs []error
	for paths != nil || errs != nil {
		select {
		case p, ok := <-paths:
			if !ok {
				paths = nil
				continue
			}
			gotPaths = append(gotPaths, p)
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			gotErrs = append(gotErrs, e)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining walker channels")
		}
	}
	return gotPaths, gotErrs
}

func TestOnceWalkerVisitsEveryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("b"), 0o644))

	w := NewOnceWalker()
	paths, errs := w.Walk(context.Background(), []string{dir})
	got, gotErrs := drain(t, paths, errs)

	require.Empty(t, gotErrs)
	require.Len(t, got, 2)
}

func TestOnceWalkerReportsStatErrorWithoutAbortingScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.md"), []byte("a"), 0o644))

	w := NewOnceWalker()
	paths, errs := w.Walk(context.Background(), []string{dir, filepath.Join(dir, "missing")})
	got, gotErrs := drain(t, paths, errs)

	require.Len(t, got, 1)
	require.NotEmpty(t, gotErrs)
}
