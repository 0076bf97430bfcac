// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package walk

import (
	"context"
	"io/fs"
	"path/filepath"
)

// OnceWalker performs a single filepath.WalkDir pass per root, per
// spec.md 4.3 ("scans one or more configured roots once per
// invocation"). Walk errors are reported on the error channel and
// never abort the scan of the remaining tree.
type OnceWalker struct{}

// NewOnceWalker constructs the default one-shot Walker.
func NewOnceWalker() *OnceWalker { return &OnceWalker{} }

func (w *OnceWalker) Walk(ctx context.Context, roots []string) (<-chan string, <-chan error) {
	paths := make(chan string)
	errs := make(chan error, len(roots))

	go func() {
		defer close(paths)
		defer close(errs)

		for _, root := range roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				errs <- err
				continue
			}

			walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				if err != nil {
					errs <- err
					if d != nil && d.IsDir() {
						return fs.SkipDir
					}
					return nil
				}
				if d.IsDir() {
					return nil
				}

				select {
				case paths <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
			if walkErr != nil && walkErr != ctx.Err() {
				errs <- walkErr
			}
		}
	}()

	return paths, errs
}

var _ Walker = (*OnceWalker)(nil)
