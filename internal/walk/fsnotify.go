// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package walk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/quiltmemory/quilt/internal/log"
)

// FSNotifyWalker supplements the one-shot OnceWalker with a continuous
// Discovery backend: it emits every path under the roots once (like
// OnceWalker), then keeps watching the roots and re-emits any path
// that is created or written to, relying on Registry.register's
// idempotency for re-discovered files.
type FSNotifyWalker struct {
	once *OnceWalker
}

// NewFSNotifyWalker constructs a continuous-rescan Walker.
func NewFSNotifyWalker() *FSNotifyWalker {
	return &FSNotifyWalker{once: NewOnceWalker()}
}

func (w *FSNotifyWalker) Walk(ctx context.Context, roots []string) (<-chan string, <-chan error) {
	paths := make(chan string)
	errs := make(chan error, 1)

	initial, initialErrs := w.once.Walk(ctx, roots)

	go func() {
		defer close(paths)
		defer close(errs)

		for p := range initial {
			select {
			case paths <- p:
			case <-ctx.Done():
				return
			}
		}
		for e := range initialErrs {
			select {
			case errs <- e:
			case <-ctx.Done():
				return
			}
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			errs <- fmt.Errorf("walk: fsnotify.NewWatcher: %w", err)
			return
		}
		defer func() { _ = watcher.Close() }()

		logger := log.WithComponent("walk")

		for _, root := range roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				errs <- err
				continue
			}
			if err := addRecursive(watcher, abs); err != nil {
				errs <- err
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
					continue
				}
				select {
				case paths <- ev.Name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("fsnotify watcher error")
			}
		}
	}()

	return paths, errs
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

var _ Walker = (*FSNotifyWalker)(nil)
