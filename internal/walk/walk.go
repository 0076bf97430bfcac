// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package walk implements the directory-walk utility spec.md 6 names
// as an external collaborator: turning a watched root directory into a
// stream of candidate file paths for Discovery.
package walk

import "context"

// Walker yields candidate file paths under one or more roots. Paths
// sent on the returned channel are absolute. The channel is closed
// when the walk is done (OnceWalker) or when ctx is canceled
// (FSNotifyWalker).
type Walker interface {
	Walk(ctx context.Context, roots []string) (<-chan string, <-chan error)
}
