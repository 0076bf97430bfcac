// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package embedding defines the Embedding Service contract Swatching
// depends on (spec.md 6: "the specific embedding-model binding" is an
// external collaborator) and a default HTTP-backed implementation.
package embedding

import (
	"context"
	"errors"
)

// Identity describes the embedding model bound to a Service. It is
// pure and cached for the lifetime of the process: Quilt runs one
// embedding model per process lifetime.
type Identity struct {
	Name       string
	Version    string
	Dimensions int
}

var (
	// ErrModelLoadFailed is transient and retryable (the model backend
	// was not ready to serve a request).
	ErrModelLoadFailed = errors.New("embedding: model load failed")

	// ErrGenerationFailed is permanent for the given input; retrying
	// the same text will not help.
	ErrGenerationFailed = errors.New("embedding: generation failed")

	// ErrEmptyInput is returned for whitespace-only text, rejected
	// per-cut without aborting the batch.
	ErrEmptyInput = errors.New("embedding: empty input")
)

// Service embeds batches of text. Embed returns, in order, one vector
// of length Identity().Dimensions per input string.
type Service interface {
	Identity() Identity
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
