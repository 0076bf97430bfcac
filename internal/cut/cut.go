// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cut defines Quilt's Cut record — a contiguous text fragment of a
// material — and the repository that persists it.
package cut

import (
	"context"
	"errors"
	"time"
)

// Cut is one contiguous text fragment of a material, the unit of embedding.
type Cut struct {
	ID         string
	MaterialID string
	ChunkIndex int
	Content    string
	TokenCount int
	ByteStart  int
	ByteEnd    int
	CreatedAt  time.Time
}

var (
	ErrNotFound        = errors.New("cut: not found")
	ErrOperationFailed = errors.New("cut: operation failed")
)

// Repository persists Cut records. save_many is a single transaction per
// spec.md 4.6.
type Repository interface {
	SaveMany(ctx context.Context, materialID string, cuts []*Cut) error
	GetByMaterialID(ctx context.Context, materialID string) ([]*Cut, error)
	DeleteByMaterialID(ctx context.Context, materialID string) error
	CountByMaterialID(ctx context.Context, materialID string) (int, error)
	Close() error
}
