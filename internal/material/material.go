// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package material defines Quilt's Material record — one source file
// tracked through the Discovery -> Cutting -> Swatching pipeline — and the
// repository interface used to persist it.
package material

import (
	"context"
	"errors"
	"time"
)

// FileType classifies a material by how the Cutter strategy should treat it.
type FileType string

const (
	FileTypeMarkdown  FileType = "Markdown"
	FileTypePlainText FileType = "PlainText"
	FileTypeOther     FileType = "Other"
)

// FileTypeFromExtension maps a filename extension to a FileType following
// spec.md 4.3: ".md" -> Markdown, ".txt" -> PlainText, else Other.
func FileTypeFromExtension(ext string) FileType {
	switch ext {
	case ".md":
		return FileTypeMarkdown
	case ".txt":
		return FileTypePlainText
	default:
		return FileTypeOther
	}
}

// Status is a material's position in the processing DAG.
type Status string

const (
	StatusDiscovered Status = "Discovered"
	StatusCut        Status = "Cut"
	StatusSwatched   Status = "Swatched"
	StatusError      Status = "Error"
)

// Stage names a pipeline stage, used to tag mark_error calls and
// ProcessingError events.
type Stage string

const (
	StageDiscovery Stage = "Discovery"
	StageCutting   Stage = "Cutting"
	StageSwatching Stage = "Swatching"
)

// Material is one source file observed on disk.
type Material struct {
	ID              string
	Path            string
	FileType        FileType
	Status          Status
	ErrorMessage    *string
	CreatedAt       time.Time
	StatusUpdatedAt time.Time
	UpdatedAt       time.Time
}

// Domain errors returned by the Material Repository and Registry.
var (
	ErrNotFound          = errors.New("material: not found")
	ErrAlreadyExists     = errors.New("material: already exists")
	ErrOperationFailed   = errors.New("material: operation failed")
	ErrIllegalTransition = errors.New("material: illegal transition")
)

// Repository persists Material records. Writes use explicit transactions;
// reads run on pooled connections without one.
type Repository interface {
	// Register inserts a new material with status Discovered. It is the
	// caller's (Registry's) responsibility to first check for an existing
	// live material at the same path; Register always inserts.
	Register(ctx context.Context, path string, fileType FileType) (*Material, error)

	GetByID(ctx context.Context, id string) (*Material, error)

	// GetByPath returns the live (non-Error) material at path, if any.
	GetByPath(ctx context.Context, path string) (*Material, error)

	// UpdateStatus atomically sets status (and errMsg when status is
	// Error), updating both status_updated_at and updated_at.
	UpdateStatus(ctx context.Context, id string, status Status, errMsg *string) (*Material, error)

	List(ctx context.Context) ([]*Material, error)

	Close() error
}
