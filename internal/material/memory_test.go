// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package material

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryRegisterThenGetByPath(t *testing.T) {
	repo := NewMemoryRepository()
	m, err := repo.Register(context.Background(), "/abs/a.md", FileTypeMarkdown)
	require.NoError(t, err)
	require.Equal(t, StatusDiscovered, m.Status)

	got, err := repo.GetByPath(context.Background(), "/abs/a.md")
	require.NoError(t, err)
	require.Equal(t, m.ID, got.ID)
}

func TestMemoryRepositoryUpdateStatusTouchesTimestamps(t *testing.T) {
	repo := NewMemoryRepository()
	m, err := repo.Register(context.Background(), "/abs/b.md", FileTypeMarkdown)
	require.NoError(t, err)

	updated, err := repo.UpdateStatus(context.Background(), m.ID, StatusCut, nil)
	require.NoError(t, err)
	require.Equal(t, StatusCut, updated.Status)
	require.Equal(t, updated.StatusUpdatedAt, updated.UpdatedAt)
	require.True(t, !updated.UpdatedAt.Before(m.UpdatedAt))
}

func TestMemoryRepositoryUpdateStatusToErrorStoresMessage(t *testing.T) {
	repo := NewMemoryRepository()
	m, err := repo.Register(context.Background(), "/abs/c.md", FileTypeMarkdown)
	require.NoError(t, err)

	msg := "boom"
	updated, err := repo.UpdateStatus(context.Background(), m.ID, StatusError, &msg)
	require.NoError(t, err)
	require.Equal(t, StatusError, updated.Status)
	require.NotNil(t, updated.ErrorMessage)
	require.Equal(t, msg, *updated.ErrorMessage)
}

func TestMemoryRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
