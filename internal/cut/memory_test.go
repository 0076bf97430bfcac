// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cut

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepositorySaveManyOrdersByChunkIndex(t *testing.T) {
	repo := NewMemoryRepository()
	cuts := []*Cut{
		{ID: "c2", MaterialID: "m1", ChunkIndex: 2, Content: "c", TokenCount: 1},
		{ID: "c0", MaterialID: "m1", ChunkIndex: 0, Content: "a", TokenCount: 1},
		{ID: "c1", MaterialID: "m1", ChunkIndex: 1, Content: "b", TokenCount: 1},
	}
	require.NoError(t, repo.SaveMany(context.Background(), "m1", cuts))

	got, err := repo.GetByMaterialID(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 0, got[0].ChunkIndex)
	require.Equal(t, 1, got[1].ChunkIndex)
	require.Equal(t, 2, got[2].ChunkIndex)
}

func TestMemoryRepositoryDeleteByMaterialID(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.SaveMany(context.Background(), "m1", []*Cut{{ID: "c0", MaterialID: "m1", ChunkIndex: 0}}))
	require.NoError(t, repo.DeleteByMaterialID(context.Background(), "m1"))

	n, err := repo.CountByMaterialID(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
