// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package swatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryRepositorySearchSimilarOrdersByScoreThenID(t *testing.T) {
	repo, err := NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	// Scenario 4 from spec.md §8: three unit-normalised embeddings, query
	// [1,0,...] must rank the first and third swatch ids in that order.
	swatches := []*Swatch{
		{ID: "swatch-a", CutID: "cut-a", MaterialID: "m1", Dimensions: 3, Embedding: []float32{1, 0, 0}, ModelName: "m", ModelVersion: "v1"},
		{ID: "swatch-b", CutID: "cut-b", MaterialID: "m1", Dimensions: 3, Embedding: []float32{0, 1, 0}, ModelName: "m", ModelVersion: "v1"},
		{ID: "swatch-c", CutID: "cut-c", MaterialID: "m1", Dimensions: 3, Embedding: []float32{0.99, 0.14, 0}, ModelName: "m", ModelVersion: "v1"},
	}
	require.NoError(t, repo.SaveMany(context.Background(), swatches))

	matches, err := repo.SearchSimilar(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "swatch-a", matches[0].SwatchID)
	require.Equal(t, "swatch-c", matches[1].SwatchID)
	require.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemoryRepositorySearchSimilarBreaksTiesByID(t *testing.T) {
	repo, err := NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	swatches := []*Swatch{
		{ID: "z", CutID: "cut-z", MaterialID: "m1", Dimensions: 2, Embedding: []float32{1, 0}, ModelName: "m", ModelVersion: "v1"},
		{ID: "a", CutID: "cut-a", MaterialID: "m1", Dimensions: 2, Embedding: []float32{1, 0}, ModelName: "m", ModelVersion: "v1"},
	}
	require.NoError(t, repo.SaveMany(context.Background(), swatches))

	matches, err := repo.SearchSimilar(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "a", matches[0].SwatchID)
	require.Equal(t, "z", matches[1].SwatchID)
}

func TestMemoryRepositoryRoundTripPreservesEmbedding(t *testing.T) {
	repo, err := NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	want := []float32{0.6, 0.8, 0}
	s := &Swatch{ID: "s1", CutID: "c1", MaterialID: "m1", Dimensions: 3, Embedding: want, ModelName: "m", ModelVersion: "v1"}
	require.NoError(t, repo.SaveMany(context.Background(), []*Swatch{s}))

	got, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, want, got.Embedding)
	require.Equal(t, 3, got.Dimensions)
}

func TestMemoryRepositorySearchSimilarRejectsDimensionMismatch(t *testing.T) {
	repo, err := NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.SaveMany(context.Background(), []*Swatch{
		{ID: "s1", CutID: "c1", MaterialID: "m1", Dimensions: 3, Embedding: []float32{1, 0, 0}, ModelName: "m", ModelVersion: "v1"},
	}))

	_, err = repo.SearchSimilar(context.Background(), []float32{1, 0}, 1)
	require.ErrorIs(t, err, ErrSearchFailed)
}

func TestMemoryRepositoryDeleteByMaterialIDRemovesIndexEntries(t *testing.T) {
	repo, err := NewMemoryRepository()
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.SaveMany(context.Background(), []*Swatch{
		{ID: "s1", CutID: "c1", MaterialID: "m1", Dimensions: 2, Embedding: []float32{1, 0}, ModelName: "m", ModelVersion: "v1"},
	}))
	require.NoError(t, repo.DeleteByMaterialID(context.Background(), "m1"))

	_, err = repo.GetByID(context.Background(), "s1")
	require.ErrorIs(t, err, ErrNotFound)

	matches, err := repo.SearchSimilar(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, matches)
}
