// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package swatch

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// MemoryRepository is the --in-memory fast-path Swatch Repository. Rows are
// kept in a plain map for fast lookup; the vector index itself is backed by
// an embedded badger.DB opened against a temporary in-memory instance, so
// the fast path still exercises a real embedded storage engine rather than
// a bare Go map, matching the on-disk repository's "index is a distinct
// companion structure" shape.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Swatch
	byCut map[string]string // cutID -> swatchID

	index *badger.DB // in-memory vector index, keyed by swatch id
}

// NewMemoryRepository opens an in-memory badger instance to back the
// vector index and returns a ready MemoryRepository.
func NewMemoryRepository() (*MemoryRepository, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open in-memory vector index: %v", ErrOperationFailed, err)
	}
	return &MemoryRepository{
		byID:  make(map[string]*Swatch),
		byCut: make(map[string]string),
		index: db,
	}, nil
}

func (r *MemoryRepository) Close() error {
	return r.index.Close()
}

type indexEntry struct {
	MaterialID string
	Embedding  []float32
}

func (r *MemoryRepository) SaveMany(_ context.Context, swatches []*Swatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.index.Update(func(txn *badger.Txn) error {
		for _, s := range swatches {
			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(indexEntry{MaterialID: s.MaterialID, Embedding: s.Embedding}); err != nil {
				return fmt.Errorf("%w: encode vector index entry: %v", ErrOperationFailed, err)
			}
			if err := txn.Set([]byte(s.ID), buf.Bytes()); err != nil {
				return fmt.Errorf("%w: write vector index entry: %v", ErrOperationFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, s := range swatches {
		cp := *s
		r.byID[s.ID] = &cp
		r.byCut[s.CutID] = s.ID
	}
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Swatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) GetByCutID(_ context.Context, cutID string) (*Swatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCut[cutID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) GetByMaterialID(_ context.Context, materialID string) ([]*Swatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Swatch
	for _, s := range r.byID {
		if s.MaterialID == materialID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeleteByMaterialID(_ context.Context, materialID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var toDelete []string
	for id, s := range r.byID {
		if s.MaterialID == materialID {
			toDelete = append(toDelete, id)
			delete(r.byCut, s.CutID)
			delete(r.byID, id)
		}
	}
	if len(toDelete) == 0 {
		return nil
	}
	return r.index.Update(func(txn *badger.Txn) error {
		for _, id := range toDelete {
			if err := txn.Delete([]byte(id)); err != nil {
				return fmt.Errorf("%w: delete vector index entry: %v", ErrOperationFailed, err)
			}
		}
		return nil
	})
}

func (r *MemoryRepository) DeleteByCutID(_ context.Context, cutID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCut[cutID]
	if !ok {
		return nil
	}
	delete(r.byCut, cutID)
	delete(r.byID, id)
	return r.index.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(id))
	})
}

func (r *MemoryRepository) SearchSimilar(_ context.Context, query []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	var matches []Match
	err := r.index.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			var entry indexEntry
			if err := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&entry)
			}); err != nil {
				return fmt.Errorf("%w: decode vector index entry: %v", ErrSearchFailed, err)
			}
			if len(entry.Embedding) != len(query) {
				return fmt.Errorf("%w: query dimension %d does not match index dimension %d", ErrSearchFailed, len(query), len(entry.Embedding))
			}
			score := CosineSimilarity(query, entry.Embedding)
			matches = append(matches, Match{SwatchID: key, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SwatchID < matches[j].SwatchID
	})
}

var _ Repository = (*MemoryRepository)(nil)
