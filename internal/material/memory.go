// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package material

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Material Repository for tests and the
// --in-memory fast path. Not durable.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Material
	byPath map[string]string // path -> id, live (non-Error) materials only
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[string]*Material),
		byPath: make(map[string]string),
	}
}

func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) Register(_ context.Context, path string, fileType FileType) (*Material, error) {
	now := time.Now()
	m := &Material{
		ID:              uuid.NewString(),
		Path:            path,
		FileType:        fileType,
		Status:          StatusDiscovered,
		CreatedAt:       now,
		StatusUpdatedAt: now,
		UpdatedAt:       now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = m
	r.byPath[path] = m.ID
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) GetByPath(_ context.Context, path string) (*Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPath[path]
	if !ok {
		return nil, ErrNotFound
	}
	m := r.byID[id]
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, status Status, errMsg *string) (*Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := time.Now()
	if m.Status == StatusError || isLive(m.Status) {
		if m.Status != StatusError {
			delete(r.byPath, m.Path)
		}
	}
	m.Status = status
	m.ErrorMessage = errMsg
	m.StatusUpdatedAt = now
	m.UpdatedAt = now
	if status != StatusError {
		r.byPath[m.Path] = m.ID
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Material, 0, len(r.byID))
	for _, m := range r.byID {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func isLive(s Status) bool {
	return s != StatusError
}

var _ Repository = (*MemoryRepository)(nil)
