// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry implements the Material Registry: the central state
// machine and sole publisher of material lifecycle events. It owns the
// Material Repository and the Event Bus and serialises transitions per
// material id.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/fsm"
	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/material"
	"github.com/quiltmemory/quilt/internal/metrics"
	"github.com/quiltmemory/quilt/internal/telemetry"
)

var tracer = telemetry.Tracer("quilt/registry")

type fsmEvent string

const (
	eventCut     fsmEvent = "cut"
	eventSwatch  fsmEvent = "swatch"
	eventError   fsmEvent = "error"
)

// transitions is the legal-successor table from spec.md invariant 1:
// Discovered -> Cut -> Swatched, or any non-terminal state -> Error.
var transitions = []fsm.Transition[material.Status, fsmEvent]{
	{From: material.StatusDiscovered, Event: eventCut, To: material.StatusCut},
	{From: material.StatusCut, Event: eventSwatch, To: material.StatusSwatched},
	{From: material.StatusDiscovered, Event: eventError, To: material.StatusError},
	{From: material.StatusCut, Event: eventError, To: material.StatusError},
}

// Registry is the single writer of material status and the single
// publisher of MaterialDiscovered/MaterialCut/MaterialSwatched/
// ProcessingError events.
type Registry struct {
	materials material.Repository
	bus       *bus.Bus
	locks     keyedMutex
}

// New builds a Registry over the given Material Repository and Event Bus.
func New(materials material.Repository, b *bus.Bus) *Registry {
	return &Registry{materials: materials, bus: b}
}

// Register inserts a new material at path if one doesn't already live
// there. Duplicate registration of the same path is a no-op that returns
// the existing record and emits no event.
func (r *Registry) Register(ctx context.Context, path string, fileType material.FileType) (*material.Material, error) {
	unlock := r.locks.lock(path)
	defer unlock()

	existing, err := r.materials.GetByPath(ctx, path)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, material.ErrNotFound) {
		return nil, fmt.Errorf("registry: lookup existing material: %w", err)
	}

	m, err := r.materials.Register(ctx, path, fileType)
	if err != nil {
		if errors.Is(err, material.ErrAlreadyExists) {
			// Lost a race with another registrar; return the now-live record.
			if existing, getErr := r.materials.GetByPath(ctx, path); getErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("registry: register material: %w", err)
	}

	r.publish(bus.MaterialDiscovered{MaterialID: m.ID, Path: m.Path})
	return m, nil
}

// TransitionToCut moves a material from Discovered to Cut and publishes
// MaterialCut with the ids of the cuts just produced.
func (r *Registry) TransitionToCut(ctx context.Context, materialID string, cutIDs []string) error {
	return r.transition(ctx, materialID, material.StatusCut, eventCut, func(m *material.Material) {
		r.publish(bus.MaterialCut{MaterialID: m.ID, CutIDs: cutIDs})
	})
}

// TransitionToSwatched moves a material from Cut to Swatched and publishes
// MaterialSwatched with the ids of the swatches just produced.
func (r *Registry) TransitionToSwatched(ctx context.Context, materialID string, swatchIDs []string) error {
	return r.transition(ctx, materialID, material.StatusSwatched, eventSwatch, func(m *material.Material) {
		r.publish(bus.MaterialSwatched{MaterialID: m.ID, SwatchIDs: swatchIDs})
	})
}

// MarkError sets a material's status to Error and publishes ProcessingError.
// If stage is empty it is inferred from the material's current status:
// Discovered -> Cutting, Cut -> Swatching.
func (r *Registry) MarkError(ctx context.Context, materialID string, stage material.Stage, message string) error {
	unlock := r.locks.lock(materialID)
	defer unlock()

	current, err := r.materials.GetByID(ctx, materialID)
	if err != nil {
		return fmt.Errorf("registry: lookup material: %w", err)
	}
	if current.Status == material.StatusError {
		return nil // already terminal; idempotent
	}
	if stage == "" {
		stage = inferStage(current.Status)
	}

	m, err := fsm.New(current.Status, transitions)
	if err != nil {
		return fmt.Errorf("registry: build fsm: %w", err)
	}
	if _, err := m.Fire(ctx, eventError); err != nil {
		metrics.RegistryTransitionErrorsTotal.WithLabelValues(string(eventError)).Inc()
		return fmt.Errorf("registry: %w: %v", material.ErrIllegalTransition, err)
	}

	updated, err := r.materials.UpdateStatus(ctx, materialID, material.StatusError, &message)
	if err != nil {
		return fmt.Errorf("registry: persist error status: %w", err)
	}
	metrics.RegistryTransitionsTotal.WithLabelValues(string(current.Status), string(material.StatusError)).Inc()

	r.publish(bus.ProcessingError{MaterialID: updated.ID, Stage: string(stage), Message: message})
	return nil
}

// Lookup returns a material by id.
func (r *Registry) Lookup(ctx context.Context, materialID string) (*material.Material, error) {
	return r.materials.GetByID(ctx, materialID)
}

// LookupByPath returns a live material by absolute path.
func (r *Registry) LookupByPath(ctx context.Context, path string) (*material.Material, error) {
	return r.materials.GetByPath(ctx, path)
}

func (r *Registry) transition(ctx context.Context, materialID string, target material.Status, event fsmEvent, onCommit func(*material.Material)) error {
	ctx, span := tracer.Start(ctx, "registry.transition")
	defer span.End()

	unlock := r.locks.lock(materialID)
	defer unlock()

	current, err := r.materials.GetByID(ctx, materialID)
	if err != nil {
		return fmt.Errorf("registry: lookup material: %w", err)
	}
	if current.Status == target {
		return nil // idempotent re-transition to the same state: no-op, no event
	}

	m, err := fsm.New(current.Status, transitions)
	if err != nil {
		return fmt.Errorf("registry: build fsm: %w", err)
	}
	if _, err := m.Fire(ctx, event); err != nil {
		metrics.RegistryTransitionErrorsTotal.WithLabelValues(string(event)).Inc()
		return fmt.Errorf("registry: %w: %v", material.ErrIllegalTransition, err)
	}

	updated, err := r.materials.UpdateStatus(ctx, materialID, target, nil)
	if err != nil {
		return fmt.Errorf("registry: persist transition: %w", err)
	}
	metrics.RegistryTransitionsTotal.WithLabelValues(string(current.Status), string(target)).Inc()

	onCommit(updated)
	return nil
}

// publish emits an event and never fails the caller: per spec.md 4.2's
// atomicity contract, once persistence has committed the transition is
// considered successful even if the bus itself is shut down.
func (r *Registry) publish(event bus.Event) {
	if err := r.bus.Publish(event); err != nil {
		log.WithComponent("registry").Warn().
			Str(log.FieldEvent, bus.Name(event)).
			Err(err).
			Msg("failed to publish event after committed transition")
	}
}

func inferStage(status material.Status) material.Stage {
	switch status {
	case material.StatusDiscovered:
		return material.StageCutting
	case material.StatusCut:
		return material.StageSwatching
	default:
		return material.StageDiscovery
	}
}
