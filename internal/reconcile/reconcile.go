// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package reconcile implements the Sweep helper spec.md repeatedly
// describes as an out-of-scope collaborator (4.4 step 1, 7, 9) but
// never specifies: republishing MaterialDiscovered/MaterialCut for
// materials stuck past a configurable age in Discovered/Cut, relying
// on the idempotency laws the core pipeline already guarantees.
package reconcile

import (
	"context"
	"time"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/cut"
	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/material"
)

// Results reports how many stuck materials were re-published.
type Results struct {
	Rediscovered int
	Recut        int
	Failed       int
}

// Sweeper republishes stuck pipeline events.
type Sweeper struct {
	materials material.Repository
	cuts      cut.Repository
	bus       *bus.Bus
	maxAge    time.Duration
}

// New constructs a Sweeper. maxAge bounds how long a material may sit
// in Discovered or Cut before Sweep considers it stuck; a zero maxAge
// defaults to 10 minutes.
func New(materials material.Repository, cuts cut.Repository, b *bus.Bus, maxAge time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Sweeper{materials: materials, cuts: cuts, bus: b, maxAge: maxAge}
}

// Sweep lists every material and republishes MaterialDiscovered for
// any stuck in Discovered, or MaterialCut for any stuck in Cut, past
// the configured age. It never aborts on a single material's failure.
func (s *Sweeper) Sweep(ctx context.Context) Results {
	logger := log.WithComponent("reconcile")
	var results Results

	materials, err := s.materials.List(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile: list materials failed")
		results.Failed++
		return results
	}

	cutoff := time.Now().Add(-s.maxAge)
	for _, m := range materials {
		if m.StatusUpdatedAt.After(cutoff) {
			continue
		}

		switch m.Status {
		case material.StatusDiscovered:
			if err := s.bus.Publish(bus.MaterialDiscovered{MaterialID: m.ID, Path: m.Path}); err != nil {
				results.Failed++
				logger.Warn().Str(log.FieldMaterialID, m.ID).Err(err).Msg("reconcile: republish MaterialDiscovered failed")
				continue
			}
			results.Rediscovered++

		case material.StatusCut:
			cuts, err := s.cuts.GetByMaterialID(ctx, m.ID)
			if err != nil {
				results.Failed++
				logger.Warn().Str(log.FieldMaterialID, m.ID).Err(err).Msg("reconcile: fetch cuts failed")
				continue
			}
			cutIDs := make([]string, len(cuts))
			for i, c := range cuts {
				cutIDs[i] = c.ID
			}
			if err := s.bus.Publish(bus.MaterialCut{MaterialID: m.ID, CutIDs: cutIDs}); err != nil {
				results.Failed++
				logger.Warn().Str(log.FieldMaterialID, m.ID).Err(err).Msg("reconcile: republish MaterialCut failed")
				continue
			}
			results.Recut++
		}
	}

	return results
}
