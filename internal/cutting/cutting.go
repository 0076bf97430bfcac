// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cutting implements the Cutting stage: it listens for
// MaterialDiscovered events, reads and splits each material's file,
// persists the resulting cuts, and transitions the material to Cut.
package cutting

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/cut"
	"github.com/quiltmemory/quilt/internal/cutter"
	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/material"
	"github.com/quiltmemory/quilt/internal/metrics"
	"github.com/quiltmemory/quilt/internal/telemetry"
)

var tracer = telemetry.Tracer("quilt/cutting")

// Registrar is the subset of the Material Registry Cutting depends on.
type Registrar interface {
	Lookup(ctx context.Context, materialID string) (*material.Material, error)
	TransitionToCut(ctx context.Context, materialID string, cutIDs []string) error
	MarkError(ctx context.Context, materialID string, stage material.Stage, message string) error
}

// Options configures one Cutting stage instance.
type Options struct {
	QueueCapacity int
	CutterOpts    cutter.Options

	// DrainGrace bounds how long process keeps consuming the internal
	// queue after ctx is canceled, once listen has closed it. It is
	// independent of ctx, which is already canceled by the time drain
	// runs.
	DrainGrace time.Duration
}

// DefaultOptions returns spec.md's default internal queue depth (128),
// the Cutter's default token bounds, and a 30s shutdown drain grace.
func DefaultOptions() Options {
	return Options{QueueCapacity: 128, CutterOpts: cutter.DefaultOptions(), DrainGrace: 30 * time.Second}
}

// Stage is the Cutting stage: a listener task that enqueues material
// ids from the bus and a processor task that cuts and persists them.
type Stage struct {
	bus      *bus.Bus
	registry Registrar
	cuts     cut.Repository
	strategy cutter.Cutter
	opts     Options
	queue    chan string
}

// New constructs a Cutting stage over the given Event Bus, Registry and
// Cut Repository.
func New(b *bus.Bus, registry Registrar, cuts cut.Repository, strategy cutter.Cutter, opts Options) *Stage {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 128
	}
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = 30 * time.Second
	}
	return &Stage{
		bus:      b,
		registry: registry,
		cuts:     cuts,
		strategy: strategy,
		opts:     opts,
		queue:    make(chan string, opts.QueueCapacity),
	}
}

// Run subscribes to the bus and drives the listener/processor pair
// until ctx is canceled. It blocks until both tasks have exited.
func (s *Stage) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(ctx, "cutting")
	defer func() { _ = sub.Close() }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.listen(ctx, sub) })
	g.Go(func() error { return s.process(ctx) })
	return g.Wait()
}

func (s *Stage) listen(ctx context.Context, sub *bus.Subscription) error {
	logger := log.WithComponent("cutting")
	for {
		select {
		case <-ctx.Done():
			close(s.queue)
			return nil
		case ev, ok := <-sub.C():
			if !ok {
				close(s.queue)
				return nil
			}
			switch e := ev.(type) {
			case bus.MaterialDiscovered:
				select {
				case s.queue <- e.MaterialID:
					metrics.StageQueueDepth.WithLabelValues("cutting").Set(float64(len(s.queue)))
				case <-ctx.Done():
					close(s.queue)
					return nil
				}
			case bus.Lagged:
				logger.Warn().Uint64("skipped", e.Skipped).Msg("cutting subscriber lagged, continuing")
			}
		}
	}
}

func (s *Stage) process(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case materialID, ok := <-s.queue:
			if !ok {
				return nil
			}
			metrics.StageQueueDepth.WithLabelValues("cutting").Set(float64(len(s.queue)))
			s.processOne(ctx, materialID)
		}
	}
}

// drain consumes whatever listen left buffered in s.queue once ctx is
// canceled. listen closes s.queue on cancellation, but a closed
// channel still yields its buffered values, so drain can keep reading
// from it with a fresh, independent context until it empties or
// DrainGrace elapses.
func (s *Stage) drain() error {
	logger := log.WithComponent("cutting")
	drainCtx, cancel := context.WithTimeout(context.Background(), s.opts.DrainGrace)
	defer cancel()

	drained := 0
	for {
		select {
		case materialID, ok := <-s.queue:
			if !ok {
				if drained > 0 {
					logger.Info().Int("drained", drained).Msg("cutting: drained queue on shutdown")
				}
				return nil
			}
			metrics.StageQueueDepth.WithLabelValues("cutting").Set(float64(len(s.queue)))
			s.processOne(drainCtx, materialID)
			drained++
		case <-drainCtx.Done():
			logger.Warn().Int("drained", drained).Msg("cutting: drain grace elapsed with items still queued")
			return nil
		}
	}
}

func (s *Stage) processOne(ctx context.Context, materialID string) {
	ctx, span := tracer.Start(ctx, "cutting.process_item")
	defer span.End()

	logger := log.WithComponent("cutting").With().Str(log.FieldMaterialID, materialID).Logger()

	m, err := s.registry.Lookup(ctx, materialID)
	if err != nil {
		s.fail(ctx, materialID, "material not found", logger)
		return
	}

	text, err := os.ReadFile(m.Path)
	if err != nil {
		s.fail(ctx, materialID, fmt.Sprintf("read failed: %v", err), logger)
		return
	}

	frags, err := s.strategy.Cut(string(text), m.FileType, s.opts.CutterOpts)
	if err != nil {
		s.fail(ctx, materialID, fmt.Sprintf("cut failed: %v", err), logger)
		return
	}

	cuts := make([]*cut.Cut, len(frags))
	cutIDs := make([]string, len(frags))
	for i, f := range frags {
		id := uuid.NewString()
		cutIDs[i] = id
		cuts[i] = &cut.Cut{
			ID:         id,
			MaterialID: materialID,
			ChunkIndex: i,
			Content:    f.Content,
			TokenCount: f.TokenCount,
			ByteStart:  f.ByteStart,
			ByteEnd:    f.ByteEnd,
		}
	}

	if err := s.cuts.SaveMany(ctx, materialID, cuts); err != nil {
		s.fail(ctx, materialID, fmt.Sprintf("save cuts failed: %v", err), logger)
		return
	}

	if err := s.registry.TransitionToCut(ctx, materialID, cutIDs); err != nil {
		logger.Error().Err(err).Msg("cutting: transition to Cut failed")
		metrics.StageProcessedTotal.WithLabelValues("cutting", "error").Inc()
		return
	}

	metrics.StageProcessedTotal.WithLabelValues("cutting", "ok").Inc()
}

func (s *Stage) fail(ctx context.Context, materialID, message string, logger zerolog.Logger) {
	logger.Error().Str("reason", message).Msg("cutting: marking material as errored")
	metrics.StageProcessedTotal.WithLabelValues("cutting", "error").Inc()
	if err := s.registry.MarkError(ctx, materialID, material.StageCutting, message); err != nil {
		logger.Error().Err(err).Msg("cutting: mark_error failed")
	}
}
