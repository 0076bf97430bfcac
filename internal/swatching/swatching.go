// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package swatching implements the Swatching stage: it listens for
// MaterialCut events, embeds each cut's content, persists the
// resulting swatches, and transitions the material to Swatched.
package swatching

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/cut"
	"github.com/quiltmemory/quilt/internal/embedding"
	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/material"
	"github.com/quiltmemory/quilt/internal/metrics"
	"github.com/quiltmemory/quilt/internal/swatch"
	"github.com/quiltmemory/quilt/internal/telemetry"
)

var tracer = telemetry.Tracer("quilt/swatching")

// Registrar is the subset of the Material Registry Swatching depends on.
type Registrar interface {
	TransitionToSwatched(ctx context.Context, materialID string, swatchIDs []string) error
	MarkError(ctx context.Context, materialID string, stage material.Stage, message string) error
}

// Options configures one Swatching stage instance.
type Options struct {
	QueueCapacity int
	ItemTimeout   time.Duration

	// DrainGrace bounds how long process keeps consuming the internal
	// queue after ctx is canceled, once listen has closed it. It is
	// independent of ctx, which is already canceled by the time drain
	// runs.
	DrainGrace time.Duration
}

// DefaultOptions returns spec.md's default queue depth (128), the 60s
// per-item timeout spec.md 5 sets to bound slow embeddings, and a 30s
// shutdown drain grace.
func DefaultOptions() Options {
	return Options{QueueCapacity: 128, ItemTimeout: 60 * time.Second, DrainGrace: 30 * time.Second}
}

// item is the unit of work enqueued by the listener: a material id
// paired with the cut ids the MaterialCut event declared, used to
// distinguish a legitimately empty material from a persistence
// inconsistency (see processOne).
type item struct {
	materialID string
	cutIDs     []string
}

// Stage is the Swatching stage.
type Stage struct {
	bus      *bus.Bus
	registry Registrar
	cuts     cut.Repository
	swatches swatch.Repository
	embedder *embedding.Client
	opts     Options
	queue    chan item
}

// New constructs a Swatching stage over the given Event Bus, Registry,
// Cut Repository, Swatch Repository, and embedding Client.
func New(b *bus.Bus, registry Registrar, cuts cut.Repository, swatches swatch.Repository, embedder *embedding.Client, opts Options) *Stage {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 128
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 60 * time.Second
	}
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = 30 * time.Second
	}
	return &Stage{
		bus:      b,
		registry: registry,
		cuts:     cuts,
		swatches: swatches,
		embedder: embedder,
		opts:     opts,
		queue:    make(chan item, opts.QueueCapacity),
	}
}

// Run subscribes to the bus and drives the listener/processor pair
// until ctx is canceled. It blocks until both tasks have exited.
func (s *Stage) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(ctx, "swatching")
	defer func() { _ = sub.Close() }()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.listen(ctx, sub) })
	g.Go(func() error { return s.process(ctx) })
	return g.Wait()
}

func (s *Stage) listen(ctx context.Context, sub *bus.Subscription) error {
	logger := log.WithComponent("swatching")
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
			case bus.MaterialCut:
				it := item{materialID: e.MaterialID, cutIDs: e.CutIDs}
				select {
				case s.queue <- it:
					metrics.StageQueueDepth.WithLabelValues("swatching").Set(float64(len(s.queue)))
				case <-ctx.Done():
					close(s.queue)
					return nil
				}
			case bus.Lagged:
				logger.Warn().Uint64("skipped", e.Skipped).Msg("swatching subscriber lagged, continuing")
			}
		}
	}
}

func (s *Stage) process(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case it, ok := <-s.queue:
			if !ok {
				return nil
			}
			metrics.StageQueueDepth.WithLabelValues("swatching").Set(float64(len(s.queue)))
			itemCtx, cancel := context.WithTimeout(ctx, s.opts.ItemTimeout)
			s.processOne(itemCtx, it)
			cancel()
		}
	}
}

// drain consumes whatever listen left buffered in s.queue once ctx is
// canceled. listen closes s.queue on cancellation, but a closed
// channel still yields its buffered values, so drain can keep reading
// from it with a fresh, independent context until it empties or
// DrainGrace elapses. Each item still gets its own ItemTimeout,
// nested inside the overall drain deadline.
func (s *Stage) drain() error {
	logger := log.WithComponent("swatching")
	drainCtx, cancel := context.WithTimeout(context.Background(), s.opts.DrainGrace)
	defer cancel()

	drained := 0
	for {
		select {
		case it, ok := <-s.queue:
			if !ok {
				if drained > 0 {
					logger.Info().Int("drained", drained).Msg("swatching: drained queue on shutdown")
				}
				return nil
			}
			metrics.StageQueueDepth.WithLabelValues("swatching").Set(float64(len(s.queue)))
			itemCtx, itemCancel := context.WithTimeout(drainCtx, s.opts.ItemTimeout)
			s.processOne(itemCtx, it)
			itemCancel()
			drained++
		case <-drainCtx.Done():
			logger.Warn().Int("drained", drained).Msg("swatching: drain grace elapsed with items still queued")
			return nil
		}
	}
}

func (s *Stage) processOne(ctx context.Context, it item) {
	ctx, span := tracer.Start(ctx, "swatching.process_item")
	defer span.End()

	logger := log.WithComponent("swatching").With().Str(log.FieldMaterialID, it.materialID).Logger()

	// A MaterialCut event with no cut ids means Cutting legitimately
	// produced zero cuts (an empty-file material): settle as Swatched
	// with zero swatches rather than treating it as the NoCuts
	// inconsistency below.
	if len(it.cutIDs) == 0 {
		if err := s.registry.TransitionToSwatched(ctx, it.materialID, nil); err != nil {
			logger.Error().Err(err).Msg("swatching: transition to Swatched failed for empty material")
			metrics.StageProcessedTotal.WithLabelValues("swatching", "error").Inc()
			return
		}
		metrics.StageProcessedTotal.WithLabelValues("swatching", "ok").Inc()
		return
	}

	cuts, err := s.cuts.GetByMaterialID(ctx, it.materialID)
	if err != nil {
		s.fail(ctx, it.materialID, fmt.Sprintf("fetch cuts failed: %v", err), logger)
		return
	}
	if len(cuts) == 0 {
		s.fail(ctx, it.materialID, "no cuts", logger)
		return
	}

	identity := s.embedder.Identity()
	swatches := make([]*swatch.Swatch, 0, len(cuts))

	for _, c := range cuts {
		if strings.TrimSpace(c.Content) == "" {
			logger.Warn().Str(log.FieldCutID, c.ID).Msg("swatching: skipping empty cut")
			continue
		}

		vec, err := s.embedder.Embed(ctx, c.Content)
		if err != nil {
			s.fail(ctx, it.materialID, fmt.Sprintf("embedding failed for cut %s: %v", c.ID, err), logger)
			return
		}

		swatches = append(swatches, &swatch.Swatch{
			ID:           uuid.NewString(),
			CutID:        c.ID,
			MaterialID:   it.materialID,
			Embedding:    normalise(vec),
			ModelName:    identity.Name,
			ModelVersion: identity.Version,
			Dimensions:   identity.Dimensions,
		})
	}

	if err := s.swatches.SaveMany(ctx, swatches); err != nil {
		s.fail(ctx, it.materialID, fmt.Sprintf("save swatches failed: %v", err), logger)
		return
	}

	swatchIDs := make([]string, len(swatches))
	for i, sw := range swatches {
		swatchIDs[i] = sw.ID
	}

	if err := s.registry.TransitionToSwatched(ctx, it.materialID, swatchIDs); err != nil {
		logger.Error().Err(err).Msg("swatching: transition to Swatched failed")
		metrics.StageProcessedTotal.WithLabelValues("swatching", "error").Inc()
		return
	}

	metrics.StageProcessedTotal.WithLabelValues("swatching", "ok").Inc()
}

func (s *Stage) fail(ctx context.Context, materialID, message string, logger zerolog.Logger) {
	logger.Error().Str("reason", message).Msg("swatching: marking material as errored")
	metrics.StageProcessedTotal.WithLabelValues("swatching", "error").Inc()
	if err := s.registry.MarkError(ctx, materialID, material.StageSwatching, message); err != nil {
		logger.Error().Err(err).Msg("swatching: mark_error failed")
	}
}

// normalise unit-normalises an embedding vector. The Embedding Service
// contract does not guarantee a normalised return, so Swatching
// normalises before persisting per spec.md 4.5 step 3.
func normalise(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
