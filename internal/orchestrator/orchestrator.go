// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator wires Quilt's components into a running pipeline
// and owns their startup and shutdown order, following spec.md 4.7 and
// 9's dependency ordering: repositories and the Event Bus have no
// dependents that outlive them, the Registry depends on the Bus, and
// every stage depends on both.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quiltmemory/quilt/internal/bus"
	"github.com/quiltmemory/quilt/internal/config"
	"github.com/quiltmemory/quilt/internal/cut"
	"github.com/quiltmemory/quilt/internal/cutter"
	"github.com/quiltmemory/quilt/internal/cutting"
	"github.com/quiltmemory/quilt/internal/discovery"
	"github.com/quiltmemory/quilt/internal/embedding"
	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/material"
	"github.com/quiltmemory/quilt/internal/persistence/sqlite"
	"github.com/quiltmemory/quilt/internal/reconcile"
	"github.com/quiltmemory/quilt/internal/registry"
	"github.com/quiltmemory/quilt/internal/statusapi"
	"github.com/quiltmemory/quilt/internal/swatch"
	"github.com/quiltmemory/quilt/internal/swatching"
	"github.com/quiltmemory/quilt/internal/telemetry"
	"github.com/quiltmemory/quilt/internal/walk"
)

const (
	// defaultEmbeddingBaseURL is the local Ollama-compatible endpoint
	// Quilt's embedding.HTTPService talks to. Not exposed as a CLI flag
	// per spec.md 6; only --model is.
	defaultEmbeddingBaseURL = "http://localhost:11434"
	defaultEmbeddingModel   = "nomic-embed-text"
	defaultDimensions       = 768

	// shutdownTimeout bounds how long Shutdown waits for the Cutting and
	// Swatching stages' internal queues to drain, per spec.md 4.7.
	shutdownTimeout = 30 * time.Second

	// reconcileInterval is how often the Sweeper checks for materials
	// stuck past its configured max age.
	reconcileInterval = 5 * time.Minute
)

// Closer is implemented by every repository Orchestrator may own.
type Closer interface{ Close() error }

// Orchestrator owns the Registry, Event Bus, repositories, and pipeline
// stages for one run, and coordinates their startup and shutdown.
type Orchestrator struct {
	bus       *bus.Bus
	registry  *registry.Registry
	materials material.Repository
	cuts      cut.Repository
	swatches  swatch.Repository

	discoveryStage *discovery.Stage
	cuttingStage   *cutting.Stage
	swatchingStage *swatching.Stage
	sweeper        *reconcile.Sweeper
	status         *statusapi.Server
	tracing        *telemetry.Provider

	cfg config.Snapshot

	mu      sync.Mutex
	started bool
	// scanComplete is set once every stage is subscribed and Discovery
	// has begun walking; see ready.
	scanComplete bool
	cancel       context.CancelFunc
	group        *errgroup.Group
	stopOnce     sync.Once
}

// New opens repositories according to cfg (in-memory or on-disk), then
// constructs the Event Bus, Registry, and pipeline stages over them.
// Construction order follows spec.md 9: repositories and bus first (no
// dependents outlive them), then Registry, then stages.
func New(cfg config.Snapshot) (*Orchestrator, error) {
	materials, cuts, swatches, err := openRepositories(cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open repositories: %w", err)
	}

	// Tracing stays disabled (a no-op tracer provider) by default: per
	// spec.md 6, QUILT_LOG is the only environment variable Quilt
	// consults, so there is no surface to turn an OTLP exporter on yet.
	// The Provider is still constructed and shut down so every span
	// created across the pipeline has a real, if no-op, home.
	tracing, err := telemetry.NewProvider(context.Background(), telemetry.Config{ServiceName: "quilt"})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: init telemetry: %w", err)
	}

	b := bus.New(bus.DefaultCapacity)
	reg := registry.New(materials, b)

	embedder := embedding.NewClient(
		embedding.NewHTTPService(defaultEmbeddingBaseURL, modelOrDefault(cfg.Model), defaultDimensions),
		embedding.DefaultClientOpts(),
	)

	var walker walk.Walker
	if cfg.InMemory {
		walker = walk.NewOnceWalker()
	} else {
		walker = walk.NewFSNotifyWalker()
	}

	o := &Orchestrator{
		bus:            b,
		registry:       reg,
		materials:      materials,
		cuts:           cuts,
		swatches:       swatches,
		discoveryStage: discovery.New(reg, walker),
		cuttingStage:   cutting.New(b, reg, cuts, cutter.New(), cutting.DefaultOptions()),
		swatchingStage: swatching.New(b, reg, cuts, swatches, embedder, swatching.DefaultOptions()),
		sweeper:        reconcile.New(materials, cuts, b, 0),
		tracing:        tracing,
		cfg:            cfg,
	}
	o.status = statusapi.New(cfg.MetricsAddr, o.ready)
	return o, nil
}

// ready reports whether the pipeline has started serving. Used by the
// statusapi /healthz route. Discovery's Scan only returns once its
// Walker's channels close: for the one-shot Walker that happens right
// after the initial pass, but the continuous fsnotify Walker never
// closes them until shutdown, so readiness cannot wait on Scan's
// return in general — it instead reflects that every stage is
// subscribed and Discovery has begun walking.
func (o *Orchestrator) ready() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.scanComplete {
		return fmt.Errorf("orchestrator: initial scan not yet complete")
	}
	return nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return defaultEmbeddingModel
	}
	return model
}

func openRepositories(cfg config.Snapshot) (material.Repository, cut.Repository, swatch.Repository, error) {
	if cfg.InMemory {
		swatches, err := swatch.NewMemoryRepository()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open in-memory swatch repository: %w", err)
		}
		return material.NewMemoryRepository(), cut.NewMemoryRepository(), swatches, nil
	}

	db, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := sqlite.Migrate(db); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return material.NewSQLiteRepository(db), cut.NewSQLiteRepository(db), swatch.NewSQLiteRepository(db), nil
}

// Run starts Discovery, Cutting, and Swatching, in that dependency
// order: Cutting and Swatching subscribe to the bus before Discovery
// begins walking, so no MaterialDiscovered event can be missed. Run
// blocks until ctx is canceled, then performs an orderly Shutdown and
// returns its result.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already started")
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, runCtx := errgroup.WithContext(runCtx)
	o.group = g
	o.mu.Unlock()

	logger := log.WithComponent("orchestrator")

	statusErrCh := make(chan error, 1)
	o.status.Start(statusErrCh)

	g.Go(func() error { return o.cuttingStage.Run(runCtx) })
	g.Go(func() error { return o.swatchingStage.Run(runCtx) })

	// Discovery's Scan runs for the lifetime of the pipeline when the
	// configured Walker watches continuously, so it joins the group
	// rather than blocking Run itself.
	g.Go(func() error {
		results := o.discoveryStage.Scan(runCtx, discovery.Options{
			Roots:         o.cfg.Dirs,
			Excludes:      o.cfg.Excludes,
			IncludeHidden: o.cfg.IncludeHidden,
		})
		logger.Info().
			Int("registered", results.Registered).
			Int("failed", results.Failed).
			Msg("discovery scan finished")
		return nil
	})

	g.Go(func() error { return o.runSweeper(runCtx) })

	o.mu.Lock()
	o.scanComplete = true
	o.mu.Unlock()

	select {
	case <-ctx.Done():
	case err := <-statusErrCh:
		logger.Warn().Err(err).Msg("status surface failed")
	}
	return o.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown stops Discovery from registering further materials, waits up
// to shutdownTimeout for Cutting and Swatching's internal queues to
// drain, publishes a terminal Shutdown event, then closes the bus and
// every repository. It is safe to call more than once.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var shutdownErr error
	o.stopOnce.Do(func() {
		logger := log.WithComponent("orchestrator")

		o.mu.Lock()
		cancel, g := o.cancel, o.group
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		drainCtx, drainCancel := context.WithTimeout(ctx, shutdownTimeout)
		defer drainCancel()

		done := make(chan error, 1)
		go func() {
			if g != nil {
				done <- g.Wait()
				return
			}
			done <- nil
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Warn().Err(err).Msg("stage group exited with error during shutdown")
			}
		case <-drainCtx.Done():
			logger.Warn().Msg("shutdown timed out waiting for stages to drain")
		}

		if err := o.status.Shutdown(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to shut down status surface")
		}
		if err := o.tracing.Shutdown(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to shut down tracing provider")
		}

		if err := o.bus.Publish(bus.Shutdown{}); err != nil {
			logger.Warn().Err(err).Msg("failed to publish terminal Shutdown event")
		}
		if err := o.bus.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close event bus")
		}

		shutdownErr = o.closeRepositories()
	})
	return shutdownErr
}

// runSweeper runs the Reconciliation Sweeper on reconcileInterval until
// ctx is canceled, catching materials a lost or missed event left
// stuck in Discovered or Cut.
func (o *Orchestrator) runSweeper(ctx context.Context) error {
	logger := log.WithComponent("orchestrator")
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			results := o.sweeper.Sweep(ctx)
			if results.Rediscovered > 0 || results.Recut > 0 || results.Failed > 0 {
				logger.Info().
					Int("rediscovered", results.Rediscovered).
					Int("recut", results.Recut).
					Int("failed", results.Failed).
					Msg("reconciliation sweep complete")
			}
		}
	}
}

func (o *Orchestrator) closeRepositories() error {
	var firstErr error
	for _, c := range []Closer{o.materials, o.cuts, o.swatches} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
