// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package discovery implements the Discovery stage: walking configured
// root directories through a walk.Walker and registering each candidate
// file with the Material Registry.
package discovery

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/material"
	"github.com/quiltmemory/quilt/internal/metrics"
	"github.com/quiltmemory/quilt/internal/telemetry"
	"github.com/quiltmemory/quilt/internal/walk"
)

var tracer = telemetry.Tracer("quilt/discovery")

// Options configures one Discovery scan.
type Options struct {
	Roots         []string
	Excludes      []string
	IncludeHidden bool
}

// ScanResults aggregates the outcome of one scan: per-path failures
// never abort the scan (spec.md 4.3).
type ScanResults struct {
	Registered int
	Failed     int
	Errors     []error
}

// Registrar is the subset of the Material Registry Discovery depends on.
type Registrar interface {
	Register(ctx context.Context, path string, fileType material.FileType) (*material.Material, error)
}

// Stage is the Discovery stage.
type Stage struct {
	registry Registrar
	walker   walk.Walker
}

// New constructs a Discovery stage over the given Registry and Walker.
func New(registry Registrar, walker walk.Walker) *Stage {
	return &Stage{registry: registry, walker: walker}
}

// Scan walks opts.Roots with the stage's Walker and registers every
// non-excluded, non-hidden (unless IncludeHidden) file encountered. It
// returns when the Walker closes both of its channels: after one pass
// for OnceWalker, on ctx cancellation for FSNotifyWalker.
func (s *Stage) Scan(ctx context.Context, opts Options) ScanResults {
	ctx, span := tracer.Start(ctx, "discovery.scan")
	defer span.End()

	logger := log.WithComponent("discovery")
	var results ScanResults

	paths, errs := s.walker.Walk(ctx, opts.Roots)
	for paths != nil || errs != nil {
		select {
		case p, ok := <-paths:
			if !ok {
				paths = nil
				continue
			}
			s.process(ctx, p, opts, &results, logger)
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			results.Failed++
			results.Errors = append(results.Errors, e)
			logger.Warn().Err(e).Msg("discovery walk error")
		case <-ctx.Done():
			return results
		}
	}
	return results
}

func (s *Stage) process(ctx context.Context, path string, opts Options, results *ScanResults, logger zerolog.Logger) {
	if !opts.IncludeHidden && isHidden(path) {
		return
	}
	if matchesExclude(path, opts.Excludes) {
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		results.Failed++
		results.Errors = append(results.Errors, err)
		return
	}

	fileType := material.FileTypeFromExtension(strings.ToLower(filepath.Ext(abs)))

	if _, err := s.registry.Register(ctx, abs, fileType); err != nil {
		results.Failed++
		results.Errors = append(results.Errors, err)
		metrics.StageProcessedTotal.WithLabelValues("discovery", "error").Inc()
		logger.Warn().Str(log.FieldPath, abs).Err(err).Msg("failed to register material")
		return
	}

	results.Registered++
	metrics.StageProcessedTotal.WithLabelValues("discovery", "ok").Inc()
}

// isHidden reports whether any path component starts with a dot.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func matchesExclude(path string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		if strings.HasPrefix(path, ex) {
			return true
		}
	}
	return false
}
