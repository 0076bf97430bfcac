// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package statusapi serves Quilt's ambient observability surface: a
// loopback-only /metrics and /healthz pair, bound to --metrics-addr. It
// is operational visibility, not a search UI, and carries no auth or
// routing beyond those two routes.
package statusapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quiltmemory/quilt/internal/log"
)

// Checker reports whether the process is ready to serve, e.g. whether the
// Orchestrator has finished its initial scan and the bus is still open.
type Checker func() error

// Server is the /metrics + /healthz HTTP surface.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr. A blank addr disables the
// surface entirely; Start becomes a no-op.
func New(addr string, ready Checker) *Server {
	if addr == "" {
		return &Server{}
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil {
			if err := ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the HTTP listener in the background. errCh receives a
// non-nil error if the listener fails for any reason other than a clean
// Shutdown.
func (s *Server) Start(errCh chan<- error) {
	if s.httpServer == nil {
		return
	}
	logger := log.WithComponent("statusapi")
	go func() {
		logger.Info().Str("addr", s.httpServer.Addr).Msg("status surface listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("statusapi: listen: %w", err)
		}
	}()
}

// Shutdown gracefully stops the listener, if one was started.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
