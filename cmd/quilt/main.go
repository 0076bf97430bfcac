// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quiltmemory/quilt/internal/config"
	"github.com/quiltmemory/quilt/internal/log"
	"github.com/quiltmemory/quilt/internal/orchestrator"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	log.Configure(log.Config{
		Level:   os.Getenv("QUILT_LOG"),
		Service: "quilt",
		Version: version,
	})
	logger := log.WithComponent("main")

	o, err := orchestrator.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct orchestrator")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := o.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("orchestrator exited with error")
		return 1
	}
	return 0
}
