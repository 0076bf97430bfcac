// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config parses Quilt's command-line surface (spec.md 6) into an
// immutable Snapshot consumed by the Orchestrator.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/quiltmemory/quilt/internal/validate"
)

// Snapshot is the fully-parsed, validated configuration for one run.
type Snapshot struct {
	Dirs          []string
	Excludes      []string
	IncludeHidden bool
	InMemory      bool
	DBPath        string
	Model         string
	MetricsAddr   string
}

// repeatableFlag accumulates repeated --flag values, splitting each
// occurrence on commas so --exclude a,b and --exclude a --exclude b are
// equivalent per spec.md 6.
type repeatableFlag struct {
	values *[]string
}

func (f repeatableFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

func (f repeatableFlag) Set(raw string) error {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*f.values = append(*f.values, part)
		}
	}
	return nil
}

// Parse parses args (typically os.Args[1:]) into a Snapshot, following the
// teacher's cmd/daemon/main.go convention of a flat flag.FlagSet with no
// subcommands. It returns a non-nil error on invalid arguments or a failed
// validation, corresponding to spec.md 6's exit code 2.
func Parse(args []string) (Snapshot, error) {
	fs := flag.NewFlagSet("quilt", flag.ContinueOnError)

	var snap Snapshot
	fs.Var(repeatableFlag{&snap.Dirs}, "dir", "root directory to scan (repeatable)")
	fs.Var(repeatableFlag{&snap.Excludes}, "exclude", "path-prefix to skip during scan (repeatable, comma-separatable)")
	fs.BoolVar(&snap.IncludeHidden, "include-hidden", false, "include dotfiles/dot-directories")
	fs.BoolVar(&snap.InMemory, "in-memory", false, "use volatile repositories instead of the on-disk store")
	fs.StringVar(&snap.DBPath, "db", "quilt.db", "location of the persistent store")
	fs.StringVar(&snap.Model, "model", "", "embedding model identifier passed to the Embedding Service")
	fs.StringVar(&snap.MetricsAddr, "metrics-addr", "", "loopback address to serve /metrics and /healthz on (disabled if empty)")

	if err := fs.Parse(args); err != nil {
		return Snapshot{}, fmt.Errorf("config: parse flags: %w", err)
	}

	if err := snap.validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// validate applies spec.md 6's constraints using the teacher's accumulating
// Validator rather than failing on the first bad field.
func (s Snapshot) validate() error {
	v := validate.New()

	if len(s.Dirs) == 0 {
		// spec.md 6: --dir is required unless a persistent store has
		// already been seeded. --in-memory never has a persistent store.
		if s.InMemory {
			v.AddError("dir", "at least one --dir is required with --in-memory (nothing to seed)", s.Dirs)
		} else if _, err := os.Stat(s.DBPath); err != nil {
			v.AddError("dir", "at least one --dir is required when no persistent store exists yet at --db", s.Dirs)
		}
	}
	if !s.InMemory {
		v.NotEmpty("db", s.DBPath)
	}
	for _, d := range s.Dirs {
		v.Directory("dir", d, true)
	}
	if s.MetricsAddr != "" {
		v.NotEmpty("metrics-addr", s.MetricsAddr)
	}

	return v.Err()
}
