// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cutter implements Quilt's Cutter strategy: splitting a
// material's text into an ordered sequence of token-bounded fragments,
// preferring a format-specific splitter and falling back to a generic
// splitter that descends paragraphs -> sentences -> words -> grapheme
// clusters -> characters.
package cutter

import (
	"strings"

	"github.com/quiltmemory/quilt/internal/material"
)

// Fragment is one candidate cut: a content slice plus its token count and
// byte offsets into the source text.
type Fragment struct {
	Content    string
	TokenCount int
	ByteStart  int
	ByteEnd    int
}

// Options bounds a cutter run. Defaults follow spec.md 4.4.1: target 150 /
// 300 / 800 map to MinTokens / TargetTokens / MaxTokens.
type Options struct {
	MinTokens     int
	TargetTokens  int
	MaxTokens     int
	OverlapTokens int // overlap window at word granularity, default 0; no splitter reads it, so fragments never overlap
}

// DefaultOptions returns spec.md's default token bounds.
func DefaultOptions() Options {
	return Options{MinTokens: 150, TargetTokens: 300, MaxTokens: 800, OverlapTokens: 0}
}

// Cutter splits text into an ordered sequence of fragments.
type Cutter interface {
	Cut(text string, fileType material.FileType, opts Options) ([]Fragment, error)
}

// Strategy is Quilt's progressive-fallback Cutter: a format-specific
// splitter first, the generic splitter on any error or for non-Markdown
// input.
type Strategy struct{}

// New constructs the default Cutter strategy.
func New() *Strategy { return &Strategy{} }

func (s *Strategy) Cut(text string, fileType material.FileType, opts Options) ([]Fragment, error) {
	if text == "" {
		return nil, nil
	}
	if opts.MaxTokens <= 0 {
		opts = DefaultOptions()
	}

	if fileType == material.FileTypeMarkdown {
		if frags, err := splitMarkdown(text, opts); err == nil {
			return frags, nil
		}
	}
	return splitGeneric(text, opts)
}

// tokenCount approximates a token count by counting whitespace-delimited
// fields. Quilt has no bundled model tokenizer (the embedding model
// binding is an external collaborator per spec.md 6), so this proxy is
// used purely to size cuts; it always returns >= 1 for any non-empty,
// non-whitespace-only string.
func tokenCount(s string) int {
	return len(strings.Fields(s))
}

var _ Cutter = (*Strategy)(nil)
