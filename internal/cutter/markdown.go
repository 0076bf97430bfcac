// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cutter

import (
	"errors"
	"regexp"
)

// errNoHeadings signals the Markdown splitter found nothing to split on,
// so the caller should fall back to the generic splitter.
var errNoHeadings = errors.New("cutter: no markdown headings found")

// heading matches an ATX-style heading line ("#" through "######"). Full
// CommonMark parsing is not needed: only heading boundaries matter here,
// so no Markdown-parser dependency is pulled in for this.
var heading = regexp.MustCompile(`(?m)^#{1,6}[ \t]+\S.*$`)

// splitMarkdown cuts at heading boundaries, falling back to the generic
// splitter for any section that on its own still exceeds MaxTokens.
func splitMarkdown(text string, opts Options) ([]Fragment, error) {
	starts := heading.FindAllStringIndex(text, -1)
	if len(starts) == 0 {
		return nil, errNoHeadings
	}

	var sections []span
	if starts[0][0] > 0 {
		sections = append(sections, span{0, starts[0][0]})
	}
	for i, m := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		sections = append(sections, span{m[0], end})
	}
	sections = nonEmptySpans(sections)

	// Each heading-delimited section is merged independently so that
	// adjacent headings' content is never folded into the same cut.
	var frags []Fragment
	for _, sec := range sections {
		leaves := descend(text, sec, levelParagraph, opts)
		frags = append(frags, merge(text, leaves, opts)...)
	}
	return frags, nil
}
