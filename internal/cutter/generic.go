// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cutter

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type level int

const (
	levelParagraph level = iota
	levelSentence
	levelWord
	levelGrapheme
	levelChar
)

// span is a byte range into the original source text.
type span struct{ start, end int }

var (
	paragraphSep = regexp.MustCompile(`\n[ \t]*\n+`)
	sentenceSep  = regexp.MustCompile(`[.!?]+[\s]+`)
)

// splitGeneric implements the generic fallback splitter: it always
// succeeds on valid UTF-8 input, descending paragraphs -> sentences ->
// words -> grapheme clusters -> characters only as far as each unit
// requires to fit within MaxTokens.
func splitGeneric(text string, opts Options) ([]Fragment, error) {
	leaves := descend(text, span{0, len(text)}, levelParagraph, opts)
	return merge(text, leaves, opts), nil
}

func descend(text string, s span, lvl level, opts Options) []span {
	content := text[s.start:s.end]
	if tokenCount(content) <= opts.MaxTokens || lvl > levelChar {
		return []span{s}
	}

	subs := splitAtLevel(text, s, lvl)
	if len(subs) <= 1 {
		// This level couldn't subdivide the unit further; try the next one.
		return descend(text, s, lvl+1, opts)
	}

	var out []span
	for _, sub := range subs {
		out = append(out, descend(text, sub, lvl+1, opts)...)
	}
	return out
}

func splitAtLevel(text string, s span, lvl level) []span {
	switch lvl {
	case levelParagraph:
		return splitByRegexp(text, s, paragraphSep)
	case levelSentence:
		return splitByRegexp(text, s, sentenceSep)
	case levelWord:
		return splitByWhitespace(text, s)
	case levelGrapheme:
		return splitByGrapheme(text, s)
	default:
		return splitByRune(text, s)
	}
}

func splitByRegexp(text string, s span, re *regexp.Regexp) []span {
	content := text[s.start:s.end]
	matches := re.FindAllStringIndex(content, -1)
	if matches == nil {
		return []span{s}
	}
	var out []span
	cursor := 0
	for _, m := range matches {
		out = append(out, span{s.start + cursor, s.start + m[1]})
		cursor = m[1]
	}
	if cursor < len(content) {
		out = append(out, span{s.start + cursor, s.end})
	}
	return nonEmptySpans(out)
}

func splitByWhitespace(text string, s span) []span {
	content := text[s.start:s.end]
	var out []span
	start := -1
	for i, r := range content {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{s.start + start, s.start + i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{s.start + start, s.end})
	}
	return out
}

// splitByGrapheme uses the NFC normalisation iterator to walk the text in
// segments that never split a base rune from its trailing combining
// marks, satisfying spec.md's "cuts never split a grapheme cluster"
// boundary case.
func splitByGrapheme(text string, s span) []span {
	content := text[s.start:s.end]
	var it norm.Iter
	it.InitString(norm.NFC, content)

	var out []span
	for !it.Done() {
		start := it.Pos()
		it.Next()
		out = append(out, span{s.start + start, s.start + it.Pos()})
	}
	return out
}

func splitByRune(text string, s span) []span {
	content := text[s.start:s.end]
	var out []span
	pos := 0
	for pos < len(content) {
		_, size := utf8.DecodeRuneInString(content[pos:])
		out = append(out, span{s.start + pos, s.start + pos + size})
		pos += size
	}
	return out
}

func nonEmptySpans(spans []span) []span {
	out := spans[:0]
	for _, s := range spans {
		if s.end > s.start {
			out = append(out, s)
		}
	}
	return out
}

// merge greedily packs adjacent leaf spans into fragments that fit
// MaxTokens, trying to reach TargetTokens before flushing, then folds a
// too-small trailing fragment into its predecessor when that stays within
// MaxTokens.
func merge(text string, leaves []span, opts Options) []Fragment {
	if len(leaves) == 0 {
		return nil
	}

	var frags []Fragment
	cur := leaves[0]
	curTokens := tokenCount(text[cur.start:cur.end])

	flush := func() {
		frags = append(frags, Fragment{
			Content:    text[cur.start:cur.end],
			TokenCount: curTokens,
			ByteStart:  cur.start,
			ByteEnd:    cur.end,
		})
	}

	for _, next := range leaves[1:] {
		nextTokens := tokenCount(text[next.start:next.end])
		combined := curTokens + nextTokens
		if combined <= opts.MaxTokens && (curTokens < opts.TargetTokens || curTokens < opts.MinTokens) {
			cur = span{cur.start, next.end}
			curTokens = combined
			continue
		}
		flush()
		cur = next
		curTokens = nextTokens
	}
	flush()

	return foldSmallTrailing(text, frags, opts)
}

func foldSmallTrailing(text string, frags []Fragment, opts Options) []Fragment {
	for len(frags) > 1 {
		last := frags[len(frags)-1]
		prev := frags[len(frags)-2]
		if last.TokenCount >= opts.MinTokens || prev.TokenCount+last.TokenCount > opts.MaxTokens {
			break
		}
		merged := Fragment{
			Content:    text[prev.ByteStart:last.ByteEnd],
			ByteStart:  prev.ByteStart,
			ByteEnd:    last.ByteEnd,
			TokenCount: prev.TokenCount + last.TokenCount,
		}
		frags = frags[:len(frags)-2]
		frags = append(frags, merged)
	}
	return frags
}
