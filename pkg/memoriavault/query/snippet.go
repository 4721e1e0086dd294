package query

import (
	"strings"
	"unicode/utf8"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

const ellipsis = "..."

// snippet returns a window of at most maxTokens tokens and maxRunes runes of
// source around the first token matching any of terms, with every matching
// token wrapped in openTag and closeTag. Cut edges are marked with "...".
// The rune budget covers source text only, not tags or ellipses.
func snippet(source string, terms []memory.QueryTerm, maxTokens, maxRunes int, openTag, closeTag string) string {
	tokens := memory.Tokenize(source)
	if len(tokens) == 0 {
		trimmed := strings.TrimSpace(source)
		if maxRunes > 0 && utf8.RuneCountInString(trimmed) > maxRunes {
			return trimmed[:advanceRunes(trimmed, 0, len(trimmed), maxRunes)] + ellipsis
		}
		return trimmed
	}

	matched := make([]bool, len(tokens))
	first := -1
	for i, tok := range tokens {
		for _, qt := range terms {
			if qt.Matches(tok.Term) {
				matched[i] = true
				break
			}
		}
		if matched[i] && first < 0 {
			first = i
		}
	}
	if first < 0 {
		first = 0
	}

	if maxTokens <= 0 || maxTokens > len(tokens) {
		maxTokens = len(tokens)
	}
	// Keep a quarter of the window before the first match for context.
	lo := max(first-maxTokens/4, 0)
	hi := lo + maxTokens
	if hi > len(tokens) {
		hi = len(tokens)
		lo = max(hi-maxTokens, 0)
	}

	start := 0
	if lo > 0 {
		start = tokens[lo].Span.Start
	}
	end := len(source)
	if hi < len(tokens) {
		end = tokens[hi-1].Span.End
	}
	cutStart, cutEnd := lo > 0, hi < len(tokens)

	// Long separator runs can make a small token window arbitrarily long.
	if maxRunes > 0 && utf8.RuneCountInString(source[start:end]) > maxRunes {
		anchor := tokens[first].Span
		newStart := retreatRunes(source, anchor.Start, start, maxRunes/4)
		newStart = snapStart(tokens, newStart)
		newEnd := advanceRunes(source, newStart, end, maxRunes)
		if snapped := snapEnd(tokens, newEnd); snapped > anchor.Start {
			newEnd = snapped
		}
		cutStart = cutStart || newStart > start
		cutEnd = cutEnd || newEnd < end
		start, end = newStart, newEnd
	}

	var b strings.Builder
	if cutStart {
		b.WriteString(ellipsis)
	}
	pos := start
	for i := lo; i < hi; i++ {
		sp := tokens[i].Span
		if !matched[i] || sp.Start < start || sp.End > end {
			continue
		}
		b.WriteString(source[pos:sp.Start])
		b.WriteString(openTag)
		b.WriteString(source[sp.Start:sp.End])
		b.WriteString(closeTag)
		pos = sp.End
	}
	b.WriteString(source[pos:end])
	if cutEnd {
		b.WriteString(ellipsis)
	}
	return strings.TrimSpace(b.String())
}

// advanceRunes moves forward n runes from pos, stopping at limit.
func advanceRunes(s string, pos, limit, n int) int {
	for ; n > 0 && pos < limit; n-- {
		_, size := utf8.DecodeRuneInString(s[pos:limit])
		pos += size
	}
	return pos
}

// retreatRunes moves back n runes from pos, stopping at floor.
func retreatRunes(s string, pos, floor, n int) int {
	for ; n > 0 && pos > floor; n-- {
		_, size := utf8.DecodeLastRuneInString(s[floor:pos])
		pos -= size
	}
	return pos
}

// snapStart moves pos forward to the start of the next token.
func snapStart(tokens []memory.Token, pos int) int {
	for _, tok := range tokens {
		if tok.Span.Start >= pos {
			return tok.Span.Start
		}
	}
	return pos
}

// snapEnd moves pos back to the end of the last token before it.
func snapEnd(tokens []memory.Token, pos int) int {
	end := pos
	for _, tok := range tokens {
		if tok.Span.End > pos {
			break
		}
		end = tok.Span.End
	}
	return end
}
