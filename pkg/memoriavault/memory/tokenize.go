package memory

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a normalized term and its byte span in the source text.
type Token struct {
	Term string
	Span Span
}

// Tokenize lower-cases s and splits it on every rune that is not a letter,
// combining mark or number. Marks keep vowel signs and viramas attached to
// their consonants in Indic scripts. There is no stemming and no stop-word
// removal.
func Tokenize(s string) []Token {
	var tokens []Token
	start := -1
	for i, r := range s {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, Token{Term: strings.ToLower(s[start:i]), Span: Span{Start: start, End: i}})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Term: strings.ToLower(s[start:]), Span: Span{Start: start, End: len(s)}})
	}
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.In(r, unicode.L, unicode.M, unicode.N)
}

// Terms returns the distinct terms of s in order of first appearance.
func Terms(s string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range Tokenize(s) {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

// QueryTerm is one normalized search term. A Prefix term matches every
// indexed term that starts with Text.
type QueryTerm struct {
	Text   string
	Prefix bool
}

// Matches reports whether the indexed term satisfies q.
func (q QueryTerm) Matches(term string) bool {
	if q.Prefix {
		return strings.HasPrefix(term, q.Text)
	}
	return term == q.Text
}

// postingsOf groups the token spans of text by term.
func postingsOf(text string) map[string][]Span {
	if text == "" {
		return nil
	}
	out := make(map[string][]Span)
	for _, tok := range Tokenize(text) {
		out[tok.Term] = append(out[tok.Term], tok.Span)
	}
	return out
}

// validUTF8Term guards the index against terms that would not round-trip
// through storage.
func validUTF8Term(term string) bool {
	return term != "" && utf8.ValidString(term)
}
