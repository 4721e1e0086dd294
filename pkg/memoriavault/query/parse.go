package query

import (
	"errors"
	"strings"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

// ErrEmptyQuery is returned by Parse when the query has no searchable term.
var ErrEmptyQuery = errors.New("empty query")

// Parse splits q into normalized query terms using the index tokenizer.
// A word ending in '*' makes its last term a prefix term ("gran*" matches
// "grandma" and "grandpa"). Duplicate terms are dropped.
func Parse(q string) ([]memory.QueryTerm, error) {
	var terms []memory.QueryTerm
	seen := make(map[memory.QueryTerm]struct{})
	add := func(t memory.QueryTerm) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}

	for _, word := range strings.Fields(q) {
		prefix := strings.HasSuffix(word, "*")
		tokens := memory.Tokenize(strings.TrimRight(word, "*"))
		for i, tok := range tokens {
			add(memory.QueryTerm{Text: tok.Term, Prefix: prefix && i == len(tokens)-1})
		}
	}

	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}
	return terms, nil
}
