package memory

import (
	"hash/fnv"
	"slices"
	"sort"
	"strings"
	"sync"
)

const defaultIndexShards = 32

// Index is an in-memory inverted index from term to (record, field, spans).
// Terms are spread over shards by hash, each with its own lock, so writers
// indexing different records only contend on the terms they share.
type Index struct {
	shards []*indexShard
	docs   sync.Map // int64 -> []string, the terms indexed for a record
}

type indexShard struct {
	mu    sync.RWMutex
	terms map[string]map[int64]map[Field][]Span
}

// NewIndex creates an empty index with n shards (a default is used when
// n <= 0).
func NewIndex(n int) *Index {
	if n <= 0 {
		n = defaultIndexShards
	}
	idx := &Index{shards: make([]*indexShard, n)}
	for i := range idx.shards {
		idx.shards[i] = &indexShard{terms: make(map[string]map[int64]map[Field][]Span)}
	}
	return idx
}

func (idx *Index) shardFor(term string) *indexShard {
	h := fnv.New32a()
	h.Write([]byte(term))
	return idx.shards[h.Sum32()%uint32(len(idx.shards))]
}

// Add indexes every term of doc for id. Re-adding an id replaces its
// previous postings.
func (idx *Index) Add(id int64, doc Document) {
	idx.Remove(id)

	postings := make(map[string]map[Field][]Span)
	for _, field := range Fields {
		for term, spans := range postingsOf(doc[field]) {
			if !validUTF8Term(term) {
				continue
			}
			if postings[term] == nil {
				postings[term] = make(map[Field][]Span)
			}
			postings[term][field] = spans
		}
	}

	terms := make([]string, 0, len(postings))
	for term, fields := range postings {
		terms = append(terms, term)
		sh := idx.shardFor(term)
		sh.mu.Lock()
		byID := sh.terms[term]
		if byID == nil {
			byID = make(map[int64]map[Field][]Span)
			sh.terms[term] = byID
		}
		byID[id] = fields
		sh.mu.Unlock()
	}
	idx.docs.Store(id, terms)
}

// Remove drops every posting of id. Removing an unknown id is a no-op.
func (idx *Index) Remove(id int64) {
	v, ok := idx.docs.LoadAndDelete(id)
	if !ok {
		return
	}
	for _, term := range v.([]string) {
		sh := idx.shardFor(term)
		sh.mu.Lock()
		if byID := sh.terms[term]; byID != nil {
			delete(byID, id)
			if len(byID) == 0 {
				delete(sh.terms, term)
			}
		}
		sh.mu.Unlock()
	}
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	n := 0
	idx.docs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Query returns every record containing at least one of terms, ordered by
// descending id. Matches inside a hit are ordered by field, then term.
func (idx *Index) Query(terms []QueryTerm) []Hit {
	hits := make(map[int64]*Hit)
	collect := func(term string, byID map[int64]map[Field][]Span) {
		for id, fields := range byID {
			h := hits[id]
			if h == nil {
				h = &Hit{ID: id}
				hits[id] = h
			}
			for field, spans := range fields {
				h.Matches = append(h.Matches, Match{Term: term, Field: field, Spans: slices.Clone(spans)})
			}
		}
	}

	seen := make(map[string]struct{})
	for _, qt := range dedupeTerms(terms) {
		if qt.Prefix {
			for _, sh := range idx.shards {
				sh.mu.RLock()
				for term, byID := range sh.terms {
					if _, dup := seen[term]; dup || !strings.HasPrefix(term, qt.Text) {
						continue
					}
					seen[term] = struct{}{}
					collect(term, byID)
				}
				sh.mu.RUnlock()
			}
			continue
		}
		if _, dup := seen[qt.Text]; dup {
			continue
		}
		seen[qt.Text] = struct{}{}
		sh := idx.shardFor(qt.Text)
		sh.mu.RLock()
		collect(qt.Text, sh.terms[qt.Text])
		sh.mu.RUnlock()
	}

	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		sortMatches(h.Matches)
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// dedupeTerms drops empty and repeated query terms.
func dedupeTerms(terms []QueryTerm) []QueryTerm {
	seen := make(map[QueryTerm]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if t.Text == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func fieldRank(f Field) int {
	for i, field := range Fields {
		if field == f {
			return i
		}
	}
	return len(Fields)
}

func sortMatches(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ri, rj := fieldRank(ms[i].Field), fieldRank(ms[j].Field); ri != rj {
			return ri < rj
		}
		return ms[i].Term < ms[j].Term
	})
}
