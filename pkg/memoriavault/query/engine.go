// Package query answers free-text searches over committed memories.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/metrics"
)

// Config controls result size and snippet rendering.
type Config struct {
	MaxResults      int    `yaml:"max_results"`
	SnippetTokens   int    `yaml:"snippet_tokens"`
	SnippetMaxRunes int    `yaml:"snippet_max_runes"`
	HighlightOpen   string `yaml:"highlight_open"`
	HighlightClose  string `yaml:"highlight_close"`
	RecordCacheSize int    `yaml:"record_cache_size"`
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	return Config{
		MaxResults:      20,
		SnippetTokens:   32,
		SnippetMaxRunes: 240,
		HighlightOpen:   "<mark>",
		HighlightClose:  "</mark>",
		RecordCacheSize: 1024,
	}
}

// Result is one ranked search hit.
type Result struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Snippet   string          `json:"snippet"`
	Date      string          `json:"date,omitempty"`
	Sentiment *float64        `json:"sentiment,omitempty"`
	MediaType media.MediaType `json:"media_type"`
	MediaPath string          `json:"media_path"`
}

// Engine runs searches against a record store. Records are immutable once
// committed, so hydrated records are cached by ID.
type Engine struct {
	store   memory.Store
	cache   *lru.Cache[int64, *memory.Record]
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates a query engine over store. m may be nil.
func NewEngine(store memory.Store, cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Engine, error) {
	defaults := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaults.MaxResults
	}
	if cfg.SnippetTokens <= 0 {
		cfg.SnippetTokens = defaults.SnippetTokens
	}
	if cfg.SnippetMaxRunes <= 0 {
		cfg.SnippetMaxRunes = defaults.SnippetMaxRunes
	}
	if cfg.HighlightOpen == "" && cfg.HighlightClose == "" {
		cfg.HighlightOpen = defaults.HighlightOpen
		cfg.HighlightClose = defaults.HighlightClose
	}
	if cfg.RecordCacheSize <= 0 {
		cfg.RecordCacheSize = defaults.RecordCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[int64, *memory.Record](cfg.RecordCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create record cache: %w", err)
	}

	return &Engine{
		store:   store,
		cache:   cache,
		config:  cfg,
		metrics: m,
		logger:  logger.With("component", "query"),
	}, nil
}

// Search returns the records matching q in ranked order. A blank query, or
// one without any searchable term, yields no results and no error.
func (e *Engine) Search(ctx context.Context, q string) (results []Result, err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		e.metrics.ObserveSearch(outcome, time.Since(start))
	}()

	terms, err := Parse(q)
	if errors.Is(err, ErrEmptyQuery) {
		outcome = "empty"
		return []Result{}, nil
	}
	if err != nil {
		return nil, err
	}

	hits, err := e.store.Query(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	type candidate struct {
		rec     *memory.Record
		inTitle bool
	}
	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		rec, err := e.record(ctx, hit.ID)
		if errors.Is(err, memory.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate memory %d: %w", hit.ID, err)
		}
		candidates = append(candidates, candidate{rec: rec, inTitle: hit.InField(memory.FieldTitle)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.inTitle != b.inTitle {
			return a.inTitle
		}
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			return a.rec.CreatedAt.After(b.rec.CreatedAt)
		}
		return a.rec.ID > b.rec.ID
	})
	if len(candidates) > e.config.MaxResults {
		candidates = candidates[:e.config.MaxResults]
	}

	results = make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, e.toResult(c.rec, terms))
	}

	e.logger.Debug("search completed", "query", q, "terms", len(terms), "hits", len(hits), "results", len(results))
	return results, nil
}

// Get returns the record with the given ID.
func (e *Engine) Get(ctx context.Context, id int64) (*memory.Record, error) {
	rec, err := e.record(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (e *Engine) record(ctx context.Context, id int64) (*memory.Record, error) {
	if rec, ok := e.cache.Get(id); ok {
		return rec, nil
	}
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	e.cache.Add(id, rec)
	return rec, nil
}

func (e *Engine) toResult(rec *memory.Record, terms []memory.QueryTerm) Result {
	source := rec.Text
	if source == "" {
		source = rec.Title
	}

	r := Result{
		ID:        rec.ID,
		Title:     rec.Title,
		Snippet:   snippet(source, terms, e.config.SnippetTokens, e.config.SnippetMaxRunes, e.config.HighlightOpen, e.config.HighlightClose),
		Date:      rec.CapturedDate,
		MediaType: rec.MediaType,
		MediaPath: rec.MediaPath,
	}
	if rec.Sentiment != nil {
		s := *rec.Sentiment
		r.Sentiment = &s
	}
	return r
}
