package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// MemStore is an in-process Store. A commit writes the record's postings
// first and publishes the record last; queries only return published
// records, so a commit in flight is never visible and a published record is
// always searchable.
type MemStore struct {
	index  *Index
	nextID atomic.Int64
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records map[int64]*Record
	byMedia map[string]int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(logger *slog.Logger) *MemStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemStore{
		index:   NewIndex(0),
		logger:  logger.With("component", "memory-store", "backend", "memory"),
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[int64]*Record),
		byMedia: make(map[string]int64),
	}
}

// Commit implements Store.
func (s *MemStore) Commit(ctx context.Context, rec *Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit cancelled: %w", err)
	}

	committed := rec.Clone()
	committed.ID = s.nextID.Add(1)
	committed.CreatedAt = s.now()
	committed.UpdatedAt = committed.CreatedAt

	s.index.Add(committed.ID, committed.Document())

	if err := ctx.Err(); err != nil {
		s.index.Remove(committed.ID)
		return fmt.Errorf("commit cancelled: %w", err)
	}

	s.mu.Lock()
	s.records[committed.ID] = committed
	s.byMedia[committed.MediaPath] = committed.ID
	s.mu.Unlock()

	rec.ID = committed.ID
	rec.CreatedAt = committed.CreatedAt
	rec.UpdatedAt = committed.UpdatedAt

	s.logger.Debug("memory committed", "id", committed.ID, "media_type", committed.MediaType)
	return nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	limit, offset = normalizePage(limit, offset)

	s.mu.RLock()
	all := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return newerFirst(all[i], all[j]) })

	if offset >= len(all) {
		return []*Record{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]*Record, len(all))
	for i, rec := range all {
		out[i] = rec.Clone()
	}
	return out, nil
}

// Query implements Store.
func (s *MemStore) Query(ctx context.Context, terms []QueryTerm) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := s.index.Query(terms)

	s.mu.RLock()
	defer s.mu.RUnlock()
	visible := hits[:0]
	for _, h := range hits {
		if _, ok := s.records[h.ID]; ok {
			visible = append(visible, h)
		}
	}
	return visible, nil
}

// Remove implements Store.
func (s *MemStore) Remove(ctx context.Context, id int64) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if ok {
		delete(s.records, id)
		delete(s.byMedia, rec.MediaPath)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.index.Remove(id)
	return nil
}

// MediaReferenced implements Store.
func (s *MemStore) MediaReferenced(ctx context.Context, mediaPath string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byMedia[mediaPath]
	return ok, nil
}

// Stats implements Store.
func (s *MemStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByMediaType: map[media.MediaType]int{}}
	var sum float64
	var scored int
	for _, rec := range s.records {
		stats.Total++
		stats.ByMediaType[rec.MediaType]++
		if rec.Sentiment != nil {
			sum += *rec.Sentiment
			scored++
		}
	}
	if scored > 0 {
		avg := roundTo(sum/float64(scored), 2)
		stats.AverageSentiment = &avg
	}
	return stats, nil
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }

// newerFirst orders records by creation time, then ID, both descending.
func newerFirst(a, b *Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
