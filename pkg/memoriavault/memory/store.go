package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultListLimit is the page size used when List is called without one.
const DefaultListLimit = 20

// ErrInvalidRecord is returned by Commit for records that can never be
// stored (no title, unknown media type, missing media path).
var ErrInvalidRecord = errors.New("invalid record")

// Store persists records together with their index entries.
type Store interface {
	// Commit assigns the record a fresh ID and its timestamps, then stores
	// and indexes it atomically: either both become visible or neither does.
	Commit(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]*Record, error)

	// Query returns the committed records containing at least one term.
	Query(ctx context.Context, terms []QueryTerm) ([]Hit, error)

	// Remove deletes a record and its index entries.
	Remove(ctx context.Context, id int64) error

	// MediaReferenced reports whether a committed record points at mediaPath.
	MediaReferenced(ctx context.Context, mediaPath string) (bool, error)

	// Stats summarizes the committed records.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

func checkRecord(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if strings.TrimSpace(rec.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRecord)
	}
	if !rec.MediaType.Valid() {
		return fmt.Errorf("%w: unsupported media type %q", ErrInvalidRecord, rec.MediaType)
	}
	if rec.MediaPath == "" {
		return fmt.Errorf("%w: media path is required", ErrInvalidRecord)
	}
	if rec.Sentiment != nil && (*rec.Sentiment < -1 || *rec.Sentiment > 1) {
		return fmt.Errorf("%w: sentiment %.2f out of range", ErrInvalidRecord, *rec.Sentiment)
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
