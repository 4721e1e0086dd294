// Package enrich derives a memory's capture date and location, preferring
// file metadata and falling back to the caller's date hint.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/extract"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// DateLayout is the canonical capture-date format.
const DateLayout = "2006-01-02"

// acceptedLayouts are the date forms accepted from metadata and hints.
var acceptedLayouts = []string{
	DateLayout,
	"2006:01:02",
	"2006:01:02 15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
}

// Fields is the enrichment outcome. Empty values are absent.
type Fields struct {
	CapturedDate string
	Location     string
}

// Enricher combines a MetadataExtractor with the date-hint fallback.
type Enricher struct {
	extractor extract.MetadataExtractor
}

// New creates an Enricher. A nil extractor means metadata is never
// available and only the hint is used.
func New(extractor extract.MetadataExtractor) *Enricher {
	return &Enricher{extractor: extractor}
}

// Enrich returns the capture date (metadata, else hint, else absent) and the
// location (metadata, else absent). A metadata failure is returned alongside
// fields that already carry the fallback, so callers can log it and move on.
func (e *Enricher) Enrich(ctx context.Context, data []byte, mediaType media.MediaType, dateHint string) (Fields, error) {
	var (
		md     extract.Metadata
		mdErr  error
		fields Fields
	)
	if e.extractor != nil {
		md, mdErr = e.extractor.ExtractMetadata(ctx, data, mediaType)
		if mdErr != nil {
			md = extract.Metadata{}
		}
	}

	if date, err := NormalizeDate(md.Date); err == nil && date != "" {
		fields.CapturedDate = date
	} else if date, err := NormalizeDate(dateHint); err == nil {
		fields.CapturedDate = date
	}
	fields.Location = strings.TrimSpace(md.Location)

	if mdErr != nil {
		return fields, fmt.Errorf("metadata: %w", mdErr)
	}
	return fields, nil
}

// NormalizeDate parses s in any accepted layout and returns it as
// YYYY-MM-DD. An empty input returns "" and no error.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}
