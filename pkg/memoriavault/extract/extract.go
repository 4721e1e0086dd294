// Package extract wraps the opaque capabilities an upload is run through:
// text extraction (OCR for images, ASR for audio), file metadata, and
// sentiment scoring.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// ErrUnavailable marks a capability that is not installed or configured.
var ErrUnavailable = errors.New("capability unavailable")

// ErrNoSignal is returned by a scorer when the text carries nothing to score.
var ErrNoSignal = errors.New("no scorable text")

// TextExtractor turns media bytes into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Metadata is what file metadata can say about a memory. Empty fields are
// absent.
type Metadata struct {
	Date     string // YYYY-MM-DD
	Location string
}

// MetadataExtractor reads capture date and location from media bytes.
type MetadataExtractor interface {
	ExtractMetadata(ctx context.Context, data []byte, mediaType media.MediaType) (Metadata, error)
}

// SentimentScorer scores text on [-1, 1].
type SentimentScorer interface {
	ScoreSentiment(ctx context.Context, text string) (float64, error)
}

// TextExtractorFunc adapts a function to TextExtractor.
type TextExtractorFunc func(ctx context.Context, data []byte, mimeType string) (string, error)

// ExtractText implements TextExtractor.
func (f TextExtractorFunc) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f(ctx, data, mimeType)
}

// MetadataExtractorFunc adapts a function to MetadataExtractor.
type MetadataExtractorFunc func(ctx context.Context, data []byte, mediaType media.MediaType) (Metadata, error)

// ExtractMetadata implements MetadataExtractor.
func (f MetadataExtractorFunc) ExtractMetadata(ctx context.Context, data []byte, mediaType media.MediaType) (Metadata, error) {
	return f(ctx, data, mediaType)
}

// SentimentScorerFunc adapts a function to SentimentScorer.
type SentimentScorerFunc func(ctx context.Context, text string) (float64, error)

// ScoreSentiment implements SentimentScorer.
func (f SentimentScorerFunc) ScoreSentiment(ctx context.Context, text string) (float64, error) {
	return f(ctx, text)
}

// Unavailable is a TextExtractor that always fails with ErrUnavailable.
type Unavailable string

// ExtractText implements TextExtractor.
func (u Unavailable) ExtractText(context.Context, []byte, string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrUnavailable, string(u))
}

// Chain tries each extractor in order and returns the first non-empty text.
// An extractor that succeeds with empty text stops the chain only when it is
// the last one.
type Chain struct {
	extractors []namedExtractor
	logger     *slog.Logger
}

type namedExtractor struct {
	name string
	TextExtractor
}

// NewChain creates an empty fallback chain.
func NewChain(logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{logger: logger.With("component", "extract-chain")}
}

// Add appends an extractor to the chain.
func (c *Chain) Add(name string, e TextExtractor) *Chain {
	if e != nil {
		c.extractors = append(c.extractors, namedExtractor{name: name, TextExtractor: e})
	}
	return c
}

// Len returns the number of extractors in the chain.
func (c *Chain) Len() int { return len(c.extractors) }

// ExtractText implements TextExtractor.
func (c *Chain) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(c.extractors) == 0 {
		return "", fmt.Errorf("%w: no extractor configured", ErrUnavailable)
	}

	var errs []error
	succeeded := false
	for _, e := range c.extractors {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		text, err := e.ExtractText(ctx, data, mimeType)
		if err != nil {
			c.logger.Debug("extractor failed, trying next", "extractor", e.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}
		succeeded = true
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	if succeeded {
		return "", nil
	}
	return "", errors.Join(errs...)
}

// Router dispatches text extraction by media type: OCR for images, ASR for
// audio.
type Router struct {
	OCR TextExtractor
	ASR TextExtractor
}

// ExtractFor runs the extractor for mediaType.
func (r Router) ExtractFor(ctx context.Context, mediaType media.MediaType, data []byte, mimeType string) (string, error) {
	var e TextExtractor
	switch mediaType {
	case media.MediaTypeImage:
		e = r.OCR
	case media.MediaTypeAudio:
		e = r.ASR
	default:
		return "", fmt.Errorf("%w: no extractor for media type %q", ErrUnavailable, mediaType)
	}
	if e == nil {
		return "", fmt.Errorf("%w: no extractor for media type %q", ErrUnavailable, mediaType)
	}
	return e.ExtractText(ctx, data, mimeType)
}
