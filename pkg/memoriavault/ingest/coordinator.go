// Package ingest turns an upload into a committed, searchable memory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/enrich"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/extract"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/metrics"
)

// Ingestion steps, as reported in degradations, logs and metrics.
const (
	StepExtract   = "extract"
	StepMetadata  = "metadata"
	StepSentiment = "sentiment"
	StepStore     = "store"
	StepCommit    = "commit"
)

// Config bounds the slow capability calls.
type Config struct {
	ExtractTimeout   time.Duration `yaml:"timeout"`
	MetadataTimeout  time.Duration `yaml:"metadata_timeout"`
	SentimentTimeout time.Duration `yaml:"sentiment_timeout"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
}

// DefaultConfig returns default timeouts and concurrency.
func DefaultConfig() Config {
	return Config{
		ExtractTimeout:   60 * time.Second,
		MetadataTimeout:  10 * time.Second,
		SentimentTimeout: 5 * time.Second,
		MaxConcurrent:    4,
	}
}

// Request is one upload.
type Request struct {
	Data      []byte
	Filename  string
	MimeType  string
	MediaType media.MediaType // derived from MimeType when empty
	Title     string
	Person    string
	DateHint  string
}

// Degradation is a non-fatal step failure that left a field absent.
type Degradation struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// Result is a committed record plus the degradations it went through.
type Result struct {
	Record   *memory.Record `json:"memory"`
	Degraded []Degradation  `json:"warnings,omitempty"`
}

// Coordinator runs the ingestion pipeline.
type Coordinator struct {
	validator *media.Validator
	blobs     media.Store
	records   memory.Store
	router    extract.Router
	enricher  *enrich.Enricher
	scorer    extract.SentimentScorer
	metrics   *metrics.Metrics
	config    Config
	slots     *semaphore.Weighted
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOCR sets the image text extractor.
func WithOCR(e extract.TextExtractor) Option {
	return func(c *Coordinator) { c.router.OCR = e }
}

// WithASR sets the audio text extractor.
func WithASR(e extract.TextExtractor) Option {
	return func(c *Coordinator) { c.router.ASR = e }
}

// WithMetadata sets the metadata extractor used by the enricher.
func WithMetadata(e extract.MetadataExtractor) Option {
	return func(c *Coordinator) { c.enricher = enrich.New(e) }
}

// WithSentiment sets the sentiment scorer.
func WithSentiment(s extract.SentimentScorer) Option {
	return func(c *Coordinator) { c.scorer = s }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Coordinator over the given blob store and record store.
func New(blobs media.Store, records memory.Store, validator *media.Validator, cfg Config, opts ...Option) *Coordinator {
	defaults := DefaultConfig()
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = defaults.ExtractTimeout
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = defaults.MetadataTimeout
	}
	if cfg.SentimentTimeout <= 0 {
		cfg.SentimentTimeout = defaults.SentimentTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if validator == nil {
		validator = media.NewValidator(media.ValidationConfig{})
	}

	c := &Coordinator{
		validator: validator,
		blobs:     blobs,
		records:   records,
		enricher:  enrich.New(nil),
		config:    cfg,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "ingest")
	return c
}

// Ingest validates the upload, persists the blob, extracts text and metadata
// in parallel, scores sentiment and commits the record. Extraction, metadata
// and scoring failures are recorded as degradations and never fail the
// request; validation, storage and commit failures do.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, traceSpanIngest)
	mediaLabel := "unknown"
	defer func() {
		markSpanResult(span, err)
		span.End()
		outcome := "ok"
		if err != nil {
			outcome = KindOf(err) + "_error"
		}
		c.metrics.ObserveIngest(mediaLabel, outcome, time.Since(start), len(req.Data))
	}()

	checked, err := c.validate(req)
	if err != nil {
		c.logger.Info("upload rejected", "filename", req.Filename, "error", err)
		return nil, err
	}
	mediaLabel = string(checked.mediaType)
	span.SetAttributes(attribute.String(traceAttrMediaType, mediaLabel))

	stepStart := time.Now()
	blob, err := c.blobs.Save(ctx, media.SaveRequest{
		Data:     req.Data,
		Filename: req.Filename,
		MimeType: checked.mimeType,
		Type:     checked.mediaType,
	})
	c.metrics.ObserveStep(StepStore, time.Since(stepStart))
	if err != nil {
		c.logger.Error("failed to persist media", "filename", req.Filename, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	result := &Result{}
	var degradedMu sync.Mutex
	degrade := func(step string, err error) {
		degradedMu.Lock()
		result.Degraded = append(result.Degraded, Degradation{Step: step, Error: err.Error()})
		degradedMu.Unlock()
		c.metrics.Degraded(step)
		c.logger.Warn("ingestion step failed, continuing without it",
			"step", step, "media_path", blob.Path, "error", err)
	}

	var (
		text      string
		sentiment *float64
		fields    enrich.Fields
		g         errgroup.Group
	)
	g.Go(func() error {
		extracted, err := bounded(ctx, c, StepExtract, c.config.ExtractTimeout, true, func(ctx context.Context) (string, error) {
			return c.router.ExtractFor(ctx, checked.mediaType, req.Data, checked.mimeType)
		})
		if err != nil {
			degrade(StepExtract, err)
			return nil
		}
		text = strings.TrimSpace(extracted)
		if text == "" || c.scorer == nil {
			return nil
		}
		score, err := bounded(ctx, c, StepSentiment, c.config.SentimentTimeout, true, func(ctx context.Context) (float64, error) {
			return c.scorer.ScoreSentiment(ctx, text)
		})
		if errors.Is(err, extract.ErrNoSignal) {
			return nil
		}
		if err != nil {
			degrade(StepSentiment, err)
			return nil
		}
		score = extract.RoundScore(score)
		sentiment = &score
		return nil
	})
	g.Go(func() error {
		out, err := bounded(ctx, c, StepMetadata, c.config.MetadataTimeout, false, func(ctx context.Context) (enrichOutcome, error) {
			f, err := c.enricher.Enrich(ctx, req.Data, checked.mediaType, checked.dateHint)
			return enrichOutcome{fields: f, err: err}, nil
		})
		switch {
		case err != nil:
			degrade(StepMetadata, err)
			fields = enrich.Fields{CapturedDate: checked.dateHint}
		case out.err != nil:
			// The hint fallback is already applied.
			degrade(StepMetadata, out.err)
			fields = out.fields
		default:
			fields = out.fields
		}
		return nil
	})
	_ = g.Wait()

	rec := &memory.Record{
		Title:        checked.title,
		Text:         text,
		CapturedDate: fields.CapturedDate,
		Location:     fields.Location,
		Sentiment:    sentiment,
		MediaPath:    blob.Path,
		MediaType:    checked.mediaType,
		Person:       checked.person,
	}

	stepStart = time.Now()
	err = c.records.Commit(ctx, rec)
	c.metrics.ObserveStep(StepCommit, time.Since(stepStart))
	if err != nil {
		c.logger.Error("failed to commit memory", "media_path", blob.Path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrCommit, err)
	}

	span.SetAttributes(attribute.Int64(traceAttrMemoryID, rec.ID))
	c.logger.Info("memory ingested",
		"id", rec.ID,
		"media_type", rec.MediaType,
		"text_chars", len(rec.Text),
		"degraded", len(result.Degraded),
	)

	result.Record = rec
	return result, nil
}

type checkedRequest struct {
	title     string
	person    string
	dateHint  string
	mimeType  string
	mediaType media.MediaType
}

func (c *Coordinator) validate(req Request) (*checkedRequest, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	vr, err := c.validator.Validate(req.Data, req.Filename, req.MimeType, req.MediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	hint, err := enrich.NormalizeDate(req.DateHint)
	if err != nil {
		return nil, fmt.Errorf("%w: date: %w", ErrValidation, err)
	}

	return &checkedRequest{
		title:     title,
		person:    strings.TrimSpace(req.Person),
		dateHint:  hint,
		mimeType:  vr.MimeType,
		mediaType: vr.Type,
	}, nil
}

type enrichOutcome struct {
	fields enrich.Fields
	err    error
}

type boundedResult[T any] struct {
	value T
	err   error
}

// bounded runs fn with a timeout. When slot is set, fn also holds one of the
// process-wide capability slots while it runs. A capability that ignores its
// context is abandoned at the deadline; its late result is discarded.
func bounded[T any](ctx context.Context, c *Coordinator, step string, timeout time.Duration, slot bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if slot {
		if err := c.slots.Acquire(ctx, 1); err != nil {
			return zero, fmt.Errorf("%s: waiting for a capability slot: %w", step, err)
		}
	}

	ctx, span := startSpan(ctx, traceSpanStep, attribute.String(traceAttrStep, step))
	start := time.Now()

	done := make(chan boundedResult[T], 1)
	go func() {
		if slot {
			defer c.slots.Release(1)
		}
		v, err := fn(ctx)
		done <- boundedResult[T]{value: v, err: err}
	}()

	var r boundedResult[T]
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = fmt.Errorf("%s timed out after %s: %w", step, timeout, ctx.Err())
	}

	c.metrics.ObserveStep(step, time.Since(start))
	markSpanResult(span, r.err)
	span.End()
	if r.err != nil {
		return zero, r.err
	}
	return r.value, nil
}
