package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/config"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/extract"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/ingest"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/metrics"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/query"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	registry *promclient.Registry
	metrics  *metrics.Metrics

	blobs       *media.FileSystemStore
	records     memory.Store
	validator   *media.Validator
	coordinator *ingest.Coordinator
	engine      *query.Engine
}

// openApp loads the config and wires stores, capabilities, coordinator and
// query engine. logOut receives the process log.
func openApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, foundPath, err := config.Load(configPath, bootLogger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := config.NewLogger(cfg.Logging, logOut, verbose)
	if foundPath != "" {
		logger.Debug("config loaded", "path", foundPath)
	}

	cfg.Sweeper.MinGracePeriod = cfg.SweepGraceFloor()

	a := &app{
		cfg:        cfg,
		configPath: foundPath,
		logger:     logger,
		registry:   promclient.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.metrics, err = metrics.New("memoriavault", a.registry); err != nil {
		return nil, err
	}

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	a.blobs = media.NewFileSystemStore(cfg.Media, logger)
	if err := a.blobs.EnsureDir(); err != nil {
		return nil, fmt.Errorf("preparing media store: %w", err)
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using the in-memory record store; memories are lost on exit")
		a.records = memory.NewMemStore(logger)
	default:
		store, err := memory.OpenSQLite(cfg.Database.SQLite(), logger)
		if err != nil {
			return nil, fmt.Errorf("opening record store: %w", err)
		}
		a.records = store
	}

	a.validator = media.NewValidator(media.ValidationConfig{MaxUploadSize: cfg.Media.MaxUploadSize})
	a.coordinator = ingest.New(a.blobs, a.records, a.validator, cfg.Extraction.Ingest(),
		append(capabilities(cfg.Extraction, logger),
			ingest.WithMetrics(a.metrics),
			ingest.WithLogger(logger),
		)...,
	)

	if a.engine, err = query.NewEngine(a.records, cfg.Search, a.metrics, logger); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// capabilities builds the OCR, ASR, metadata and sentiment options from the
// extraction config. Engines that are not installed or have no key are
// skipped with a warning.
func capabilities(cfg config.ExtractionConfig, logger *slog.Logger) []ingest.Option {
	oa := extract.NewOpenAI(cfg.OpenAI, logger)

	ocr := extract.NewChain(logger)
	for _, engine := range cfg.OCR.Engines {
		switch engine {
		case config.EngineTesseract:
			t := extract.NewTesseract(cfg.OCR.TesseractConfig, logger)
			if !t.Available() {
				logger.Warn("tesseract not found, skipping OCR engine", "path", cfg.OCR.Path)
				continue
			}
			ocr.Add(engine, t)
		case config.EngineOpenAI:
			if oa == nil {
				logger.Warn("no OpenAI API key, skipping OCR engine", "engine", engine)
				continue
			}
			ocr.Add(engine, oa.Vision())
		}
	}

	opts := []ingest.Option{ingest.WithMetadata(extract.NewFileMetadata())}
	if ocr.Len() > 0 {
		opts = append(opts, ingest.WithOCR(ocr))
	} else {
		opts = append(opts, ingest.WithOCR(extract.Unavailable("no OCR engine available")))
	}

	switch {
	case cfg.ASR.Engine == config.EngineOpenAI && oa != nil:
		opts = append(opts, ingest.WithASR(oa.Whisper(cfg.ASR.WhisperConfig)))
	case cfg.ASR.Engine == config.EngineOpenAI:
		logger.Warn("no OpenAI API key, audio will be stored without a transcript")
		opts = append(opts, ingest.WithASR(extract.Unavailable("no OpenAI API key for transcription")))
	default:
		opts = append(opts, ingest.WithASR(extract.Unavailable("transcription disabled")))
	}

	switch cfg.Sentiment.Engine {
	case config.EngineNone:
	case config.EngineOpenAI:
		if oa != nil {
			opts = append(opts, ingest.WithSentiment(oa.Sentiment()))
			break
		}
		logger.Warn("no OpenAI API key, falling back to the lexicon sentiment scorer")
		opts = append(opts, ingest.WithSentiment(extract.NewLexiconScorer()))
	default:
		opts = append(opts, ingest.WithSentiment(extract.NewLexiconScorer()))
	}
	return opts
}

// Close releases the record store.
func (a *app) Close() {
	if a.records == nil {
		return
	}
	if err := a.records.Close(); err != nil {
		a.logger.Warn("failed to close record store", "error", err)
	}
}
