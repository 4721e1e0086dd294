// Package config defines the MemoriaVault configuration and loads it from
// YAML with environment and keyring secret resolution.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/extract"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/gateway"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/ingest"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/query"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/scheduler"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Extraction engines.
const (
	EngineTesseract = "tesseract"
	EngineOpenAI    = "openai"
	EngineLexicon   = "lexicon"
	EngineNone      = "none"
)

// Config is the root configuration.
type Config struct {
	// DataDir is the base directory for relative data paths.
	DataDir string `yaml:"data_dir"`

	Database   DatabaseConfig    `yaml:"database"`
	Media      media.StoreConfig `yaml:"media"`
	Extraction ExtractionConfig  `yaml:"extraction"`
	Search     query.Config      `yaml:"search"`
	Gateway    gateway.Config    `yaml:"gateway"`
	Sweeper    scheduler.Config  `yaml:"sweeper"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig selects and configures the record store.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "memory" (nothing persisted).
	Driver string `yaml:"driver"`

	Path        string `yaml:"path"`
	JournalMode string `yaml:"journal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SQLite returns the SQLite store settings.
func (d DatabaseConfig) SQLite() memory.SQLiteConfig {
	return memory.SQLiteConfig{
		Path:        d.Path,
		JournalMode: d.JournalMode,
		BusyTimeout: d.BusyTimeout,
	}
}

// ExtractionConfig configures the OCR, ASR, metadata and sentiment
// capabilities and their bounds.
type ExtractionConfig struct {
	OCR       OCRConfig            `yaml:"ocr"`
	ASR       ASRConfig            `yaml:"asr"`
	Sentiment SentimentConfig      `yaml:"sentiment"`
	OpenAI    extract.OpenAIConfig `yaml:"openai"`

	Timeout          time.Duration `yaml:"timeout"`
	MetadataTimeout  time.Duration `yaml:"metadata_timeout"`
	SentimentTimeout time.Duration `yaml:"sentiment_timeout"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
}

// Ingest returns the coordinator bounds.
func (e ExtractionConfig) Ingest() ingest.Config {
	return ingest.Config{
		ExtractTimeout:   e.Timeout,
		MetadataTimeout:  e.MetadataTimeout,
		SentimentTimeout: e.SentimentTimeout,
		MaxConcurrent:    e.MaxConcurrent,
	}
}

// SweepGraceFloor is the longest an ingestion can hold an uncommitted blob:
// text extraction then sentiment, or metadata, whichever is longer, plus
// the wait for the database lock at commit.
func (c *Config) SweepGraceFloor() time.Duration {
	ic, defaults := c.Extraction.Ingest(), ingest.DefaultConfig()
	if ic.ExtractTimeout <= 0 {
		ic.ExtractTimeout = defaults.ExtractTimeout
	}
	if ic.MetadataTimeout <= 0 {
		ic.MetadataTimeout = defaults.MetadataTimeout
	}
	if ic.SentimentTimeout <= 0 {
		ic.SentimentTimeout = defaults.SentimentTimeout
	}
	floor := max(ic.ExtractTimeout+ic.SentimentTimeout, ic.MetadataTimeout)
	if c.Database.Driver == DriverSQLite {
		busy := c.Database.BusyTimeout
		if busy == 0 {
			busy = 5000
		}
		floor += time.Duration(busy) * time.Millisecond
	}
	return floor
}

// OCRConfig lists the OCR engines to try, in order.
type OCRConfig struct {
	Engines                 []string `yaml:"engines"`
	extract.TesseractConfig `yaml:",inline"`
}

// ASRConfig selects the speech-to-text engine.
type ASRConfig struct {
	Engine                string `yaml:"engine"`
	extract.WhisperConfig `yaml:",inline"`
}

// SentimentConfig selects the sentiment scorer.
type SentimentConfig struct {
	// Engine is "lexicon" (default), "openai" or "none".
	Engine string `yaml:"engine"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	ic := ingest.DefaultConfig()
	return &Config{
		DataDir: "./data",
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/memoriavault.db",
			JournalMode: "WAL",
			BusyTimeout: 5000,
		},
		Media: media.DefaultStoreConfig(),
		Extraction: ExtractionConfig{
			OCR: OCRConfig{
				Engines:         []string{EngineTesseract, EngineOpenAI},
				TesseractConfig: extract.TesseractConfig{Path: "tesseract", Language: "eng"},
			},
			ASR: ASRConfig{
				Engine:        EngineOpenAI,
				WhisperConfig: extract.WhisperConfig{Model: "whisper-1"},
			},
			Sentiment: SentimentConfig{Engine: EngineLexicon},
			OpenAI: extract.OpenAIConfig{
				APIKey:         "${OPENAI_API_KEY}",
				VisionModel:    "gpt-4o-mini",
				SentimentModel: "gpt-4o-mini",
			},
			Timeout:          ic.ExtractTimeout,
			MetadataTimeout:  ic.MetadataTimeout,
			SentimentTimeout: ic.SentimentTimeout,
			MaxConcurrent:    ic.MaxConcurrent,
		},
		Search: query.DefaultConfig(),
		Gateway: gateway.Config{
			Address:     ":8000",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Sweeper: scheduler.DefaultConfig(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite, memory", c.Database.Driver))
	}

	if c.Media.BaseDir == "" {
		errs = append(errs, errors.New("media.base_dir is required"))
	}
	if err := validateMediaBaseURL(c.Media.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if c.Media.MaxUploadSize < 0 {
		errs = append(errs, errors.New("media.max_upload_size must not be negative"))
	}

	for _, engine := range c.Extraction.OCR.Engines {
		if !slices.Contains([]string{EngineTesseract, EngineOpenAI}, engine) {
			errs = append(errs, fmt.Errorf("extraction.ocr.engines: unknown engine %q", engine))
		}
	}
	if e := c.Extraction.ASR.Engine; e != "" && e != EngineOpenAI && e != EngineNone {
		errs = append(errs, fmt.Errorf("extraction.asr.engine %q is not one of openai, none", e))
	}
	if e := c.Extraction.Sentiment.Engine; e != "" && e != EngineLexicon && e != EngineOpenAI && e != EngineNone {
		errs = append(errs, fmt.Errorf("extraction.sentiment.engine %q is not one of lexicon, openai, none", e))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateMediaBaseURL rejects base URLs the gateway cannot route media
// under: absolute URLs, the root, and prefixes owned by the API.
func validateMediaBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	if strings.ContainsAny(raw, "?#") || strings.Contains(raw, "://") {
		return fmt.Errorf("media.base_url %q must be a path such as /media", raw)
	}
	prefix := "/" + strings.Trim(raw, "/")
	for _, reserved := range []string{"/", "/api", "/health", "/metrics"} {
		if prefix == reserved || (reserved != "/" && strings.HasPrefix(prefix, reserved+"/")) {
			return fmt.Errorf("media.base_url %q conflicts with the %s route", raw, reserved)
		}
	}
	return nil
}
