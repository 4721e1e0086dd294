// Package scheduler runs periodic maintenance over the media store.
// Uses robfig/cron for schedule parsing and execution.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/metrics"
)

// Config configures the orphan sweeper.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or descriptor such as "@every 1h".
	Schedule string `yaml:"schedule"`

	// GracePeriod protects blobs younger than this from removal, so an
	// ingestion that is still extracting is never swept.
	GracePeriod time.Duration `yaml:"grace_period"`

	// MinGracePeriod is the longest an ingestion can take between saving
	// its blob and committing the record. GracePeriod is raised to it.
	MinGracePeriod time.Duration `yaml:"-"`
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Schedule:    "@every 1h",
		GracePeriod: time.Hour,
	}
}

// Sweeper removes blobs that no committed record references. Such blobs are
// left behind when a commit fails after the media was persisted.
type Sweeper struct {
	blobs   media.Store
	records memory.Store
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	cron    *cron.Cron
	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSweeper creates a sweeper. m may be nil.
func NewSweeper(blobs media.Store, records memory.Store, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultConfig().Schedule
	}
	logger = logger.With("component", "sweeper")
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	if cfg.GracePeriod < cfg.MinGracePeriod {
		logger.Warn("grace period shorter than the longest ingestion, raising it",
			"grace_period", cfg.GracePeriod, "min_grace_period", cfg.MinGracePeriod)
		cfg.GracePeriod = cfg.MinGracePeriod
	}
	return &Sweeper{
		blobs:   blobs,
		records: records,
		config:  cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Sweep removes every unreferenced blob older than the grace period and
// returns how many were removed. Failures on single blobs are logged and
// skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		s.logger.Debug("sweep already running, skipping")
		return 0, nil
	}
	defer s.running.Unlock()

	blobs, err := s.blobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list media: %w", err)
	}

	cutoff := s.now().Add(-s.config.GracePeriod)
	removed := 0
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if blob.CreatedAt.After(cutoff) {
			continue
		}
		referenced, err := s.records.MediaReferenced(ctx, blob.Path)
		if err != nil {
			s.logger.Warn("failed to check media reference", "path", blob.Path, "error", err)
			continue
		}
		if referenced {
			continue
		}
		if err := s.blobs.Delete(ctx, blob.ID); err != nil && !errors.Is(err, media.ErrNotFound) {
			s.logger.Warn("failed to delete orphan media", "id", blob.ID, "error", err)
			continue
		}
		removed++
		s.logger.Info("orphan media removed", "id", blob.ID, "path", blob.Path, "created_at", blob.CreatedAt)
	}

	s.metrics.Swept(removed)
	s.logger.Debug("sweep finished", "scanned", len(blobs), "removed", removed)
	return removed, nil
}

// Start schedules periodic sweeps.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("sweeper disabled")
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	if _, err := s.cron.AddFunc(s.config.Schedule, s.runScheduled); err != nil {
		s.cancel()
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()

	s.logger.Info("sweeper started", "schedule", s.config.Schedule, "grace_period", s.config.GracePeriod)
	return nil
}

func (s *Sweeper) runScheduled() {
	if _, err := s.Sweep(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("sweep failed", "error", err)
	}
}

// Stop waits for a running sweep to finish, up to 10 seconds.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("sweeper stop timed out")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("sweeper stopped")
}
