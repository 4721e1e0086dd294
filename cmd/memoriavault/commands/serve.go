package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/gateway"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/scheduler"
)

// newServeCmd creates the `memoriavault serve` command that starts the HTTP
// API and the orphan sweeper.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the MemoriaVault HTTP API and the background sweeper that
removes media files no memory points to.

Examples:
  memoriavault serve
  memoriavault serve --addr 127.0.0.1:9000
  memoriavault serve --config ./memoriavault.yaml`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides gateway.address)")
	cmd.Flags().Bool("no-sweeper", false, "disable the orphan media sweeper")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	gwCfg := a.cfg.Gateway
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		gwCfg.Address = addr
	}
	sweepCfg := a.cfg.Sweeper
	if off, _ := cmd.Flags().GetBool("no-sweeper"); off {
		sweepCfg.Enabled = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Start gateway ──
	gw := gateway.New(gateway.Deps{
		Ingester:      a.coordinator,
		Searcher:      a.engine,
		Records:       a.records,
		Blobs:         a.blobs,
		MediaBaseURL:  a.blobs.BaseURL(),
		MaxUploadSize: a.validator.MaxUploadSize(),
		Gatherer:      a.registry,
	}, gwCfg, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	// ── Start sweeper ──
	sweeper := scheduler.NewSweeper(a.blobs, a.records, sweepCfg, a.metrics, logger)
	if err := sweeper.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = gw.Stop(stopCtx)
		stopCancel()
		return fmt.Errorf("starting sweeper: %w", err)
	}

	// ── Wait for shutdown ──
	logger.Info("MemoriaVault running. Press Ctrl+C to stop.",
		"address", gwCfg.Address,
		"database", a.cfg.Database.Driver,
		"media_dir", a.cfg.Media.BaseDir,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := gw.Stop(shutdownCtx); err != nil {
			logger.Warn("gateway shutdown error", "error", err)
		}
		shutdownCancel()
		sweeper.Stop()
		cancel()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}
