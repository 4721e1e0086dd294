package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/scheduler"
)

// newSweepCmd creates the `memoriavault sweep` command that runs one orphan
// sweep immediately.
func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove media files no memory points to",
		Long: `Delete stored media that no memory references, for example a blob
left behind when a commit failed. Files younger than the grace period
are kept so in-flight uploads are never touched. The grace period is
never shorter than the longest an upload can take to commit, which
follows from the extraction timeouts.

Examples:
  memoriavault sweep
  memoriavault sweep --grace 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg.Sweeper
			if cmd.Flags().Changed("grace") {
				cfg.GracePeriod, _ = cmd.Flags().GetDuration("grace")
			}

			n, err := scheduler.NewSweeper(a.blobs, a.records, cfg, a.metrics, a.logger).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphaned media file(s).\n", n)
			return nil
		},
	}
	cmd.Flags().Duration("grace", 0, "only remove files older than this (default from config, never below the longest upload)")
	return cmd
}
