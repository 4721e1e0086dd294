// Package commands implements the MemoriaVault CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "memoriavault",
		Short: "MemoriaVault - searchable family memories",
		Long: `MemoriaVault digitizes photos and voice recordings into searchable
memory records. Text is pulled out with OCR or transcription, dates and
places come from file metadata, and every memory gets a sentiment score.

Examples:
  memoriavault serve
  memoriavault ingest letter.jpg --title "Letter from Grandma" --person Rosa
  memoriavault search "grandma garden"
  memoriavault shell`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newSearchCmd(),
		newShowCmd(),
		newListCmd(),
		newStatsCmd(),
		newShellCmd(),
		newSweepCmd(),
		newSetupCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
