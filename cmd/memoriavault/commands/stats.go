package commands

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

// newStatsCmd creates the `memoriavault stats` command.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vault statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.records.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print statistics as JSON")
	return cmd
}

func printStats(w io.Writer, stats *memory.Stats) {
	fmt.Fprintf(w, "Memories: %d\n", stats.Total)

	types := make([]media.MediaType, 0, len(stats.ByMediaType))
	for t := range stats.ByMediaType {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-6s %d\n", t, stats.ByMediaType[t])
	}
	fmt.Fprintf(w, "Average sentiment: %s\n", formatSentiment(stats.AverageSentiment))
}
