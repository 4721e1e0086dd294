package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

// newListCmd creates the `memoriavault list` command.
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Long: `List committed memories, newest first.

Examples:
  memoriavault list
  memoriavault list --limit 50 --offset 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			if limit < 0 || offset < 0 {
				return fmt.Errorf("limit and offset must not be negative")
			}

			a, err := openApp(cmd, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.records.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), records)
			}
			return printTable(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of memories")
	cmd.Flags().Int("offset", 0, "number of memories to skip")
	cmd.Flags().Bool("json", false, "print memories as JSON")
	return cmd
}

func printTable(w io.Writer, records []*memory.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No memories yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tDATE\tSENTIMENT")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.MediaType, orDash(r.CapturedDate), formatSentiment(r.Sentiment))
	}
	return tw.Flush()
}
