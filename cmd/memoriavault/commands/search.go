package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/query"
)

// newSearchCmd creates the `memoriavault search` command.
func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by keyword",
		Long: `Search memory titles and text. Terms are matched whole, a trailing *
matches by prefix. Title matches rank first, then newer memories.

Examples:
  memoriavault search grandma
  memoriavault search "fish* lake"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}
	cmd.Flags().Bool("json", false, "print results as JSON")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.engine.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), results)
	}
	printResults(cmd.OutOrStdout(), results)
	return nil
}

// printResults writes ranked results one block per hit.
func printResults(w io.Writer, results []query.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No memories found.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "#%d  %s", r.ID, r.Title)
		if r.Date != "" {
			fmt.Fprintf(w, "  [%s]", r.Date)
		}
		fmt.Fprintf(w, "  %s\n", r.MediaType)
		if r.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", r.Snippet)
		}
	}
}
