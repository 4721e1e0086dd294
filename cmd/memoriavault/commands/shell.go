package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

const shellHelp = `Type words to search. Commands:
  :show <id>     show one memory
  :list [n]      list the newest n memories (default 10)
  :stats         vault statistics
  :help          this help
  exit           leave the shell`

// newShellCmd creates the `memoriavault shell` command, an interactive
// search prompt with history.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive search prompt",
		Args:  cobra.NoArgs,
		RunE:  runShell,
	}
}

func runShell(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "memoria> ",
		HistoryFile:       filepath.Join(homeDir, ".memoriavault_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	out := rl.Stdout()
	fmt.Fprintln(out, shellHelp)
	fmt.Fprintln(out)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		if quit := a.shellLine(cmd.Context(), out, line); quit {
			return nil
		}
	}
}

// shellLine runs one line of shell input. It reports whether the shell
// should exit.
func (a *app) shellLine(ctx context.Context, w io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "exit", "quit", ":q":
		return true
	case ":help":
		fmt.Fprintln(w, shellHelp)
	case ":show":
		if len(fields) != 2 {
			fmt.Fprintln(w, "usage: :show <id>")
			return false
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintf(w, "invalid memory id %q\n", fields[1])
			return false
		}
		rec, err := a.engine.Get(ctx, id)
		switch {
		case errors.Is(err, memory.ErrNotFound):
			fmt.Fprintf(w, "memory %d not found\n", id)
		case err != nil:
			fmt.Fprintf(w, "error: %v\n", err)
		default:
			printRecord(w, rec)
		}
	case ":list":
		limit := 10
		if len(fields) > 1 {
			n, err := strconv.Atoi(fields[1])
			if err != nil || n <= 0 {
				fmt.Fprintf(w, "invalid count %q\n", fields[1])
				return false
			}
			limit = n
		}
		records, err := a.records.List(ctx, limit, 0)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return false
		}
		_ = printTable(w, records)
	case ":stats":
		stats, err := a.records.Stats(ctx)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return false
		}
		printStats(w, stats)
	default:
		if strings.HasPrefix(fields[0], ":") {
			fmt.Fprintf(w, "unknown command %s, try :help\n", fields[0])
			return false
		}
		results, err := a.engine.Search(ctx, line)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return false
		}
		printResults(w, results)
	}
	return false
}
