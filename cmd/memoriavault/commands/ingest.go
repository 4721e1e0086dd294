package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/ingest"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// newIngestCmd creates the `memoriavault ingest` command that runs one file
// through the ingestion pipeline.
func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Digitize a photo or recording into a memory",
		Long: `Store a photo or voice recording, extract its text, metadata and
sentiment, and commit it as a searchable memory.

Examples:
  memoriavault ingest letter.jpg --title "Letter from Grandma"
  memoriavault ingest story.mp3 --title "Grandpa's fishing story" --person Joao
  memoriavault ingest scan.png --title "Wedding invite" --date 1962-05-12`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("title", "", "memory title (required)")
	cmd.Flags().String("person", "", "person the memory is about")
	cmd.Flags().String("date", "", "date hint (YYYY-MM-DD), used when the file has no capture date")
	cmd.Flags().String("type", "", "media type: image or audio (detected when empty)")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	a, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	title, _ := cmd.Flags().GetString("title")
	person, _ := cmd.Flags().GetString("person")
	date, _ := cmd.Flags().GetString("date")
	mediaType, _ := cmd.Flags().GetString("type")
	asJSON, _ := cmd.Flags().GetBool("json")

	filename := filepath.Base(args[0])
	res, err := a.coordinator.Ingest(cmd.Context(), ingest.Request{
		Data:      data,
		Filename:  filename,
		MimeType:  media.DetectMimeType(data, filename),
		MediaType: media.MediaType(mediaType),
		Title:     title,
		Person:    person,
		DateHint:  date,
	})
	if err != nil {
		return fmt.Errorf("ingest failed (%s): %w", ingest.KindOf(err), err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, res)
	}
	printRecord(out, res.Record)
	for _, d := range res.Degraded {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s step degraded: %s\n", d.Step, d.Error)
	}
	return nil
}
