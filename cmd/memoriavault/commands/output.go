package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/extract"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatSentiment renders a score with its label, or "-" when absent.
func formatSentiment(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", strconv.FormatFloat(*s, 'f', 2, 64), extract.SentimentLabel(*s))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printRecord writes a record in a human readable block.
func printRecord(w io.Writer, rec *memory.Record) {
	fmt.Fprintf(w, "#%d  %s\n", rec.ID, rec.Title)
	fmt.Fprintf(w, "  type:      %s\n", rec.MediaType)
	fmt.Fprintf(w, "  date:      %s\n", orDash(rec.CapturedDate))
	fmt.Fprintf(w, "  location:  %s\n", orDash(rec.Location))
	fmt.Fprintf(w, "  person:    %s\n", orDash(rec.Person))
	fmt.Fprintf(w, "  sentiment: %s\n", formatSentiment(rec.Sentiment))
	fmt.Fprintf(w, "  media:     %s\n", rec.MediaPath)
	fmt.Fprintf(w, "  created:   %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if rec.Text != "" {
		fmt.Fprintf(w, "\n%s\n", rec.Text)
	}
}
