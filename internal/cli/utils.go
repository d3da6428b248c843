// Package cli provides CLI output helpers for kbserve.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kbserve/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteHealthReport writes a readiness report to w in the given format.
func WriteHealthReport(w io.Writer, report *models.HealthReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "status:               %s\n", report.Status)
	if report.Database != "" {
		fmt.Fprintf(w, "database:             %s\n", report.Database)
	}
	fmt.Fprintf(w, "api_key_set:          %t\n", report.APIKeySet)
	if c := report.ChunkCounts; c != nil {
		fmt.Fprintf(w, "discourse_chunks:     %d   # embedded: %d\n", c.DiscourseChunks, c.DiscourseEmbeddings)
		fmt.Fprintf(w, "markdown_chunks:      %d   # embedded: %d\n", c.MarkdownChunks, c.MarkdownEmbeddings)
	}
	if report.Error != "" {
		fmt.Fprintf(w, "error:                %s\n", report.Error)
	}
	return nil
}

// WriteAnswer writes an answer and its links to w in the given format.
func WriteAnswer(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Links) > 0 {
		fmt.Fprintln(w)
		for _, l := range resp.Links {
			fmt.Fprintf(w, "  - %s (%s)\n", Truncate(l.Text, 80), l.URL)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
