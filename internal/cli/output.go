// Package cli renders kotae responses for terminal use.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/kotae/internal/health"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────\n"

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %.0fms (embedding %.0fms, db %.0fms)\n\n",
		response.Total, response.Query, response.Timing.TotalMS,
		response.Timing.EmbeddingMS, response.Timing.DBMS)
	for i, r := range response.Results {
		fmt.Fprint(w, rule)
		fmt.Fprintf(w, "#%d | Similarity: %.4f\n", i+1, r.Similarity)
		if r.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", r.Title)
		}
		if r.Source != "" {
			fmt.Fprintf(w, "Source: %s\n", r.Source)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(r.Content, 200))
	}
	return nil
}

// WriteHealthReport writes a health report with services in name order.
func WriteHealthReport(w io.Writer, report *health.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Status: %s (%s)\n", report.Status, report.Timestamp.Format("2006-01-02 15:04:05"))
	names := make([]string, 0, len(report.Services))
	for name := range report.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := report.Services[name]
		fmt.Fprintf(w, "  %-10s %-13s %6.1fms", name, s.Status, s.LatencyMS)
		if s.Message != "" {
			fmt.Fprintf(w, "  %s", s.Message)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteIngestResult summarizes a load run.
func WriteIngestResult(w io.Writer, res *search.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Loaded %d documents (%d chunks)\n", res.Documents, res.Chunks)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
