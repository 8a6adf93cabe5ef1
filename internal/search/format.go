package search

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// FormatResults renders results as cited passages separated by "---".
func FormatResults(results []*models.SearchResult, sourceFilter string) string {
	if len(results) == 0 {
		filter := ""
		if sourceFilter != "" {
			filter = fmt.Sprintf(" in '%s'", sourceFilter)
		}
		return fmt.Sprintf("No relevant information found in the knowledge base%s for your query.", filter)
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s\n", orUnknown(r.Title), r.Content)
	}
	return strings.Join(parts, "\n---\n")
}

// FormatAnswer renders results as numbered context for answering a question.
func FormatAnswer(results []*models.SearchResult) string {
	if len(results) == 0 {
		return "I couldn't find any relevant information in the knowledge base to answer your question."
	}
	parts := []string{fmt.Sprintf("Found %d relevant results for your question:\n", len(results))}
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("--- Result %d (relevance: %.2f%%) ---\nSource: %s (%s)\nContent:\n%s\n",
			i+1, r.Similarity*100, orUnknown(r.Title), orUnknown(r.Source), r.Content))
	}
	return strings.Join(parts, "\n")
}

// FormatDocument renders a document header with its metadata.
func FormatDocument(doc *models.Document) string {
	parts := []string{
		"Document ID: " + doc.ID,
		"Title: " + orUnknown(doc.Title),
		"Source: " + orUnknown(doc.Source),
		"Created: " + doc.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if len(doc.Metadata) > 0 {
		if b, err := json.MarshalIndent(doc.Metadata, "", "  "); err == nil {
			parts = append(parts, "\nMetadata: "+string(b))
		}
	}
	return strings.Join(parts, "\n")
}

// FormatDocumentList renders one line per document with its source and chunk count.
func FormatDocumentList(docs []*models.DocumentSummary) string {
	if len(docs) == 0 {
		return "No documents found in the knowledge base."
	}
	lines := []string{fmt.Sprintf("Found %d documents:", len(docs))}
	for _, d := range docs {
		lines = append(lines, fmt.Sprintf("- [%s] %s (%d chunks, created: %s)",
			orUnknown(d.Source), orUnknown(d.Title), d.ChunkCount, d.CreatedAt.Format("2006-01-02 15:04:05")))
	}
	return strings.Join(lines, "\n")
}

const (
	overviewSources   = 10
	overviewDocuments = 20
)

// FormatOverview renders totals, the top-level sources and the newest documents.
func FormatOverview(o *Overview) string {
	lines := []string{
		"Knowledge Base Overview",
		strings.Repeat("=", 50),
		fmt.Sprintf("Total Documents: %d", o.Documents),
		fmt.Sprintf("Total Chunks: %d", o.Chunks),
		fmt.Sprintf("Storage Size: %s", humanBytes(o.SizeBytes)),
		fmt.Sprintf("Unique Sources: %d", len(o.Sources)),
	}
	if len(o.Sources) > 0 {
		lines = append(lines, fmt.Sprintf("\nSources (%d):", len(o.Sources)))
		for _, src := range o.Sources[:min(len(o.Sources), overviewSources)] {
			lines = append(lines, "  - "+src)
		}
		if n := len(o.Sources) - overviewSources; n > 0 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", n))
		}
	}
	if len(o.Recent) > 0 {
		lines = append(lines, fmt.Sprintf("\nDocuments (%d):", len(o.Recent)))
		for _, d := range o.Recent[:min(len(o.Recent), overviewDocuments)] {
			lines = append(lines, fmt.Sprintf("  - [%s] %s (%d chunks)", orUnknown(d.Source), orUnknown(d.Title), d.ChunkCount))
		}
		if n := len(o.Recent) - overviewDocuments; n > 0 {
			lines = append(lines, fmt.Sprintf("  ... and %d more", n))
		}
	}
	return strings.Join(lines, "\n")
}

// Snippet shortens content for list displays.
func Snippet(content string, maxLen int) string {
	return utils.Truncate(strings.Join(strings.Fields(content), " "), maxLen)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
