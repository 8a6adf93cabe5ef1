package search

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

var formatResults = []*models.SearchResult{
	{Title: "Doc 1", Source: "a.md", Content: "first", Similarity: 0.8765},
	{Title: "", Source: "b.md", Content: "second", Similarity: 0.5},
}

func TestFormatResults(t *testing.T) {
	got := FormatResults(formatResults, "")
	want := "[Source: Doc 1]\nfirst\n\n---\n[Source: Unknown]\nsecond\n"
	if got != want {
		t.Errorf("FormatResults =\n%q\nwant\n%q", got, want)
	}
	if got := FormatResults(nil, "docs"); got != "No relevant information found in the knowledge base in 'docs' for your query." {
		t.Errorf("empty = %q", got)
	}
	if got := FormatResults(nil, ""); !strings.HasPrefix(got, "No relevant information found in the knowledge base for") {
		t.Errorf("empty = %q", got)
	}
}

func TestFormatAnswer(t *testing.T) {
	got := FormatAnswer(formatResults)
	for _, want := range []string{
		"Found 2 relevant results for your question:\n",
		"--- Result 1 (relevance: 87.65%) ---\nSource: Doc 1 (a.md)\nContent:\nfirst\n",
		"--- Result 2 (relevance: 50.00%) ---",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("FormatAnswer missing %q in:\n%s", want, got)
		}
	}
	if got := FormatAnswer(nil); !strings.HasPrefix(got, "I couldn't find") {
		t.Errorf("empty = %q", got)
	}
}

func TestFormatDocument(t *testing.T) {
	doc := &models.Document{
		ID: "d1", Title: "Guide", Source: "kb/guide.md",
		Metadata:  map[string]interface{}{"lang": "en"},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	got := FormatDocument(doc)
	for _, want := range []string{"Document ID: d1", "Title: Guide", "Created: 2026-01-02 03:04:05", `"lang": "en"`} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %s", want, got)
		}
	}
}

func TestFormatDocumentList(t *testing.T) {
	if got := FormatDocumentList(nil); got != "No documents found in the knowledge base." {
		t.Errorf("empty = %q", got)
	}
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	got := FormatDocumentList([]*models.DocumentSummary{
		{ID: "a", Title: "Passwords", Source: "kb/passwords.md", ChunkCount: 3, CreatedAt: created},
		{ID: "b", ChunkCount: 0, CreatedAt: created},
	})
	want := "Found 2 documents:\n" +
		"- [kb/passwords.md] Passwords (3 chunks, created: 2025-03-01 09:30:00)\n" +
		"- [Unknown] Unknown (0 chunks, created: 2025-03-01 09:30:00)"
	if got != want {
		t.Errorf("FormatDocumentList =\n%s\nwant\n%s", got, want)
	}
}

func TestFormatOverview(t *testing.T) {
	tests := []struct {
		name     string
		overview *Overview
		contains []string
		absent   []string
	}{
		{
			name:     "empty",
			overview: &Overview{},
			contains: []string{"Knowledge Base Overview", "Total Documents: 0", "Unique Sources: 0"},
			absent:   []string{"Sources (", "Documents ("},
		},
		{
			name: "small",
			overview: &Overview{
				Documents: 1, Chunks: 4, SizeBytes: 3 * 1024 * 1024,
				Sources: []string{"kb"},
				Recent:  []*models.DocumentSummary{{Title: "Passwords", Source: "kb/passwords.md", ChunkCount: 4}},
			},
			contains: []string{
				"Total Chunks: 4",
				"Storage Size: 3.0 MiB",
				"Sources (1):\n  - kb",
				"Documents (1):\n  - [kb/passwords.md] Passwords (4 chunks)",
			},
			absent: []string{"more"},
		},
		{
			name:     "truncated",
			overview: overviewOf(12, 25),
			contains: []string{"Unique Sources: 12", "  ... and 2 more", "Documents (25):", "  ... and 5 more"},
			absent:   []string{"src-11", "doc-20"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatOverview(tt.overview)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("missing %q in\n%s", want, got)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(got, unwanted) {
					t.Errorf("unexpected %q in\n%s", unwanted, got)
				}
			}
		})
	}
}

func overviewOf(sources, docs int) *Overview {
	o := &Overview{Documents: int64(docs)}
	for i := 0; i < sources; i++ {
		o.Sources = append(o.Sources, fmt.Sprintf("src-%02d", i))
	}
	for i := 0; i < docs; i++ {
		o.Recent = append(o.Recent, &models.DocumentSummary{Title: fmt.Sprintf("doc-%02d", i), Source: "src-00/x.md"})
	}
	return o
}

func TestSnippet(t *testing.T) {
	if got := Snippet("a\n  b   c", 3); got != "a b..." {
		t.Errorf("Snippet = %q", got)
	}
}
