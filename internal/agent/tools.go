// Package agent exposes the knowledge base to AI agents as MCP tools over stdio.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/health"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
)

// QueryInput are the arguments of query_knowledge_base.
type QueryInput struct {
	Query        string `json:"query" jsonschema:"the search query to find relevant information"`
	Limit        int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
	SourceFilter string `json:"source_filter,omitempty" jsonschema:"only search documents whose source path contains this string"`
}

// AskInput are the arguments of ask_knowledge_base.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the knowledge base"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
}

// DocumentInput are the arguments of get_knowledge_base_document.
type DocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document ID from a search result"`
}

// ListInput are the arguments of list_knowledge_base_documents.
type ListInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum number of documents to return (default 50)"`
	Offset int `json:"offset,omitempty" jsonschema:"number of documents to skip"`
}

const defaultListLimit = 50

// Empty takes no arguments.
type Empty struct{}

// Tools implements the MCP tool handlers.
type Tools struct {
	search  *search.Service
	health  *health.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures Tools.
type Option func(*Tools)

// WithMetrics counts and times every tool call registered by NewServer.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tools) { t.metrics = m }
}

// NewTools creates the tool handlers.
func NewTools(svc *search.Service, engine *health.Engine, logger *zap.Logger, opts ...Option) *Tools {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tools{search: svc, health: engine, logger: logger}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// instrument wraps h so each call is recorded under name.
func instrument[In any](
	t *Tools,
	name string,
	h func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error),
) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		done := t.metrics.StartTool(name)
		res, out, err := h(ctx, req, in)
		done(err)
		return res, out, err
	}
}

// NewServer registers every tool on a new MCP server.
func NewServer(t *Tools, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "kotae", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_knowledge_base",
		Description: "Search the knowledge base and return matching passages with source citations.",
	}, instrument(t, "query_knowledge_base", t.Query))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_knowledge_base",
		Description: "Answer a direct question with ranked context from the knowledge base.",
	}, instrument(t, "ask_knowledge_base", t.Ask))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_knowledge_base_documents",
		Description: "List documents in the knowledge base with their sources and chunk counts, newest first.",
	}, instrument(t, "list_knowledge_base_documents", t.List))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_knowledge_base_document",
		Description: "Show the title, source and metadata of one document.",
	}, instrument(t, "get_knowledge_base_document", t.Document))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_knowledge_base_overview",
		Description: "Summarize the knowledge base: totals, top-level sources and the newest documents.",
	}, instrument(t, "get_knowledge_base_overview", t.Overview))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "system_health",
		Description: "Report the health of storage, the embedding model and telemetry.",
	}, instrument(t, "system_health", t.Health))
	return server
}

// Serve runs the MCP server on stdin/stdout until ctx is done or the client disconnects.
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func text(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func (t *Tools) Query(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, nil, fmt.Errorf("query cannot be empty")
	}
	t.logger.Info("query_knowledge_base", zap.String("query", in.Query), zap.String("source_filter", in.SourceFilter))
	resp, err := t.search.Search(ctx, &models.SearchQuery{Query: in.Query, Limit: in.Limit, SourceFilter: in.SourceFilter})
	if err != nil {
		t.logger.Error("query_knowledge_base failed", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to query knowledge base: %w", err)
	}
	return text(search.FormatResults(resp.Results, strings.TrimSpace(in.SourceFilter))), nil, nil
}

func (t *Tools) Ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, nil, fmt.Errorf("question cannot be empty")
	}
	t.logger.Info("ask_knowledge_base", zap.String("question", in.Question))
	resp, err := t.search.Search(ctx, &models.SearchQuery{Query: in.Question, Limit: in.Limit})
	if err != nil {
		t.logger.Error("ask_knowledge_base failed", zap.Error(err))
		return nil, nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	return text(search.FormatAnswer(resp.Results)), nil, nil
}

func (t *Tools) Document(ctx context.Context, _ *mcp.CallToolRequest, in DocumentInput) (*mcp.CallToolResult, any, error) {
	id := strings.TrimSpace(in.DocumentID)
	if id == "" {
		return nil, nil, fmt.Errorf("document ID cannot be empty")
	}
	doc, err := t.search.Document(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get document: %w", err)
	}
	return text(search.FormatDocument(doc)), nil, nil
}

func (t *Tools) List(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, any, error) {
	if in.Limit <= 0 {
		in.Limit = defaultListLimit
	}
	t.logger.Info("list_knowledge_base_documents", zap.Int("limit", in.Limit), zap.Int("offset", in.Offset))
	docs, err := t.search.ListDocuments(ctx, in.Limit, in.Offset)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return text(search.FormatDocumentList(docs)), nil, nil
}

func (t *Tools) Overview(ctx context.Context, _ *mcp.CallToolRequest, _ Empty) (*mcp.CallToolResult, any, error) {
	o, err := t.search.Overview(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get overview: %w", err)
	}
	return text(search.FormatOverview(o)), nil, nil
}

func (t *Tools) Health(ctx context.Context, _ *mcp.CallToolRequest, _ Empty) (*mcp.CallToolResult, any, error) {
	report := t.health.Check(ctx)
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return text(string(b)), nil, nil
}
