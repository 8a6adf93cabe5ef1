// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/agent"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/health"
	"github.com/hyperjump/kotae/internal/lifecycle"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/telemetry"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml in
// the current directory wins so that "kotae server" from a project dir uses the
// project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "mcp":
		runMCP()
	case "search":
		runSearch()
	case "health":
		runHealth()
	case "load":
		runLoad()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	noReload := fs.Bool("no-reload", false, "do not watch the config file for embedding changes")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	// The server answers health checks while the model loads.
	components.Embedders.Start()

	if !*noReload {
		reloader := watcher.NewEmbeddingReloader(cfg.Embedding, components.Embedders, embedderFactory(logger), logger)
		cfgWatcher := watcher.New(resolvedConfigPath, func(path string) { reloader.Reload(path) }, watcher.WithLogger(logger))
		if err := cfgWatcher.Start(context.Background()); err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			defer cfgWatcher.Stop()
		}
	}

	srv := server.NewServer(components.Search, components.Health, cfg.Server, version, logger,
		server.WithMetrics(components.Metrics))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	components.Close(ctx)
}

func runMCP() {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	logger, err := utils.NewStderrLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	components.Embedders.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	tools := agent.NewTools(components.Search, components.Health, logger, agent.WithMetrics(components.Metrics))
	if err := agent.Serve(ctx, agent.NewServer(tools, version)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	components.Close(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae search how do I rotate api keys
  kotae search --limit 10 --source handbook "vacation policy"
  kotae search --output json onboarding checklist
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// configPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func configPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// serverURLFromConfig derives the default server URL from the config at path.
// On load failure it returns http://localhost:8080.
func serverURLFromConfig(path string) string {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return "http://localhost:8080"
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	defaultURL := serverURLFromConfig(configPathFromArgs(searchArgs, defaultConfigPath))

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	_ = fs.String("config", defaultConfigPath, "config file path (used for the default server URL)")
	serverURL := fs.String("server", defaultURL, "server URL")
	limit := fs.Int("limit", 0, "number of results (0 = server default)")
	source := fs.String("source", "", "only search documents whose source contains this text")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	response, err := searchViaHTTP(http.DefaultClient, *serverURL, &models.SearchQuery{
		Query:        queryStr,
		Limit:        *limit,
		SourceFilter: *source,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(client *http.Client, serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// serverError turns a non-2xx response into an error, preferring the JSON error message.
func serverError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

func runHealth() {
	args := os.Args[2:]
	defaultURL := serverURLFromConfig(configPathFromArgs(args, defaultConfigPath))

	fs := flag.NewFlagSet("health", flag.ExitOnError)
	_ = fs.String("config", defaultConfigPath, "config file path (used for the default server URL)")
	serverURL := fs.String("server", defaultURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	report, err := healthViaHTTP(http.DefaultClient, *serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteHealthReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if !report.Accepting() {
		os.Exit(1)
	}
}

// healthViaHTTP fetches the health report. A 503 still carries a report.
func healthViaHTTP(client *http.Client, serverURL string) (*health.Report, error) {
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, serverError(resp)
	}
	var report health.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

func runLoad() {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae load [flags] <documents.json|->")
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var in io.Reader = os.Stdin
	if path := fs.Arg(0); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", path, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}
	docs, err := readDocuments(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read documents: %v\n", err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewStderrLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	components.Embedders.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := components.Search.Ingest(ctx, docs)
	components.Close(context.Background())
	if res != nil {
		_ = cli.WriteIngestResult(os.Stdout, res, format)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
}

// readDocuments accepts either a JSON array of documents or newline-delimited
// JSON objects.
func readDocuments(r io.Reader) ([]*models.DocumentInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("no documents")
	}
	if trimmed[0] == '[' {
		var docs []*models.DocumentInput
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("parse documents: %w", err)
		}
		return docs, nil
	}
	var docs []*models.DocumentInput
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var doc models.DocumentInput
		if err := dec.Decode(&doc); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("parse document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

// Components holds initialized services.
type Components struct {
	Store     storage.Store
	Telemetry *telemetry.Client
	Embedders *lifecycle.Manager
	Health    *health.Engine
	Search    *search.Service
	Metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Close stops the embedder and releases the store and telemetry client.
func (c *Components) Close(ctx context.Context) {
	if c.Embedders != nil {
		if err := c.Embedders.Shutdown(ctx); err != nil {
			c.logger.Warn("embedder shutdown", zap.Error(err))
		}
	}
	if c.Telemetry != nil {
		_ = c.Telemetry.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// embedderFactory binds an embedding config to a lifecycle factory.
func embedderFactory(logger *zap.Logger) func(config.EmbeddingConfig) lifecycle.Factory {
	return func(cfg config.EmbeddingConfig) lifecycle.Factory {
		return func(ctx context.Context) (*embedding.Embedder, error) {
			return embedding.New(ctx, cfg, logger)
		}
	}
}

// initializeComponents wires the store, telemetry, embedder lifecycle, health
// engine and search service. The embedder is not started.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tel := telemetry.New(cfg.Telemetry, logger)
	embedders := lifecycle.NewManager(
		embedderFactory(logger)(cfg.Embedding),
		lifecycle.WithInitTimeout(cfg.Embedding.InitTimeout),
		lifecycle.WithLogger(logger),
	)

	engine := health.NewEngine(
		health.WithProbeTimeout(cfg.Health.ProbeTimeout),
		health.WithLogger(logger),
	)
	engine.Register(health.ServiceStorage, health.PingProbe(store, "connected"))
	engine.Register(health.ServiceEmbedder, health.EmbedderProbe(embedders))
	if cfg.Telemetry.Enabled {
		engine.Register(health.ServiceTelemetry, health.PingProbe(tel, "reachable"))
	}

	m := metrics.New()
	svc := search.NewService(embedders, store, cfg.Search,
		search.WithTracer(tel),
		search.WithRecorder(m),
		search.WithLogger(logger),
	)

	return &Components{
		Store:     store,
		Telemetry: tel,
		Embedders: embedders,
		Health:    engine,
		Search:    svc,
		Metrics:   m,
		logger:    logger,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Knowledge base search with a managed embedding pipeline

Usage:
  kotae server [flags]                Start the HTTP server
  kotae mcp [flags]                   Serve agent tools over stdio
  kotae search [flags] <query>        Search the knowledge base (via server)
  kotae health [flags]                Show service health (via server); exits 1 when down
  kotae load [flags] <file|->         Embed and store pre-chunked documents
  kotae version                       Show version
  kotae help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging
  --no-reload        Do not reload the embedder when the config file changes

Search Flags:
  --server string    Server URL (default from config server.host/port)
  --limit int        Number of results (default: server default)
  --source string    Only search documents whose source contains this text
  --output string    Output format: text or json (default: text)

Health Flags:
  --server string    Server URL (default from config server.host/port)
  --output string    Output format: text or json (default: text)

Load Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Load input is a JSON array, or newline-delimited JSON objects, of
  {"id": "...", "title": "...", "source": "...", "metadata": {...}, "chunks": ["...", ...]}

Environment:
  A .env file in the working directory is loaded before the config.
  API keys are read from the variables named by embedding.api_key_env and
  telemetry.public_key_env / telemetry.secret_key_env.

Examples:
  kotae server
  kotae search "how do I rotate api keys"
  kotae search --output json --limit 3 onboarding
  kotae health
  kotae load docs.jsonl`)
}
