// Package main is the ruiji CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/fixtures"
	"github.com/hyperjump/ruiji/internal/llm"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/provider"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vectorsearch"
	"github.com/hyperjump/ruiji/internal/watcher"
	"github.com/hyperjump/ruiji/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ruiji/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence if it exists, so running from a
// project directory picks up the project's config.
// Returns the config and the path that was actually loaded.
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
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "save":
		runSave()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "reembed":
		runReembed()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("ruiji version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging (request log, file imports, etc.)")
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
		zap.Int("record_types", len(cfg.Types)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			components.Importer,
			watchOpts...,
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.Sync()
	}

	srv := server.NewServer(components.Registry, components.Storage, components.Importer, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if err := components.Registry.Persist(); err != nil {
		logger.Warn("persisting indices failed", zap.Error(err))
	}
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Registry *vectorsearch.Registry
	Importer *fixtures.Importer
}

func (c *Components) Close() {
	if c.Registry != nil {
		_ = c.Registry.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	components := &Components{Storage: store}

	embedder, err := embedding.NewEmbedder(embeddingConfig(cfg))
	if err != nil {
		logger.Warn("embedder unavailable, falling back to mock embeddings",
			zap.String("provider", cfg.Embedding.Provider),
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}
	components.Embedder = embedder
	logger.Info("embedder initialized", zap.String("name", embedder.Name()), zap.Int("dimensions", embedder.Dimensions()))

	generator, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		URL:      cfg.LLM.URL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		components.Close()
		return nil, fmt.Errorf("failed to initialize llm: %w", err)
	}
	opts := provider.Options{
		Generator:    generator,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
		Logger:       logger,
	}

	registry := vectorsearch.NewRegistry(store, logger)
	components.Registry = registry
	for _, spec := range cfg.Types {
		p, err := provider.New(ctx, cfg, spec.Name, embedder, opts)
		if err != nil {
			components.Close()
			return nil, fmt.Errorf("record type %s: %w", spec.Name, err)
		}
		declOpts := []vectorsearch.Option{
			vectorsearch.WithBatchSize(cfg.Search.BatchSize),
			vectorsearch.WithLogger(logger),
		}
		if spec.EmbeddingField != "" {
			declOpts = append(declOpts, vectorsearch.WithEmbeddingField(spec.EmbeddingField))
		}
		if len(spec.ExcludeFields) > 0 {
			declOpts = append(declOpts, vectorsearch.WithExcludeFields(spec.ExcludeFields...))
		}
		if _, err := registry.Declare(ctx, spec.Name, p, declOpts...); err != nil {
			_ = p.Close()
			components.Close()
			return nil, fmt.Errorf("record type %s: %w", spec.Name, err)
		}
		logger.Info("record type declared",
			zap.String("record_type", spec.Name),
			zap.String("provider", p.Name()))
	}

	components.Importer = fixtures.NewImporter(registry, logger)
	return components, nil
}

func embeddingConfig(cfg *config.Config) embedding.Config {
	return embedding.Config{
		Provider:    cfg.Embedding.Provider,
		Dimensions:  cfg.Embedding.Dimensions,
		CacheSize:   cfg.Embedding.CacheSize,
		ModelPath:   cfg.Embedding.ModelPath,
		MaxTokens:   cfg.Embedding.MaxTokens,
		OllamaURL:   cfg.Embedding.OllamaURL,
		OllamaModel: cfg.Embedding.OllamaModel,
		OpenAIKey:   cfg.Embedding.OpenAIKey,
		OpenAIModel: cfg.Embedding.OpenAIModel,
	}
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse sees them. Go's flag
// package stops at the first non-flag argument.
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

// whereFlag collects repeated --where field=value conditions.
type whereFlag map[string]interface{}

func (w whereFlag) String() string {
	parts := make([]string, 0, len(w))
	for k, v := range w {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (w whereFlag) Set(s string) error {
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return fmt.Errorf("expected field=value, got %q", s)
	}
	w[field] = parseFilterValue(value)
	return nil
}

// parseFilterValue interprets a command line filter value as a bool, number,
// null, or string, in that order.
func parseFilterValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed: %v\n", what, err)
	os.Exit(1)
}

func runSave() {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: ruiji save [flags] <type> <file>")
		os.Exit(1)
	}
	recordType, path := fs.Arg(0), fs.Arg(1)
	format := parseFormat(*outputFormat)

	inputs, err := fixtures.ReadFile(path)
	if err != nil {
		fail("Read", err)
	}
	client := cli.NewClient(*serverURL)
	ctx := context.Background()
	saved := make([]*models.Record, 0, len(inputs))
	for _, in := range inputs {
		in.Type = recordType
		rec, err := client.Save(ctx, recordType, in)
		if err != nil {
			fail("Save", err)
		}
		saved = append(saved, rec)
	}
	if err := cli.WriteSaved(os.Stdout, saved, format); err != nil {
		fail("Output", err)
	}
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ruiji search [flags] <type> <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  ruiji search recipes spicy noodle soup
  ruiji search --limit 5 --where cuisine=thai recipes coconut
  ruiji search --distance --max-distance 0.4 recipes "slow cooked beans"
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	limit := fs.Int("limit", 0, "number of results (default from server config)")
	withDistance := fs.Bool("distance", false, "return distances and drop results farther than --max-distance")
	maxDistance := fs.Float64("max-distance", 0, "maximum distance with --distance (default from server config)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	where := whereFlag{}
	fs.Var(where, "where", "field=value condition on the results (repeatable)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() < 2 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	recordType := fs.Arg(0)
	queryStr := buildSearchQuery(fs.Args()[1:])
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	req := models.SearchRequest{
		Query:        queryStr,
		Limit:        *limit,
		WithDistance: *withDistance,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "max-distance" {
			req.MaxDistance = maxDistance
		}
	})
	if len(where) > 0 {
		req.Filters = where
	}
	resp, err := cli.NewClient(*serverURL).Search(context.Background(), recordType, req)
	if err != nil {
		fail("Search", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fail("Output", err)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	k := fs.Int("k", 0, "number of records used as context (default from server config)")
	stream := fs.Bool("stream", true, "print the answer as it is generated")
	outputFormat := fs.String("output", "text", "output format: text or json (json disables streaming)")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "Usage: ruiji ask [flags] <type> <question>")
		os.Exit(1)
	}
	recordType := fs.Arg(0)
	question := buildSearchQuery(fs.Args()[1:])
	format := parseFormat(*outputFormat)

	client := cli.NewClient(*serverURL)
	req := models.AskRequest{Question: question, K: *k}
	if *stream && format != cli.OutputJSON {
		if err := client.AskStream(context.Background(), recordType, req, os.Stdout); err != nil {
			fail("Ask", err)
		}
		fmt.Println()
		return
	}
	resp, err := client.Ask(context.Background(), recordType, req)
	if err != nil {
		fail("Ask", err)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fail("Output", err)
	}
}

func runReembed() {
	fs := flag.NewFlagSet("reembed", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ruiji reembed [flags] <type>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	report, err := cli.NewClient(*serverURL).Reembed(context.Background(), fs.Arg(0))
	if err != nil {
		fail("Reembed", err)
	}
	_ = cli.WriteReport(os.Stdout, report, format)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	recursive := fs.Bool("recursive", true, "import subdirectories")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ruiji import [flags] <dir>")
		os.Exit(1)
	}
	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fail("Import", err)
	}
	format := parseFormat(*outputFormat)
	report, err := cli.NewClient(*serverURL).Import(context.Background(), dir, *recursive)
	if err != nil {
		fail("Import", err)
	}
	_ = cli.WriteReport(os.Stdout, report, format)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := parseFormat(*outputFormat)
	status, err := cli.NewClient(*serverURL).Status(context.Background())
	if err != nil {
		fail("Status", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fail("Output", err)
	}
}

func printUsage() {
	fmt.Println(`ruiji - Vector search for your records

Usage:
  ruiji server [flags]                  Start the HTTP server
  ruiji save [flags] <type> <file>      Save the records in a JSON or YAML file
  ruiji search [flags] <type> <query>   Find records similar to a query
  ruiji ask [flags] <type> <question>   Answer a question from the most relevant records
  ruiji reembed [flags] <type>          Recompute the vectors of every record of a type
  ruiji import [flags] <dir>            Import a directory of record files
  ruiji status [flags]                  Show record types, counts and providers
  ruiji version                         Show version
  ruiji help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/ruiji/config.yaml)
  --debug            Enable debug logging

Client Flags (all other commands):
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text, compact (search only), or json

Search Flags:
  --limit int            Number of results
  --where field=value    Condition on the results (repeatable)
  --distance             Return distances and drop distant results
  --max-distance float   Distance cutoff used with --distance

Ask Flags:
  --k int            Number of records used as context
  --stream           Print the answer as it is generated (default: true)

Import Flags:
  --recursive        Import subdirectories (default: true)

Examples:
  ruiji server
  ruiji save recipes curry.yaml
  ruiji search recipes "green curry"
  ruiji search --where cuisine=thai --limit 3 recipes coconut
  ruiji ask recipes how long should I simmer the beans
  ruiji reembed recipes
  ruiji import ./fixtures
  ruiji status --output json`)
}
