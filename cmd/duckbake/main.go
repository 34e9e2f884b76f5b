// Package main is the duckbake command line entry point. It runs the HTTP
// daemon (serve) and a set of one-shot commands that wire the same components
// directly, without going through the HTTP API. The one-shot commands assume
// no daemon is holding the registry and keyword index locks; the exception is
// cancel, which talks to a running daemon over HTTP because the cancellation
// flag lives in the daemon's process.
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

	"go.uber.org/zap"

	"github.com/wes/duckbake/internal/chat"
	"github.com/wes/duckbake/internal/chunker"
	"github.com/wes/duckbake/internal/cli"
	"github.com/wes/duckbake/internal/config"
	"github.com/wes/duckbake/internal/documents"
	"github.com/wes/duckbake/internal/embedding"
	"github.com/wes/duckbake/internal/extract"
	"github.com/wes/duckbake/internal/importer"
	"github.com/wes/duckbake/internal/keyword"
	"github.com/wes/duckbake/internal/models"
	"github.com/wes/duckbake/internal/registry"
	"github.com/wes/duckbake/internal/search"
	"github.com/wes/duckbake/internal/server"
	"github.com/wes/duckbake/internal/storage"
	"github.com/wes/duckbake/internal/vectorize"
	"github.com/wes/duckbake/internal/watcher"
	"github.com/wes/duckbake/pkg/utils"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "project":
		runProject()
	case "import":
		runImport()
	case "upload":
		runUpload()
	case "vectorize":
		runVectorize()
	case "cancel":
		runCancel()
	case "search":
		runSearch()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "models":
		runModels()
	case "version", "--version", "-v":
		fmt.Printf("duckbake version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".duckbake", "config.yaml")
}

// loadConfig resolves the effective configuration. An explicit path must load
// cleanly. The default path falls back to config.yaml in the working directory
// first, then to the default path itself, then to built-in defaults; the
// returned path is empty when no file was found.
func loadConfig(path string) (*config.Config, string, error) {
	if path != defaultConfigPath() {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, "config.yaml")
		if _, statErr := os.Stat(local); statErr == nil {
			cfg, loadErr := config.Load(local)
			if loadErr != nil {
				return nil, "", loadErr
			}
			return cfg, local, nil
		}
	}
	if _, err := os.Stat(path); err == nil {
		cfg, loadErr := config.Load(path)
		if loadErr != nil {
			return nil, "", loadErr
		}
		return cfg, path, nil
	}
	return config.Default(), "", nil
}

// initializeComponents builds every service the daemon and the one-shot
// commands share. The returned cleanup closes them in reverse order.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*server.Components, func(), error) {
	if err := os.MkdirAll(cfg.DatabasesDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	reg, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open project registry: %w", err)
	}

	kw, err := keyword.NewBleveIndex(cfg.KeywordIndexPath())
	if err != nil {
		reg.Close()
		return nil, nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	stores := storage.NewCache()
	client := embedding.NewClient(cfg.Ollama, logger)
	hub := vectorize.NewHub()

	comps := &server.Components{
		Config:     cfg,
		Registry:   reg,
		Stores:     stores,
		Ollama:     client,
		Vectorizer: vectorize.New(client, hub, vectorize.NewCancellationSet(), cfg.Vectorize, logger),
		Hub:        hub,
		Engine:     search.NewEngine(client, kw, cfg.Search, logger),
		Documents:  documents.NewService(extract.New(), chunker.New(cfg.Chunker.MaxChunkSize, cfg.Chunker.MinChunkSize), kw, logger),
		Importer:   importer.New(logger),
		Keyword:    kw,
		Chat:       chat.NewRelay(cfg.Ollama, logger),
		Logger:     logger,
	}

	cleanup := func() {
		stores.CloseAll()
		kw.Close()
		reg.Close()
	}
	return comps, cleanup, nil
}

// setup loads configuration and builds components for a one-shot command.
func setup(configPath string) (*config.Config, *server.Components, func()) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	comps, cleanup, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	closer := func() {
		cleanup()
		_ = logger.Sync()
	}
	return cfg, comps, closer
}

// resolveProject accepts either a project id or a project name.
func resolveProject(reg *registry.Registry, arg string) (*models.Project, error) {
	if p, err := reg.Get(arg); err == nil {
		return p, nil
	}
	if p, err := reg.GetByName(arg); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("project not found: %s", arg)
}

func acquireStore(cfg *config.Config, comps *server.Components, projectArg string) (*models.Project, *storage.Store, error) {
	project, err := resolveProject(comps.Registry, projectArg)
	if err != nil {
		return nil, nil, err
	}
	store, err := comps.Stores.Acquire(project.ID, cfg.DatabasePath(project.ID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open project database: %w", err)
	}
	return project, store, nil
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if resolved == "" {
		// First run: seed a starter config so there is a file to edit.
		seed := defaultConfigPath()
		if err := config.Save(seed, cfg); err != nil {
			logger.Warn("failed to write starter config", zap.String("path", seed), zap.Error(err))
		} else {
			resolved = seed
		}
	}
	logger.Info("starting duckbake",
		zap.String("version", version),
		zap.String("config", resolved),
		zap.String("data_dir", cfg.DataDir))

	comps, cleanup, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer cleanup()

	if cfg.Watch.Enabled {
		inbox := watcher.NewInbox(cfg.InboxRoot(), cfg.Watch.Extensions,
			func(ctx context.Context, projectID, path string) error {
				store, err := comps.Stores.Acquire(projectID, cfg.DatabasePath(projectID))
				if err != nil {
					return err
				}
				_, err = comps.Documents.Upload(ctx, store, projectID, path)
				return err
			},
			logger,
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMillis)*time.Millisecond))

		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := inbox.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()

		projects, err := comps.Registry.List()
		if err != nil {
			logger.Fatal("Failed to list projects", zap.Error(err))
		}
		for _, p := range projects {
			if err := os.MkdirAll(cfg.InboxDir(p.ID), 0o755); err != nil {
				logger.Warn("failed to create inbox folder", zap.String("project", p.ID), zap.Error(err))
				continue
			}
			if err := inbox.AddProject(p.ID); err != nil {
				logger.Warn("failed to watch inbox folder", zap.String("project", p.ID), zap.Error(err))
			}
		}
		comps.Inbox = inbox
	}

	srv := server.NewServer(comps)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()
	logger.Info("duckbake listening",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func runProject() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: duckbake project <create|list|delete> [flags] [args]")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "create":
		fs := flag.NewFlagSet("project create", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		description := fs.String("description", "", "project description")
		_ = fs.Parse(argsReorder(os.Args[3:]))
		if fs.NArg() < 1 {
			fmt.Println("Usage: duckbake project create [flags] <name>")
			os.Exit(1)
		}

		cfg, comps, closer := setup(*configPath)
		defer closer()

		project, err := comps.Registry.Create(fs.Arg(0), *description)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
			os.Exit(1)
		}
		if err := os.MkdirAll(cfg.InboxDir(project.ID), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to create inbox folder: %v\n", err)
		}
		fmt.Printf("Created project %s (%s)\n", project.Name, project.ID)

	case "list":
		fs := flag.NewFlagSet("project list", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		output := fs.String("output", "text", "output format: text, compact or json")
		_ = fs.Parse(os.Args[3:])

		format, err := cli.ParseFormat(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		_, comps, closer := setup(*configPath)
		defer closer()

		projects, err := comps.Registry.List()
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteProjects(os.Stdout, projects, format); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "delete":
		fs := flag.NewFlagSet("project delete", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		_ = fs.Parse(argsReorder(os.Args[3:]))
		if fs.NArg() < 1 {
			fmt.Println("Usage: duckbake project delete [flags] <name-or-id>")
			os.Exit(1)
		}

		cfg, comps, closer := setup(*configPath)
		defer closer()

		project, err := resolveProject(comps.Registry, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if err := comps.Stores.Release(project.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
		if err := comps.Registry.Delete(project.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		if err := comps.Keyword.DeleteProject(context.Background(), project.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to clear keyword entries: %v\n", err)
		}
		dbPath := cfg.DatabasePath(project.ID)
		for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: failed to remove %s: %v\n", path, err)
			}
		}
		if err := os.RemoveAll(cfg.InboxDir(project.ID)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to remove inbox folder: %v\n", err)
		}
		fmt.Printf("Deleted project %s\n", project.Name)

	default:
		fmt.Printf("Unknown project subcommand: %s\n", os.Args[2])
		os.Exit(1)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	project := fs.String("project", "", "project name or id (required)")
	table := fs.String("table", "", "destination table name (required)")
	mode := fs.String("mode", "create", "import mode: create, replace or append")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 || *project == "" || *table == "" {
		fmt.Println("Usage: duckbake import -project <name> -table <table> [-mode create|replace|append] <file>")
		os.Exit(1)
	}

	m, err := importer.ParseMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, comps, closer := setup(*configPath)
	defer closer()

	_, store, err := acquireStore(cfg, comps, *project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	result, err := comps.Importer.Import(context.Background(), store, *table, fs.Arg(0), m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d rows into %s (%d columns)\n", result.RowsImported, result.Table, result.ColumnCount)
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	project := fs.String("project", "", "project name or id (required)")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 || *project == "" {
		fmt.Println("Usage: duckbake upload -project <name> <file>")
		os.Exit(1)
	}

	cfg, comps, closer := setup(*configPath)
	defer closer()

	p, store, err := acquireStore(cfg, comps, *project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	doc, err := comps.Documents.Upload(context.Background(), store, p.ID, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %s (%s), %d chunks\n", doc.Filename, doc.ID, doc.ChunkCount)
}

func runVectorize() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: duckbake vectorize <table|document> [flags] [args]")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "table":
		fs := flag.NewFlagSet("vectorize table", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		project := fs.String("project", "", "project name or id (required)")
		columnsFlag := fs.String("columns", "", "comma-separated text columns to embed (required)")
		_ = fs.Parse(argsReorder(os.Args[3:]))
		columns := parseColumns(*columnsFlag)
		if fs.NArg() < 1 || *project == "" || len(columns) == 0 {
			fmt.Println("Usage: duckbake vectorize table -project <name> -columns <col,col> <table>")
			os.Exit(1)
		}

		cfg, comps, closer := setup(*configPath)
		defer closer()

		_, store, err := acquireStore(cfg, comps, *project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		table := fs.Arg(0)
		runJob(comps, table, func(ctx context.Context) error {
			return comps.Vectorizer.VectorizeTable(ctx, store, table, columns)
		})

	case "document":
		fs := flag.NewFlagSet("vectorize document", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		project := fs.String("project", "", "project name or id (required)")
		_ = fs.Parse(argsReorder(os.Args[3:]))
		if fs.NArg() < 1 || *project == "" {
			fmt.Println("Usage: duckbake vectorize document -project <name> <document-id>")
			os.Exit(1)
		}

		cfg, comps, closer := setup(*configPath)
		defer closer()

		_, store, err := acquireStore(cfg, comps, *project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		docID := fs.Arg(0)
		runJob(comps, docID, func(ctx context.Context) error {
			return comps.Vectorizer.VectorizeDocument(ctx, store, docID)
		})

	default:
		fmt.Printf("Unknown vectorize subcommand: %s\n", os.Args[2])
		os.Exit(1)
	}
}

// runJob runs one vectorization job in the foreground, printing progress
// events until the job reaches a terminal state. Interrupt requests
// cooperative cancellation; batches embedded so far stay persisted.
func runJob(comps *server.Components, sourceID string, job func(context.Context) error) {
	events, unsubscribe := comps.Hub.Subscribe()
	defer unsubscribe()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() { done <- job(context.Background()) }()

	for {
		select {
		case ev := <-events:
			if ev.SourceID != sourceID {
				continue
			}
			fmt.Printf("\r%-70s", cli.ProgressLine(ev))
		case <-sigChan:
			fmt.Printf("\r%-70s", sourceID+": cancelling, finishing current batch")
			comps.Vectorizer.Cancel(sourceID)
		case err := <-done:
		drain:
			for {
				select {
				case ev := <-events:
					if ev.SourceID == sourceID {
						fmt.Printf("\r%-70s", cli.ProgressLine(ev))
					}
				default:
					break drain
				}
			}
			fmt.Println()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Vectorization failed: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}
}

func runCancel() {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "daemon base URL")
	project := fs.String("project", "", "project name or id (required)")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() < 1 || *project == "" {
		fmt.Println("Usage: duckbake cancel -project <name> <table-or-document-id>")
		os.Exit(1)
	}

	projects, err := fetchProjects(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reach daemon: %v\n", err)
		os.Exit(1)
	}
	p, ok := matchProject(projects, *project)
	if !ok {
		fmt.Fprintf(os.Stderr, "project not found: %s\n", *project)
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]string{"source_id": fs.Arg(0)})
	url := fmt.Sprintf("%s/api/v1/projects/%s/vectorize/cancel", strings.TrimRight(*serverURL, "/"), p.ID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cancel request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "server returned %d: %s\n", resp.StatusCode, strings.TrimSpace(string(msg)))
		os.Exit(1)
	}
	fmt.Printf("Cancellation requested for %s\n", fs.Arg(0))
}

// fetchProjects lists projects from a running daemon.
func fetchProjects(serverURL string) ([]models.Project, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/projects")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Projects []models.Project `json:"projects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode project list: %w", err)
	}
	return out.Projects, nil
}

// matchProject finds a project by id first, then by name.
func matchProject(projects []models.Project, arg string) (*models.Project, bool) {
	for i := range projects {
		if projects[i].ID == arg {
			return &projects[i], true
		}
	}
	for i := range projects {
		if projects[i].Name == arg {
			return &projects[i], true
		}
	}
	return nil, false
}

func runSearch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: duckbake search <table|documents> [flags] <query>")
		os.Exit(1)
	}

	switch os.Args[2] {
	case "table":
		fs := flag.NewFlagSet("search table", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		project := fs.String("project", "", "project name or id (required)")
		table := fs.String("table", "", "table to search (required)")
		limit := fs.Int("limit", 0, "maximum results (0 uses the configured default)")
		output := fs.String("output", "text", "output format: text, compact or json")
		_ = fs.Parse(argsReorder(os.Args[3:]))

		query := joinArgs(fs.Args())
		if query == "" || *project == "" || *table == "" {
			fmt.Println("Usage: duckbake search table -project <name> -table <table> <query>")
			os.Exit(1)
		}
		format, err := cli.ParseFormat(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		cfg, comps, closer := setup(*configPath)
		defer closer()

		_, store, err := acquireStore(cfg, comps, *project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		results, err := comps.Engine.SearchTable(context.Background(), store, *table, query, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteTableResults(os.Stdout, *table, results, format); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "documents":
		fs := flag.NewFlagSet("search documents", flag.ExitOnError)
		configPath := fs.String("config", defaultConfigPath(), "config file path")
		project := fs.String("project", "", "project name or id (required)")
		limit := fs.Int("limit", 0, "maximum results (0 uses the configured default)")
		semantic := fs.Bool("semantic", true, "run semantic search over chunk embeddings")
		keywordOn := fs.Bool("keyword", true, "run keyword search over filenames and content")
		output := fs.String("output", "text", "output format: text, compact or json")
		_ = fs.Parse(argsReorder(os.Args[3:]))

		query := joinArgs(fs.Args())
		if query == "" || *project == "" {
			fmt.Println("Usage: duckbake search documents -project <name> <query>")
			os.Exit(1)
		}
		format, err := cli.ParseFormat(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		cfg, comps, closer := setup(*configPath)
		defer closer()

		p, store, err := acquireStore(cfg, comps, *project)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		resp, err := comps.Engine.SearchDocuments(context.Background(), store, p.ID, query, *limit,
			search.Options{Semantic: *semantic, Keyword: *keywordOn})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteDocumentResults(os.Stdout, resp, format); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown search subcommand: %s\n", os.Args[2])
		os.Exit(1)
	}
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	project := fs.String("project", "", "project name or id (required)")
	output := fs.String("output", "text", "output format: text, compact or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	sql := joinArgs(fs.Args())
	if sql == "" || *project == "" {
		fmt.Println("Usage: duckbake query -project <name> <sql>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, comps, closer := setup(*configPath)
	defer closer()

	_, store, err := acquireStore(cfg, comps, *project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if storage.IsReadOnly(sql) {
		result, err := store.Query(context.Background(), sql)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteQueryResult(os.Stdout, result, format); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	affected, err := store.Exec(context.Background(), sql)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK, %d rows affected\n", affected)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Status stays off the registry and index so it works while the daemon
	// holds their locks.
	client := embedding.NewClient(cfg.Ollama, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connected, ollamaVersion := client.Available(ctx)
	installed := 0
	if connected {
		if list, err := client.ListModels(ctx); err == nil {
			installed = len(list)
		}
	}

	if *output == "json" {
		out := map[string]any{
			"connected":        connected,
			"ollama_version":   ollamaVersion,
			"embedding_model":  cfg.Ollama.EmbeddingModel,
			"chat_model":       cfg.Ollama.ChatModel,
			"models_installed": installed,
			"data_dir":         cfg.DataDir,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Printf("connected:        %t\n", connected)
	if ollamaVersion != "" {
		fmt.Printf("ollama_version:   %s\n", ollamaVersion)
	}
	fmt.Printf("embedding_model:  %s\n", cfg.Ollama.EmbeddingModel)
	fmt.Printf("chat_model:       %s\n", cfg.Ollama.ChatModel)
	fmt.Printf("models_installed: %d\n", installed)
	fmt.Printf("data_dir:         %s\n", cfg.DataDir)
}

func runModels() {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath(), "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	client := embedding.NewClient(cfg.Ollama, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list models: %v\n", err)
		os.Exit(1)
	}

	if *output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No models installed.")
		return
	}
	for _, m := range list {
		fmt.Printf("%-40s %12d\n", m.Name, m.Size)
	}
}

// argsReorder moves flag arguments before positional arguments so flags can
// be written after the query text. The standard flag package stops parsing
// at the first positional argument otherwise.
func argsReorder(args []string) []string {
	var flags, positional []string
	i := 0
	for i < len(args) {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && !isBoolFlag(arg) {
				flags = append(flags, args[i+1])
				i += 2
				continue
			}
			i++
			continue
		}
		positional = append(positional, arg)
		i++
	}
	return append(flags, positional...)
}

// isBoolFlag reports whether a flag takes no value argument.
func isBoolFlag(arg string) bool {
	name := strings.TrimLeft(arg, "-")
	if eq := strings.IndexByte(name, '='); eq >= 0 {
		return true
	}
	switch name {
	case "debug", "semantic", "keyword":
		return true
	}
	return false
}

// joinArgs joins the remaining positional arguments into one query string.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseColumns splits a comma-separated column list, dropping empty entries.
func parseColumns(s string) []string {
	var cols []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cols = append(cols, trimmed)
		}
	}
	return cols
}

func printUsage() {
	fmt.Printf(`duckbake %s - local vectorization and search for tabular and document data

Usage:
  duckbake <command> [flags] [args]

Commands:
  serve                         Start the HTTP daemon (API on %s)
  project create <name>         Create a project
  project list                  List projects
  project delete <name-or-id>   Delete a project and its data
  import <file>                 Import a CSV, TSV, JSON or XLSX file as a table
  upload <file>                 Upload a document (pdf, docx, xlsx, md, txt, ...)
  vectorize table <table>       Embed table rows, printing progress until done
  vectorize document <doc-id>   Embed document chunks
  cancel <source-id>            Cancel a running job on the daemon
  search table <query>          Semantic search over a vectorized table
  search documents <query>      Semantic and keyword search over documents
  query <sql>                   Run SQL against a project database
  status                        Show Ollama connectivity and configuration
  models                        List models installed in Ollama
  version                       Print the version

Common flags:
  -config <path>      Config file (default %s)
  -project <name>     Project name or id
  -output <format>    text, compact or json

Examples:
  duckbake serve
  duckbake project create sales
  duckbake import -project sales -table orders data/orders.csv
  duckbake vectorize table -project sales -columns product,notes orders
  duckbake search table -project sales -table orders "late delivery refund"
  duckbake upload -project sales reports/q3.pdf
  duckbake search documents -project sales "quarterly revenue"
  duckbake query -project sales "SELECT COUNT(*) FROM orders"

The one-shot commands open the data directory directly and assume the daemon
is stopped; while it runs, use the HTTP API or cancel, which talks to it.
`, version, "http://localhost:8080", defaultConfigPath())
}
