package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/soliscan/soliscan/internal/admission"
	"github.com/soliscan/soliscan/internal/auditor"
	"github.com/soliscan/soliscan/internal/config"
	"github.com/soliscan/soliscan/internal/contractgraph"
	"github.com/soliscan/soliscan/internal/graph/neo4j"
	"github.com/soliscan/soliscan/internal/ingest"
	"github.com/soliscan/soliscan/internal/llm"
	"github.com/soliscan/soliscan/internal/llm/anthropic"
	"github.com/soliscan/soliscan/internal/llm/openai"
	"github.com/soliscan/soliscan/internal/observability"
	"github.com/soliscan/soliscan/internal/secrets"
	"github.com/soliscan/soliscan/internal/server"
	"github.com/soliscan/soliscan/internal/solidity"
	temporalmod "github.com/soliscan/soliscan/internal/temporal"
	"github.com/soliscan/soliscan/internal/tui"
	"github.com/soliscan/soliscan/internal/vector"
	"github.com/soliscan/soliscan/internal/vector/memory"
	"github.com/soliscan/soliscan/internal/vector/pinecone"
	"github.com/soliscan/soliscan/internal/vector/qdrant"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "soliscan",
		Short: "Solidity contract indexing and audit platform",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the contract analysis HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var (
		ingestJSON     bool
		ingestWatch    bool
		ingestTemporal bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index contract files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ingestWatch && ingestTemporal {
				return fmt.Errorf("--watch cannot be combined with --temporal")
			}
			if ingestTemporal {
				return runTemporalIngest(configPath, args, ingestJSON)
			}
			return runIngest(configPath, args, ingestJSON, ingestWatch)
		},
	}
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "Output the ingestion report as JSON")
	ingestCmd.Flags().BoolVar(&ingestWatch, "watch", false, "Keep watching the paths and index changes")
	ingestCmd.Flags().BoolVar(&ingestTemporal, "temporal", false, "Submit the corpus to the Temporal worker instead of ingesting locally")

	var (
		searchTopK int
		searchJSON bool
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search indexed contracts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, strings.Join(args, " "), searchTopK, searchJSON)
		},
	}
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "Number of results (0 = configured default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")

	var statsJSON bool
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show vector index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(configPath, statsJSON)
		},
	}
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit assistant and audit trail operations",
	}

	var chatNoContext bool
	auditChatCmd := &cobra.Command{
		Use:   "chat <message>...",
		Short: "Ask the audit assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditChat(configPath, strings.Join(args, " "), !chatNoContext)
		},
	}
	auditChatCmd.Flags().BoolVar(&chatNoContext, "no-context", false, "Answer without retrieving indexed contracts")

	auditAnalyzeCmd := &cobra.Command{
		Use:   "analyze <contract.sol>",
		Short: "Run a full security analysis of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditAnalyze(configPath, args[0])
		},
	}

	auditImproveCmd := &cobra.Command{
		Use:   "improve <contract.sol>",
		Short: "Suggest improvements for a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditImprove(configPath, args[0])
		},
	}

	auditExplainCmd := &cobra.Command{
		Use:   "explain <vulnerability>...",
		Short: "Explain a vulnerability class, grounded in indexed contracts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditExplain(configPath, strings.Join(args, " "))
		},
	}

	var (
		trailPath string
		trailType string
		trailLast int
		trailJSON bool
	)
	auditTrailCmd := &cobra.Command{
		Use:   "trail",
		Short: "Show the audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditTrail(configPath, trailPath, trailType, trailLast, trailJSON)
		},
	}
	auditTrailCmd.Flags().StringVar(&trailPath, "path", "", "Audit trail file (default: audit.path from config)")
	auditTrailCmd.Flags().StringVar(&trailType, "type", "", "Only show events of this type (e.g. ingest.complete, search, chat)")
	auditTrailCmd.Flags().IntVar(&trailLast, "last", 0, "Only show the last N events")
	auditTrailCmd.Flags().BoolVar(&trailJSON, "json", false, "Output events as JSON")

	auditCmd.AddCommand(auditChatCmd, auditAnalyzeCmd, auditImproveCmd, auditExplainCmd, auditTrailCmd)

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Structural analysis of contract sources",
	}

	var graphFormat string
	graphAnalyzeCmd := &cobra.Command{
		Use:   "analyze <path>...",
		Short: "Build a dependency graph from local contract files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphAnalyze(args, graphFormat)
		},
	}
	graphAnalyzeCmd.Flags().StringVar(&graphFormat, "format", "stats", "Output format: stats, dot, mermaid or json")

	var sourcesJSON bool
	graphSourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "List indexed sources from the graph store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphSources(configPath, sourcesJSON)
		},
	}
	graphSourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "Output sources as JSON")

	graphImportersCmd := &cobra.Command{
		Use:   "importers <import-path>",
		Short: "List sources that import the given path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphImporters(configPath, args[0])
		},
	}

	graphCmd.AddCommand(graphAnalyzeCmd, graphSourcesCmd, graphImportersCmd)

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive search over the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(configPath)
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in soliscan.yaml or via environment:")
			fmt.Println("  SOLISCAN_LLM_PROVIDER=openai")
			fmt.Println("  SOLISCAN_LLM_API_KEY=sk-...")
			fmt.Println("  SOLISCAN_LLM_EMBED_MODEL=text-embedding-3-small")
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, searchCmd, statsCmd, auditCmd, graphCmd, tuiCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// pipeline bundles the wired ingestion stack shared by the commands.
type pipeline struct {
	cfg      *config.Config
	provider llm.Provider
	store    vector.Store
	index    *vector.Gateway
	svc      *ingest.Service
	graph    *neo4j.Repository
	tracer   *observability.TracerProvider
}

// close releases the pipeline's connections. One-shot commands call it on
// the way out; serve hands the same work to shutdown hooks instead.
func (p *pipeline) close(ctx context.Context) {
	if p.graph != nil {
		if err := p.graph.Close(ctx); err != nil {
			slog.Warn("closing graph store", "error", err)
		}
	}
	if err := p.store.Close(); err != nil {
		slog.Warn("closing vector store", "error", err)
	}
	if err := p.tracer.Shutdown(ctx); err != nil {
		slog.Warn("flushing traces", "error", err)
	}
	_ = observability.Audit().Close()
}

// bootstrap loads config and stands up logging, the audit trail and
// tracing. Everything after it can assume slog and the audit logger work.
func bootstrap(ctx context.Context, configPath string) (*config.Config, *observability.TracerProvider, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	setupLogging(cfg.Log)

	if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Path,
	}); err != nil {
		return nil, nil, fmt.Errorf("audit logger: %w", err)
	}

	tracer, err := observability.InitTracing(ctx, tracingConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing: %w", err)
	}

	resolveSecrets(ctx, cfg)
	return cfg, tracer, nil
}

// buildPipeline wires the full ingestion stack from config: embedding
// provider, vector store, gateway, chunker, service and the optional
// graph recorder.
func buildPipeline(ctx context.Context, configPath string) (*pipeline, error) {
	cfg, tracer, err := bootstrap(ctx, configPath)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("an embedding provider is required; set llm.provider or SOLISCAN_LLM_PROVIDER")
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	index := vector.NewGateway(provider, store, cfg.Vector.Dimension)
	if err := index.EnsureIndex(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("provisioning index: %w", err)
	}
	observability.Audit().LogIndexProvision(ctx, cfg.Vector.Index, cfg.Vector.Dimension)

	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("chunker: %w", err)
	}

	svc := ingest.NewService(index, chunker, cfg.Vector.TopK)

	var graphRepo *neo4j.Repository
	if cfg.Graph.Enabled {
		graphRepo, err = neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("graph store: %w", err)
		}
		svc = svc.WithRecorder(graphRepo)
	}

	return &pipeline{
		cfg:      cfg,
		provider: provider,
		store:    store,
		index:    index,
		svc:      svc,
		graph:    graphRepo,
		tracer:   tracer,
	}, nil
}

func buildAuditor(p *pipeline) *auditor.Auditor {
	return auditor.New(p.provider, p.svc).WithIngester(p.svc).WithTopK(p.cfg.Vector.TopK)
}

func runServe(configPath string) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}

	aud := buildAuditor(p)
	checks := admission.DefaultPipeline(p.cfg.Ingest.MaxFileBytes)

	shutdownCfg := server.DefaultShutdownConfig()
	if p.cfg.Server.ShutdownTimeout > 0 {
		shutdownCfg.Timeout = p.cfg.Server.ShutdownTimeout
	}
	gs := server.NewGracefulServer(&server.HealthConfig{Version: version}, shutdownCfg)

	gs.Health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(p.index.DescribeStats))
	gs.Health.RegisterCheck("llm", server.LLMHealthChecker(p.provider.Name(), nil))
	if p.graph != nil {
		gs.Health.RegisterCheck("graph", server.GraphHealthChecker(p.graph.Ping))
	}

	api := server.NewServer(&server.Config{
		Addr:            p.cfg.Server.Addr,
		RequestsPerHour: p.cfg.Server.RequestsPerHour,
		Burst:           p.cfg.Server.Burst,
		MaxUploadBytes:  p.cfg.Ingest.MaxFileBytes,
	}, p.svc, aud, checks, gs.Health)

	gs.AddHook(server.HTTPServerShutdownHook("api-server", api.Stop))
	gs.AddHook(server.TracingShutdownHook(p.tracer.Shutdown))
	gs.AddHook(server.VectorStoreShutdownHook(p.store.Close))
	if p.graph != nil {
		gs.AddHook(server.GraphShutdownHook(p.graph.Close))
	}
	gs.AddHook(server.AuditLoggerShutdownHook(observability.Audit().Close))

	errCh := make(chan error, 1)
	go func() {
		if err := api.Start(); err != nil {
			errCh <- err
		}
	}()

	gs.Shutdown.Start()
	gs.Health.SetReady(true)

	slog.Info("API server started",
		"addr", p.cfg.Server.Addr,
		"vector_backend", p.cfg.Vector.Backend,
		"provider", p.provider.Name(),
	)

	select {
	case err := <-errCh:
		gs.Shutdown.Shutdown()
		gs.Wait()
		return fmt.Errorf("api server: %w", err)
	case <-gs.Shutdown.Done():
		slog.Info("API server stopped")
		return nil
	}
}

func runIngest(configPath string, paths []string, jsonOut, watch bool) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	files, err := collectContractFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 && !watch {
		return fmt.Errorf("no contract files found under %s", strings.Join(paths, ", "))
	}

	checks := admission.DefaultPipeline(p.cfg.Ingest.MaxFileBytes)
	report := ingest.NewReport()

	for _, path := range files {
		ingestOne(ctx, p.svc, checks, report, path, !jsonOut)
	}
	report.Finish()

	if jsonOut {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		report.PrintSummary(os.Stdout)
	}

	if watch {
		return watchAndIngest(ctx, p.svc, checks, paths)
	}
	return nil
}

// ingestOne admits and ingests a single file, folding the outcome into the
// report.
func ingestOne(ctx context.Context, svc *ingest.Service, checks *admission.Pipeline, report *ingest.Report, path string, verbose bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		report.Record(0, ingest.BatchItem{Path: path, Err: err})
		if verbose {
			fmt.Printf("  ! %s: %v\n", path, err)
		}
		return
	}

	if decision := checks.Run(&admission.Submission{Path: path, Content: content}); !decision.Accepted {
		report.RecordRejected(len(content), path, decision.Reason())
		if verbose {
			fmt.Printf("  - %s: %s\n", path, decision.Reason())
		}
		return
	}

	res, err := svc.Ingest(ctx, ingest.Document{Path: path, Text: string(content)})
	report.Record(len(content), ingest.BatchItem{Path: path, Result: res, Err: err})
	if !verbose {
		return
	}
	switch {
	case err != nil:
		fmt.Printf("  ! %s: %v\n", path, err)
	case res.Status == ingest.StatusDuplicate:
		fmt.Printf("  = %s (already indexed)\n", path)
	default:
		fmt.Printf("  + %s (%d chunks)\n", path, res.ChunkCount)
	}
}

// watchAndIngest re-ingests contract files as they appear or change.
// Fingerprint dedup makes redundant events harmless.
func watchAndIngest(ctx context.Context, svc *ingest.Service, checks *admission.Pipeline, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			continue
		}
		// fsnotify does not recurse
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return watcher.Add(p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Println("\nWatching for changes (Ctrl-C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Op.Has(fsnotify.Create) {
					_ = watcher.Add(event.Name)
				}
				continue
			}
			if !admissibleExt(event.Name) {
				continue
			}
			// Editors fire several events per save; let the file settle.
			time.Sleep(100 * time.Millisecond)
			watchIngest(ctx, svc, checks, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-sigCh:
			fmt.Println("\nStopped watching")
			return nil
		}
	}
}

func watchIngest(ctx context.Context, svc *ingest.Service, checks *admission.Pipeline, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("read failed", "path", path, "error", err)
		return
	}
	if decision := checks.Run(&admission.Submission{Path: path, Content: content}); !decision.Accepted {
		slog.Warn("rejected", "path", path, "reason", decision.Reason())
		return
	}
	res, err := svc.Ingest(ctx, ingest.Document{Path: path, Text: string(content)})
	switch {
	case err != nil:
		slog.Error("ingest failed", "path", path, "error", err)
	case res.Status == ingest.StatusDuplicate:
		// Save without changes; nothing to do.
	default:
		fmt.Printf("  + %s (%d chunks)\n", path, res.ChunkCount)
	}
}

func runTemporalIngest(configPath string, paths []string, jsonOut bool) error {
	ctx := context.Background()

	cfg, tracer, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = tracer.Shutdown(ctx)
		_ = observability.Audit().Close()
	}()

	files, err := collectContractFiles(paths)
	if err != nil {
		return err
	}

	checks := admission.DefaultPipeline(cfg.Ingest.MaxFileBytes)
	docs := make([]ingest.Document, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if decision := checks.Run(&admission.Submission{Path: path, Content: content}); !decision.Accepted {
			fmt.Printf("  - %s: %s\n", path, decision.Reason())
			continue
		}
		docs = append(docs, ingest.Document{Path: path, Text: string(content)})
	}
	if len(docs) == 0 {
		return fmt.Errorf("no admissible contract files under %s", strings.Join(paths, ", "))
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	fmt.Printf("Submitting %d documents to task queue %q\n", len(docs), cfg.Temporal.TaskQueue)

	out, err := temporalmod.ExecuteCorpusIngestion(ctx, c, cfg.Temporal.TaskQueue, temporalmod.CorpusIngestionInput{Documents: docs})
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Ingested %d, duplicates %d, failed %d\n", out.Ingested, out.Duplicates, out.Failed)
	for _, oc := range out.Outcomes {
		if oc.Error != "" {
			fmt.Printf("  ! %s: %s\n", oc.Path, oc.Error)
		}
	}
	return nil
}

func runSearch(configPath, query string, topK int, jsonOut bool) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	results, err := p.svc.Search(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOut {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. %s (score %.3f)\n", i+1, r.Metadata["file_path"], r.Score)
		if c := r.Metadata["contracts"]; c != "" {
			fmt.Printf("   contracts: %s\n", c)
		}
		if tags := r.Metadata["security_patterns"]; tags != "" {
			fmt.Printf("   security:  %s\n", tags)
		}
		fmt.Printf("   %s\n\n", snippet(r.Content, 200))
	}
	return nil
}

func runStats(configPath string, jsonOut bool) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	stats, err := p.svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	if jsonOut {
		data, err := json.MarshalIndent(map[string]any{
			"index":     p.cfg.Vector.Index,
			"backend":   p.cfg.Vector.Backend,
			"vectors":   stats.Vectors,
			"dimension": stats.Dimension,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Index:     %s (%s)\n", p.cfg.Vector.Index, p.cfg.Vector.Backend)
	fmt.Printf("Vectors:   %d\n", stats.Vectors)
	fmt.Printf("Dimension: %d\n", stats.Dimension)
	return nil
}

func runAuditChat(configPath, message string, withContext bool) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	res, err := buildAuditor(p).Chat(ctx, message, withContext)
	if err != nil {
		return err
	}

	if res.ContextUsed {
		fmt.Println("[grounded in indexed contracts]")
		fmt.Println()
	}
	fmt.Println(res.Response)
	return nil
}

func runAuditAnalyze(configPath, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ctx := context.Background()
	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	fmt.Printf("Analyzing %s...\n\n", path)
	res, err := buildAuditor(p).AnalyzeContract(ctx, string(content))
	if err != nil {
		return err
	}

	fmt.Println(res.Analysis)
	fmt.Printf("\nContract fingerprint: %s\n", res.ContractHash)
	return nil
}

func runAuditImprove(configPath, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ctx := context.Background()
	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	res, err := buildAuditor(p).SuggestImprovements(ctx, string(content))
	if err != nil {
		return err
	}

	fmt.Println(res.Improvements)
	return nil
}

func runAuditExplain(configPath, vulnerabilityType string) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	res, err := buildAuditor(p).ExplainVulnerability(ctx, vulnerabilityType)
	if err != nil {
		return err
	}

	fmt.Println(res.Explanation)
	return nil
}

func runAuditTrail(configPath, trailPath, eventType string, last int, jsonOut bool) error {
	if trailPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		trailPath = cfg.Audit.Path
	}
	switch trailPath {
	case "", "stdout", "stderr":
		return fmt.Errorf("audit trail is not file-backed; set audit.path to a file (currently %q)", trailPath)
	}

	f, err := os.Open(trailPath)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	events, err := observability.ReadAuditLog(f)
	if err != nil {
		return fmt.Errorf("read audit trail: %w", err)
	}

	if eventType != "" {
		filtered := events[:0]
		for _, ev := range events {
			if string(ev.EventType) == eventType {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if last > 0 && len(events) > last {
		events = events[len(events)-last:]
	}

	if jsonOut {
		data, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(events) == 0 {
		fmt.Println("No audit events.")
		return nil
	}
	for _, ev := range events {
		status := "ok"
		if !ev.Success {
			status = "FAIL"
		}
		fmt.Printf("%s  %-16s %-4s %s\n", ev.Timestamp.Format(time.RFC3339), ev.EventType, status, ev.Message)
		if ev.ErrorDetail != "" {
			fmt.Printf("%41s %s\n", "", ev.ErrorDetail)
		}
	}
	return nil
}

func runGraphAnalyze(paths []string, format string) error {
	files, err := collectContractFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no contract files found under %s", strings.Join(paths, ", "))
	}

	sources := make([]contractgraph.Source, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, contractgraph.Source{
			Path: path,
			Meta: solidity.Extract(string(content)),
		})
	}

	g := contractgraph.Analyze(sources)

	switch format {
	case "dot":
		fmt.Print(contractgraph.ExportDOT(g))
	case "mermaid":
		fmt.Print(contractgraph.ExportMermaid(g))
	case "json":
		data, err := contractgraph.ExportJSON(g)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "stats":
		fmt.Print(contractgraph.FormatStats(g))
	default:
		return fmt.Errorf("unknown format %q (want stats, dot, mermaid or json)", format)
	}
	return nil
}

func runGraphSources(configPath string, jsonOut bool) error {
	ctx := context.Background()

	repo, err := openGraph(ctx, configPath)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	nodes, err := repo.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if jsonOut {
		data, err := json.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(nodes) == 0 {
		fmt.Println("No indexed sources.")
		return nil
	}
	for _, n := range nodes {
		fmt.Printf("%s\n", n.Path)
		fmt.Printf("  fingerprint: %s\n", n.Fingerprint)
		if len(n.Contracts) > 0 {
			fmt.Printf("  contracts:   %s\n", strings.Join(n.Contracts, ", "))
		}
	}
	return nil
}

func runGraphImporters(configPath, importPath string) error {
	ctx := context.Background()

	repo, err := openGraph(ctx, configPath)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	importers, err := repo.QueryImporters(ctx, importPath)
	if err != nil {
		return fmt.Errorf("query importers: %w", err)
	}

	if len(importers) == 0 {
		fmt.Printf("Nothing imports %s\n", importPath)
		return nil
	}
	for _, p := range importers {
		fmt.Println(p)
	}
	return nil
}

// openGraph connects to the graph store configured under graph. in the
// config file.
func openGraph(ctx context.Context, configPath string) (*neo4j.Repository, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	setupLogging(cfg.Log)
	if !cfg.Graph.Enabled {
		return nil, fmt.Errorf("graph store is disabled; set graph.enabled or SOLISCAN_GRAPH_ENABLED")
	}
	resolveSecrets(ctx, cfg)
	return neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
}

func runTUI(configPath string) error {
	ctx := context.Background()

	p, err := buildPipeline(ctx, configPath)
	if err != nil {
		return err
	}
	defer p.close(ctx)

	return tui.Run(p.svc, p.cfg.Vector.TopK)
}

// collectContractFiles expands files and directories into a sorted,
// deduplicated list of candidate contract files. Explicit file arguments
// pass through untouched; admission rejects them later if unsuitable.
func collectContractFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !admissibleExt(p) {
				return nil
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}

func admissibleExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range admission.DefaultExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// snippet flattens whitespace and crops text for single-line display.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n], ' ')
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "..."
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// buildProvider assembles the LLM provider via the factory. A nil provider
// means llm.provider was "none" or empty.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	// All OpenAI-compatible providers
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}

	pc := llm.DefaultProviderConfig()
	pc.Provider = cfg.LLM.Provider
	pc.APIKey = cfg.LLM.APIKey
	pc.Model = cfg.LLM.Model
	pc.BaseURL = cfg.LLM.BaseURL
	pc.EmbedModel = cfg.LLM.EmbedModel

	provider, err := factory.Create(pc)
	if err != nil || provider == nil {
		return provider, err
	}

	rl := llm.DefaultRateLimitConfig()
	if cfg.LLM.RequestsPerMinute > 0 {
		rl.RequestsPerMinute = cfg.LLM.RequestsPerMinute
	}
	if cfg.LLM.TokensPerMinute > 0 {
		rl.TokensPerMinute = cfg.LLM.TokensPerMinute
	}
	return llm.WithRateLimit(provider, rl), nil
}

func buildStore(cfg *config.Config) (vector.Store, error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		return qdrant.New(cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Index)
	case "pinecone":
		return pinecone.New(cfg.Vector.APIKey, cfg.Vector.Index, cfg.Vector.Cloud, cfg.Vector.Region), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

func tracingConfig(cfg *config.Config) *observability.TracingConfig {
	tc := observability.DefaultTracingConfig()
	tc.ServiceVersion = version
	if cfg.Trace.Enabled {
		tc.OTLPEndpoint = cfg.Trace.Endpoint
	}
	return tc
}

// resolveSecrets overlays secret-manager values onto the file config.
// A resolved secret wins over the file value.
func resolveSecrets(ctx context.Context, cfg *config.Config) {
	cfg.LLM.APIKey = secrets.GetOrDefault(ctx, string(secrets.SecretLLMAPIKey), cfg.LLM.APIKey)
	cfg.Vector.APIKey = secrets.GetOrDefault(ctx, string(secrets.SecretIndexAPIKey), cfg.Vector.APIKey)
	cfg.Graph.Password = secrets.GetOrDefault(ctx, string(secrets.SecretGraphPassword), cfg.Graph.Password)
}
