package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/soliscan/soliscan/internal/config"
	"github.com/soliscan/soliscan/internal/graph/neo4j"
	"github.com/soliscan/soliscan/internal/ingest"
	"github.com/soliscan/soliscan/internal/llm"
	"github.com/soliscan/soliscan/internal/llm/anthropic"
	"github.com/soliscan/soliscan/internal/llm/openai"
	"github.com/soliscan/soliscan/internal/observability"
	"github.com/soliscan/soliscan/internal/secrets"
	"github.com/soliscan/soliscan/internal/server"
	temporalmod "github.com/soliscan/soliscan/internal/temporal"
	"github.com/soliscan/soliscan/internal/vector"
	"github.com/soliscan/soliscan/internal/vector/memory"
	"github.com/soliscan/soliscan/internal/vector/pinecone"
	"github.com/soliscan/soliscan/internal/vector/qdrant"

	"github.com/joho/godotenv"
	temporalclient "go.temporal.io/sdk/client"
)

const version = "0.1.0"

// The worker serves liveness/readiness probes on its own port so it can
// share a host with the API server.
const healthAddr = ":8081"

func main() {
	_ = godotenv.Load()

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	setupLogging(cfg.Log)

	ctx := context.Background()

	if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Path,
	}); err != nil {
		log.Fatalf("audit logger: %v", err)
	}

	tracerProvider, err := observability.InitTracing(ctx, tracingConfig(cfg))
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	resolveSecrets(ctx, cfg)

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("creating embedding provider: %v", err)
	}
	if provider == nil {
		log.Fatalf("the ingestion worker needs an embedding provider; set llm.provider")
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}

	index := vector.NewGateway(provider, store, cfg.Vector.Dimension)
	if err := index.EnsureIndex(ctx); err != nil {
		log.Fatalf("provisioning index: %v", err)
	}
	observability.Audit().LogIndexProvision(ctx, cfg.Vector.Index, cfg.Vector.Dimension)

	chunker, err := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		log.Fatalf("chunker: %v", err)
	}

	svc := ingest.NewService(index, chunker, cfg.Vector.TopK)

	var graphRepo *neo4j.Repository
	if cfg.Graph.Enabled {
		graphRepo, err = neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			log.Fatalf("graph store: %v", err)
		}
		svc = svc.WithRecorder(graphRepo)
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{Ingest: svc})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	slog.Info("Worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"namespace", cfg.Temporal.Namespace,
		"vector_backend", cfg.Vector.Backend,
		"provider", provider.Name(),
	)

	shutdownCfg := server.DefaultShutdownConfig()
	if cfg.Server.ShutdownTimeout > 0 {
		shutdownCfg.Timeout = cfg.Server.ShutdownTimeout
	}

	gs := server.NewGracefulServer(&server.HealthConfig{Version: version}, shutdownCfg)

	gs.Health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(index.DescribeStats))
	gs.Health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	gs.Health.RegisterCheck("llm", server.LLMHealthChecker(provider.Name(), nil))
	if graphRepo != nil {
		gs.Health.RegisterCheck("graph", server.GraphHealthChecker(graphRepo.Ping))
	}

	gs.AddHook(server.TemporalWorkerShutdownHook(w.Stop))
	gs.AddHook(server.TracingShutdownHook(tracerProvider.Shutdown))
	gs.AddHook(server.VectorStoreShutdownHook(store.Close))
	if graphRepo != nil {
		gs.AddHook(server.GraphShutdownHook(graphRepo.Close))
	}
	gs.AddHook(server.AuditLoggerShutdownHook(observability.Audit().Close))

	if err := gs.Start(healthAddr); err != nil {
		log.Fatalf("health server: %v", err)
	}
	gs.Wait()

	slog.Info("Worker stopped")
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
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// buildProvider assembles the embedding provider via the factory
// (supports on-prem/no-LLM operation).
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

	// Wire rate limiter before SetDependencies
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
