package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid marks configuration that cannot produce a working pipeline.
// Load surfaces it at startup so operations never run against a
// half-configured service.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Server   ServerConfig   `mapstructure:"server"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`
}

// LLMConfig covers both call paths: Model for the audit chat side,
// EmbedModel for the ingestion side.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	EmbedModel  string  `mapstructure:"embed_model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// Client-side throttling for batch ingestion (0 = unlimited).
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
}

type VectorConfig struct {
	Backend   string `mapstructure:"backend"` // "qdrant", "pinecone" or "memory"
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	APIKey    string `mapstructure:"api_key"` // Pinecone only
	Index     string `mapstructure:"index"`
	Dimension int    `mapstructure:"dimension"`
	TopK      int    `mapstructure:"top_k"`
	Cloud     string `mapstructure:"cloud"`  // Pinecone serverless placement
	Region    string `mapstructure:"region"` // Pinecone serverless placement
}

type IngestConfig struct {
	ChunkSize    int   `mapstructure:"chunk_size"`
	ChunkOverlap int   `mapstructure:"chunk_overlap"`
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
}

type GraphConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	RequestsPerHour int           `mapstructure:"requests_per_hour"`
	Burst           int           `mapstructure:"burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TraceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// AuditConfig controls the audit trail. Path takes a file path or
// "stdout"/"stderr"; only a file-backed trail can be read back with the
// audit command.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// knownBackends are the vector store implementations the binaries can wire.
var knownBackends = map[string]bool{
	"qdrant":   true,
	"pinecone": true,
	"memory":   true,
}

// Validate checks the rules that make the pipeline unrunnable. Every
// violation wraps ErrInvalid so callers can classify with errors.Is.
func (c *Config) Validate() error {
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: ingest.chunk_size must be positive, got %d", ErrInvalid, c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap <= 0 {
		return fmt.Errorf("%w: ingest.chunk_overlap must be positive, got %d", ErrInvalid, c.Ingest.ChunkOverlap)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			ErrInvalid, c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.MaxFileBytes <= 0 {
		return fmt.Errorf("%w: ingest.max_file_bytes must be positive, got %d", ErrInvalid, c.Ingest.MaxFileBytes)
	}
	if !knownBackends[c.Vector.Backend] {
		return fmt.Errorf("%w: unknown vector.backend %q (want qdrant, pinecone or memory)", ErrInvalid, c.Vector.Backend)
	}
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("%w: vector.dimension must be positive, got %d", ErrInvalid, c.Vector.Dimension)
	}
	if c.Vector.TopK <= 0 {
		return fmt.Errorf("%w: vector.top_k must be positive, got %d", ErrInvalid, c.Vector.TopK)
	}
	if c.Vector.Index == "" {
		return fmt.Errorf("%w: vector.index must not be empty", ErrInvalid)
	}
	return nil
}

// Warnings reports configuration that loads but probably won't do what the
// operator wants.
func (c *Config) Warnings() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but llm.api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}
	if c.Vector.Backend == "pinecone" && c.Vector.APIKey == "" {
		warnings = append(warnings, "vector.backend is 'pinecone' but vector.api_key is empty")
	}
	if c.Graph.Enabled && c.Graph.URI == "" {
		warnings = append(warnings, "graph.enabled is set but graph.uri is empty")
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.embed_model", "text-embedding-ada-002")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.tokens_per_minute", 0)

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.index", "solidity-analyzer-v1")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.top_k", 5)
	v.SetDefault("vector.cloud", "aws")
	v.SetDefault("vector.region", "us-east-1")

	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 200)
	v.SetDefault("ingest.max_file_bytes", 10*1024*1024)

	v.SetDefault("graph.enabled", false)
	v.SetDefault("graph.uri", "bolt://localhost:7687")
	v.SetDefault("graph.username", "neo4j")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.requests_per_hour", 100)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "soliscan-ingestion")

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.endpoint", "localhost:4317")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "stdout")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from an optional YAML file and the environment.
// Every key can be overridden with a SOLISCAN_-prefixed variable
// (e.g. vector.index -> SOLISCAN_VECTOR_INDEX). An empty path runs on
// defaults and environment alone.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SOLISCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, warning := range cfg.Warnings() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	return &cfg, nil
}
