package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ingest.ChunkSize != 1000 {
		t.Errorf("expected chunk_size 1000, got %d", cfg.Ingest.ChunkSize)
	}
	if cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("expected chunk_overlap 200, got %d", cfg.Ingest.ChunkOverlap)
	}
	if cfg.Vector.Index != "solidity-analyzer-v1" {
		t.Errorf("expected default index name, got %q", cfg.Vector.Index)
	}
	if cfg.Vector.Dimension != 1536 {
		t.Errorf("expected dimension 1536, got %d", cfg.Vector.Dimension)
	}
	if cfg.Vector.TopK != 5 {
		t.Errorf("expected top_k 5, got %d", cfg.Vector.TopK)
	}
	if cfg.Vector.Backend != "qdrant" {
		t.Errorf("expected default backend qdrant, got %q", cfg.Vector.Backend)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected 15s shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Ingest.MaxFileBytes != 10*1024*1024 {
		t.Errorf("expected 10MB file limit, got %d", cfg.Ingest.MaxFileBytes)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soliscan.yaml")
	content := `
vector:
  backend: memory
  index: test-index
  dimension: 8
ingest:
  chunk_size: 400
  chunk_overlap: 50
server:
  shutdown_timeout: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vector.Backend != "memory" {
		t.Errorf("expected backend memory, got %q", cfg.Vector.Backend)
	}
	if cfg.Vector.Index != "test-index" {
		t.Errorf("expected index test-index, got %q", cfg.Vector.Index)
	}
	if cfg.Vector.Dimension != 8 {
		t.Errorf("expected dimension 8, got %d", cfg.Vector.Dimension)
	}
	if cfg.Ingest.ChunkSize != 400 || cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("expected 400/50 chunking, got %d/%d", cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected 30s shutdown timeout, got %v", cfg.Server.ShutdownTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Vector.TopK != 5 {
		t.Errorf("expected default top_k 5, got %d", cfg.Vector.TopK)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SOLISCAN_VECTOR_INDEX", "env-index")
	t.Setenv("SOLISCAN_INGEST_CHUNK_SIZE", "500")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Vector.Index != "env-index" {
		t.Errorf("expected env-index, got %q", cfg.Vector.Index)
	}
	if cfg.Ingest.ChunkSize != 500 {
		t.Errorf("expected chunk_size 500, got %d", cfg.Ingest.ChunkSize)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("SOLISCAN_INGEST_CHUNK_OVERLAP", "5000") // >= chunk_size

	_, err := Load("")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }, true},
		{"negative chunk size", func(c *Config) { c.Ingest.ChunkSize = -1 }, true},
		{"zero overlap", func(c *Config) { c.Ingest.ChunkOverlap = 0 }, true},
		{"overlap equals size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize }, true},
		{"overlap exceeds size", func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize + 1 }, true},
		{"zero file limit", func(c *Config) { c.Ingest.MaxFileBytes = 0 }, true},
		{"unknown backend", func(c *Config) { c.Vector.Backend = "chroma" }, true},
		{"memory backend", func(c *Config) { c.Vector.Backend = "memory" }, false},
		{"pinecone backend", func(c *Config) { c.Vector.Backend = "pinecone" }, false},
		{"zero dimension", func(c *Config) { c.Vector.Dimension = 0 }, true},
		{"zero top_k", func(c *Config) { c.Vector.TopK = 0 }, true},
		{"empty index", func(c *Config) { c.Vector.Index = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("expected ErrInvalid, got: %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWarnings_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = ""

	found := false
	for _, w := range cfg.Warnings() {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestWarnings_NoneProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Provider = "none"
	cfg.LLM.APIKey = ""

	for _, w := range cfg.Warnings() {
		if strings.Contains(w, "llm.api_key") {
			t.Error("'none' provider should not warn about missing api_key")
		}
	}
}

func TestWarnings_Temperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.LLM.Provider = "none"
			cfg.LLM.Temperature = tt.temp

			hasWarn := false
			for _, w := range cfg.Warnings() {
				if strings.Contains(w, "temperature") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, hasWarn, tt.want)
			}
		})
	}
}

func TestWarnings_PineconeWithoutKey(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.Backend = "pinecone"
	cfg.Vector.APIKey = ""

	found := false
	for _, w := range cfg.Warnings() {
		if strings.Contains(w, "pinecone") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about missing pinecone api_key")
	}
}
