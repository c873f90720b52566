package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig configures the file-based secrets provider.
// WARNING: This provider is for development/testing only. Do not use in production.
type FileConfig struct {
	// Path is the path to the secrets file (JSON format)
	Path string
	// CreateIfMissing creates the file if it doesn't exist
	CreateIfMissing bool
}

// FileProvider reads secrets from a JSON file.
// WARNING: This is for development only. Use Vault or env vars in production.
type FileProvider struct {
	path string
	mu   sync.RWMutex
	data map[string]string
}

// NewFileProvider creates a file-based secrets provider.
func NewFileProvider(config *FileConfig) (*FileProvider, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("file path required")
	}

	p := &FileProvider{
		path: config.Path,
		data: make(map[string]string),
	}

	err := p.load()
	switch {
	case err == nil:
	case os.IsNotExist(err) && config.CreateIfMissing:
		if err := p.flush(); err != nil {
			return nil, fmt.Errorf("create secrets file: %w", err)
		}
	case os.IsNotExist(err):
		// Missing file with CreateIfMissing off starts empty; the first
		// Set will create it.
	default:
		return nil, fmt.Errorf("load secrets file: %w", err)
	}

	return p, nil
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return val, nil
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.data[key] = value
	return p.flush()
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.data, key)
	return p.flush()
}

// Reload re-reads secrets from the file, discarding in-memory state.
func (p *FileProvider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *FileProvider) load() error {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &p.data)
}

// flush writes the current map back with owner-only permissions.
func (p *FileProvider) flush() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	return os.WriteFile(p.path, raw, 0600)
}
