package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds everything needed to construct an LLM provider.
type ProviderConfig struct {
	Provider   string // "openai", "anthropic", "groq", "ollama", "none"
	APIKey     string
	Model      string
	BaseURL    string // override for self-hosted / OpenAI-compatible endpoints
	EmbedModel string // embedding model (OpenAI-compatible providers only)

	Timeout    time.Duration // per-request timeout (default: 2 minutes)
	MaxRetries int           // retry attempts on transient failures (default: 3)
	RetryDelay time.Duration // initial backoff delay (default: 1s)
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory creates Provider instances from config. Constructors are
// registered by the binaries, keeping this package free of import cycles
// with the concrete clients.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config, wrapped with retry logic when
// timeout or retries are configured. Returns nil (no error) when the
// provider is empty or "none": commands that need neither embeddings nor
// completions run without one.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (registered: %v)", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}

	return provider, nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// KnownProviders maps provider presets to their default base URLs. Any
// OpenAI-compatible service (vLLM, Together, DeepSeek, ...) works through
// the "openai" provider with a custom base_url.
var KnownProviders = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"anthropic": "https://api.anthropic.com/v1",
	"groq":      "https://api.groq.com/openai/v1",
	"ollama":    "http://localhost:11434/v1",
}
