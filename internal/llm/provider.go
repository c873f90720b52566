// Package llm abstracts the language-model backends used by soliscan: chat
// completions for the audit assistant and embeddings for the vector index.
package llm

import "context"

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Complete sends a prompt and returns a completion.
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
}

// RequestOptions tunes a single completion call. Nil fields fall back to the
// provider's defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// Response is one completion result. Token counts are zero when the backend
// does not report usage.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// IntPtr builds an option value inline.
func IntPtr(v int) *int { return &v }

// FloatPtr builds an option value inline.
func FloatPtr(v float64) *float64 { return &v }
