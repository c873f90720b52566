package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for LLM calls.
type RetryConfig struct {
	MaxRetries int           // retry attempts after the first try (0 = no retries)
	RetryDelay time.Duration // initial delay between retries
	MaxDelay   time.Duration // cap for the exponential backoff
	Timeout    time.Duration // per-attempt timeout
}

// DefaultRetryConfig returns the defaults used when nothing is configured.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryProvider wraps a Provider with per-attempt timeouts and exponential
// backoff on transient failures. Embedding batches during ingestion hit
// rate limits routinely, so both call paths go through the same loop.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string {
	return r.inner.Name()
}

// Complete sends a prompt with timeout and retry handling.
func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	var resp *Response
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var callErr error
		resp, callErr = r.inner.Complete(attemptCtx, prompt, opts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Embed requests embeddings with timeout and retry handling.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var callErr error
		vectors, callErr = r.inner.Embed(attemptCtx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// attempt runs call up to 1+MaxRetries times, sleeping with exponential
// backoff between tries. Non-retryable errors and parent-context
// cancellation end the loop immediately.
func (r *RetryProvider) attempt(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for try := 0; try <= r.config.MaxRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoffDelay(try)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// backoffDelay doubles the configured delay per attempt, capped at MaxDelay.
func (r *RetryProvider) backoffDelay(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.config.MaxDelay {
			return r.config.MaxDelay
		}
	}
	return delay
}

// isRetryable classifies provider failures. The providers surface HTTP
// status lines inside error strings, so classification is textual.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Caller cancelled; retrying would be wrong.
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Attempt timed out; the next attempt may succeed.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := err.Error()

	// 429: retryable unless it is a daily-budget limit, which no amount of
	// backoff inside one run will clear.
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		if strings.Contains(msg, "tokens per day") || strings.Contains(msg, "TPD") {
			return false
		}
		return true
	}

	// Server-side failures are worth retrying.
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}

	// Remaining client errors are not.
	for _, code := range []string{"400", "401", "403", "404"} {
		if strings.Contains(msg, code) {
			return false
		}
	}

	// Unknown failure modes default to retry; embedding batches are cheap
	// to repeat relative to losing a whole ingestion run.
	return true
}

// WrapWithRetry wraps a provider using the retry fields of a ProviderConfig.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 && cfg.Timeout == 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}

	return NewRetryProvider(provider, &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		MaxDelay:   30 * time.Second,
		Timeout:    timeout,
	})
}
