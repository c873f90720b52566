package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// mockRetryProvider scripts a sequence of errors followed by success so
// tests can drive the retry loop deterministically.
type mockRetryProvider struct {
	name     string
	errs     []error // consumed one per call; nil entry means success
	calls    int
	embedDim int
}

func (m *mockRetryProvider) Name() string { return m.name }

func (m *mockRetryProvider) nextErr() error {
	var err error
	if m.calls < len(m.errs) {
		err = m.errs[m.calls]
	}
	m.calls++
	return err
}

func (m *mockRetryProvider) Complete(_ context.Context, _ *Prompt, _ *RequestOptions) (*Response, error) {
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	return &Response{Content: "ok", InputTokens: 10, OutputTokens: 20}, nil
}

func (m *mockRetryProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if err := m.nextErr(); err != nil {
		return nil, err
	}
	dim := m.embedDim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, dim)
	}
	return out, nil
}

func fastRetryConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("expected 3 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 1*time.Second {
		t.Errorf("expected 1 second retry delay, got %v", cfg.RetryDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected 30 second max delay, got %v", cfg.MaxDelay)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("expected 2 minute timeout, got %v", cfg.Timeout)
	}
}

func TestNewRetryProvider_NilConfig(t *testing.T) {
	inner := &mockRetryProvider{name: "test"}
	retry := NewRetryProvider(inner, nil)

	if retry.config == nil {
		t.Fatal("expected config to be set")
	}
	if retry.config.MaxRetries != 3 {
		t.Errorf("expected default 3 retries, got %d", retry.config.MaxRetries)
	}
}

func TestRetryProvider_Name(t *testing.T) {
	inner := &mockRetryProvider{name: "test-provider"}
	retry := NewRetryProvider(inner, nil)

	if retry.Name() != "test-provider" {
		t.Errorf("expected 'test-provider', got %s", retry.Name())
	}
}

func TestRetryProvider_Complete_SucceedsFirstTry(t *testing.T) {
	inner := &mockRetryProvider{name: "test"}
	retry := NewRetryProvider(inner, fastRetryConfig(3))

	resp, err := retry.Complete(context.Background(), UserPrompt("", "hi"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("expected 'ok', got %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RetriesTransientError(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errs: []error{
			errors.New("503 Service Unavailable"),
			errors.New("429 Too Many Requests"),
			nil,
		},
	}
	retry := NewRetryProvider(inner, fastRetryConfig(3))

	resp, err := retry.Complete(context.Background(), UserPrompt("", "hi"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("expected non-nil response")
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_NonRetryableStops(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errs: []error{errors.New("401 Unauthorized")},
	}
	retry := NewRetryProvider(inner, fastRetryConfig(3))

	_, err := retry.Complete(context.Background(), UserPrompt("", "hi"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("expected non-retryable wrap, got: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_MaxRetriesExceeded(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errs: []error{
			errors.New("500 Internal Server Error"),
			errors.New("500 Internal Server Error"),
			errors.New("500 Internal Server Error"),
		},
	}
	retry := NewRetryProvider(inner, fastRetryConfig(2))

	_, err := retry.Complete(context.Background(), UserPrompt("", "hi"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries (2) exceeded") {
		t.Errorf("expected max-retries error, got: %v", err)
	}
	if inner.calls != 3 { // initial try + 2 retries
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_ContextCancelled(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errs: []error{
			errors.New("503 Service Unavailable"),
			errors.New("503 Service Unavailable"),
		},
	}
	cfg := fastRetryConfig(5)
	cfg.RetryDelay = time.Hour // force the backoff select to see cancellation
	retry := NewRetryProvider(inner, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := retry.Complete(ctx, UserPrompt("", "hi"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", inner.calls)
	}
}

func TestRetryProvider_Embed_RetriesTransientError(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errs: []error{errors.New("502 Bad Gateway"), nil},
	}
	retry := NewRetryProvider(inner, fastRetryConfig(3))

	vectors, err := retry.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	retry := NewRetryProvider(&mockRetryProvider{name: "test"}, &RetryConfig{
		MaxRetries: 10,
		RetryDelay: 1 * time.Second,
		MaxDelay:   5 * time.Second,
		Timeout:    time.Minute,
	})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // capped
		{8, 5 * time.Second}, // still capped
	}
	for _, tc := range cases {
		if got := retry.backoffDelay(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

type timeoutNetError struct{ timeout bool }

func (e *timeoutNetError) Error() string   { return "net failure" }
func (e *timeoutNetError) Timeout() bool   { return e.timeout }
func (e *timeoutNetError) Temporary() bool { return e.timeout }

var _ net.Error = (*timeoutNetError)(nil)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context cancelled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped cancel", fmt.Errorf("call failed: %w", context.Canceled), false},
		{"net timeout", &timeoutNetError{timeout: true}, true},
		{"net non-timeout", &timeoutNetError{timeout: false}, false},
		{"rate limited", errors.New("openai /chat/completions: 429 Too Many Requests: slow down"), true},
		{"daily token budget", errors.New("429 Too Many Requests: tokens per day limit reached"), false},
		{"daily token budget short", errors.New("429: TPD exceeded"), false},
		{"server error", errors.New("500 Internal Server Error"), true},
		{"bad gateway", errors.New("502 Bad Gateway"), true},
		{"unavailable", errors.New("503 Service Unavailable"), true},
		{"gateway timeout", errors.New("504 Gateway Timeout"), true},
		{"bad request", errors.New("400 Bad Request"), false},
		{"unauthorized", errors.New("401 Unauthorized"), false},
		{"forbidden", errors.New("403 Forbidden"), false},
		{"not found", errors.New("404 Not Found"), false},
		{"unknown", errors.New("connection reset by peer"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryable(tc.err); got != tc.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestWrapWithRetry(t *testing.T) {
	inner := &mockRetryProvider{name: "inner"}

	p := WrapWithRetry(inner, ProviderConfig{MaxRetries: 7, RetryDelay: 2 * time.Second})
	retry, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("expected *RetryProvider, got %T", p)
	}
	if retry.config.MaxRetries != 7 {
		t.Errorf("expected 7 retries, got %d", retry.config.MaxRetries)
	}
	if retry.config.RetryDelay != 2*time.Second {
		t.Errorf("expected 2s delay, got %v", retry.config.RetryDelay)
	}
	if retry.config.Timeout != 2*time.Minute {
		t.Errorf("expected default 2m timeout, got %v", retry.config.Timeout)
	}
}

func TestWrapWithRetry_NilProvider(t *testing.T) {
	if p := WrapWithRetry(nil, ProviderConfig{MaxRetries: 3}); p != nil {
		t.Fatalf("expected nil, got %T", p)
	}
}
