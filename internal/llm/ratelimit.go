package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds client-side call rates so batch ingestion stays
// under provider quotas.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits total prompt+completion tokens per minute
	// (0 = unlimited). Only completion calls report usage; embedding calls
	// count against the request limit alone.
	TokensPerMinute int
	// BurstSize allows short bursts above the steady request rate.
	BurstSize int
}

// DefaultRateLimitConfig is conservative enough for free-tier cloud APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider throttles calls to the inner provider with token
// buckets. A nil limiter means that dimension is unlimited.
type RateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	p := &RateLimitProvider{inner: inner}
	if config.RequestsPerMinute > 0 {
		burst := config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		p.requests = rate.NewLimiter(rate.Limit(config.RequestsPerMinute)/60, burst)
	}
	if config.TokensPerMinute > 0 {
		p.tokens = rate.NewLimiter(rate.Limit(config.TokensPerMinute)/60, config.TokensPerMinute)
	}
	return p
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Complete blocks until the rate limits allow a call, then delegates.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.consumeTokens(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed blocks until the request limit allows a call, then delegates.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if r.tokens != nil {
		if err := r.tokens.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// consumeTokens charges actual usage against the token budget after the
// fact; usage is only known once the response arrives. The pre-call wait
// already charged one token.
func (r *RateLimitProvider) consumeTokens(used int) {
	if r.tokens == nil || used <= 1 {
		return
	}
	n := used - 1
	if n > r.tokens.Burst() {
		n = r.tokens.Burst()
	}
	r.tokens.ReserveN(time.Now(), n)
}

// WithRateLimit wraps a provider with rate limiting. Nil-safe.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
