package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientLimiter_Disabled(t *testing.T) {
	l := NewClientLimiter(0, 10)

	for i := 0; i < 50; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d rejected by disabled limiter", i)
		}
	}
}

func TestClientLimiter_BurstThenReject(t *testing.T) {
	// 1 token/second sustained, burst of 2
	l := NewClientLimiter(3600, 2)

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("burst request %d rejected", i)
		}
	}

	ok, retryAfter := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("expected rejection after burst exhausted")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", retryAfter)
	}
}

func TestClientLimiter_ClientsIndependent(t *testing.T) {
	l := NewClientLimiter(3600, 1)

	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatal("first client rejected")
	}
	if ok, _ := l.Allow("10.0.0.1"); ok {
		t.Fatal("first client should be out of budget")
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Fatal("second client should have its own bucket")
	}
}

func TestClientLimiter_MinimumBurst(t *testing.T) {
	l := NewClientLimiter(3600, 0)

	// Burst below 1 is raised to 1 so the first request always passes
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatal("expected first request to pass")
	}
}

func TestClientKey_RemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.RemoteAddr = "203.0.113.7:52100"

	if got := clientKey(req); got != "203.0.113.7" {
		t.Fatalf("expected host without port, got %q", got)
	}
}

func TestClientKey_XForwardedFor(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"single hop", "198.51.100.4", "198.51.100.4"},
		{"proxy chain", "198.51.100.4, 10.0.0.1, 10.0.0.2", "198.51.100.4"},
		{"padded", "  198.51.100.4  ", "198.51.100.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			req.Header.Set("X-Forwarded-For", tt.header)

			if got := clientKey(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
