package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bound on tracked clients before idle entries are swept. Buckets idle
// longer than clientIdleWindow are reclaimed during the sweep.
const (
	maxTrackedClients = 4096
	clientIdleWindow  = time.Hour
)

// ClientLimiter enforces a per-client request budget. Each client gets an
// independent token bucket refilled at the hourly rate; requests beyond the
// bucket are rejected rather than queued, since an HTTP caller should see
// 429 instead of a stalled connection.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   rate.Limit
	burst   int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter builds a limiter allowing requestsPerHour sustained
// requests per client with the given burst. requestsPerHour <= 0 disables
// limiting entirely.
func NewClientLimiter(requestsPerHour, burst int) *ClientLimiter {
	limit := rate.Inf
	if requestsPerHour > 0 {
		limit = rate.Limit(float64(requestsPerHour) / 3600.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		clients: make(map[string]*clientBucket),
		limit:   limit,
		burst:   burst,
	}
}

// Allow reports whether the client may proceed. When the budget is
// exhausted it returns false together with the wait until the next token.
func (l *ClientLimiter) Allow(client string) (bool, time.Duration) {
	if l.limit == rate.Inf {
		return true, 0
	}

	bucket := l.bucket(client)

	res := bucket.Reserve()
	if !res.OK() {
		return false, 0
	}
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

func (l *ClientLimiter) bucket(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.sweepLocked()
		}
		entry = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// sweepLocked drops buckets that have been idle long enough to have fully
// refilled anyway. Caller holds l.mu.
func (l *ClientLimiter) sweepLocked() {
	cutoff := time.Now().Add(-clientIdleWindow)
	for client, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

// clientKey identifies the caller for rate limiting. Proxied deployments
// put the original client first in X-Forwarded-For; otherwise the remote
// address is used without its port.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
