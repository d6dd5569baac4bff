package handlers

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bejimenez/magus/internal/platform/httpx"
	"github.com/bejimenez/magus/internal/platform/requestctx"
)

const (
	defaultLimiterIdle = 10 * time.Minute
	anonymousClientKey = "anonymous"
)

type rateLimiter interface {
	Allow(key string) bool
}

// ClientRateLimiter keeps one token bucket per client key.
type ClientRateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var _ rateLimiter = (*ClientRateLimiter)(nil)

// NewClientRateLimiter allows perMinute requests per client with the given burst. A
// non-positive rate disables limiting and returns nil.
func NewClientRateLimiter(perMinute, burst int, clock func() time.Time) *ClientRateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if clock == nil {
		clock = time.Now
	}
	return &ClientRateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		idle:    defaultLimiterIdle,
		clock:   clock,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow consumes one token for key.
func (l *ClientRateLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.reserve(key) == 0
}

// reserve consumes a token when available and otherwise reports how long until one is.
func (l *ClientRateLimiter) reserve(key string) time.Duration {
	key = strings.TrimSpace(key)
	if key == "" {
		key = anonymousClientKey
	}
	now := l.clock()

	l.mu.Lock()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	if entry.limiter.AllowN(now, 1) {
		return 0
	}
	r := entry.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Minute
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	if delay <= 0 {
		delay = time.Second
	}
	return delay
}

// Prune drops buckets idle for longer than the idle window and returns how many were removed.
func (l *ClientRateLimiter) Prune() int {
	if l == nil {
		return 0
	}
	cutoff := l.clock().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Run prunes idle buckets every interval until ctx is done.
func (l *ClientRateLimiter) Run(ctx context.Context, interval time.Duration) error {
	if l == nil {
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = l.idle
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Middleware rejects requests over the client's budget with 429.
func (l *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wait := l.reserve(clientKey(r)); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if id := requestctx.ClientID(r.Context()); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
