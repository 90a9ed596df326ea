// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KV is a key-value store whose entries expire after a TTL. Limiter state
// lives here rather than in a process-wide map so callers can inject a
// shared or test store.
type KV[V any] interface {
	Get(key string) (V, bool)
	Set(key string, v V, ttl time.Duration)
}

// MemoryKV is an in-process KV. Expired entries are invisible to Get and
// removed by Sweep.
type MemoryKV[V any] struct {
	mu      sync.Mutex
	entries map[string]memEntry[V]
	now     func() time.Time
}

type memEntry[V any] struct {
	v         V
	expiresAt time.Time
}

// NewMemoryKV returns an empty store. now may be nil to use time.Now.
func NewMemoryKV[V any](now func() time.Time) *MemoryKV[V] {
	if now == nil {
		now = time.Now
	}
	return &MemoryKV[V]{entries: make(map[string]memEntry[V]), now: now}
}

func (s *MemoryKV[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.v, true
}

func (s *MemoryKV[V]) Set(key string, v V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry[V]{v: v, expiresAt: s.now().Add(ttl)}
}

// Len reports stored entries, expired ones included until the next Sweep.
func (s *MemoryKV[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryKV[V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (s *MemoryKV[V]) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Limiter is a per-key token bucket. Idle buckets expire from the store
// after ttl and the key starts fresh.
type Limiter struct {
	store KV[*rate.Limiter]
	every rate.Limit
	burst int
	ttl   time.Duration
	mu    sync.Mutex // serializes get-or-create
}

// New creates a limiter allowing perMinute events per key with the given burst.
func New(store KV[*rate.Limiter], perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		store: store,
		every: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		ttl:   2 * time.Minute,
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.store.Get(key)
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
	}
	// Refresh TTL on every touch so active keys never lose their bucket.
	l.store.Set(key, b, l.ttl)
	return b
}

// Allow reports whether an event for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
// onLimited may be nil.
func (l *Limiter) Middleware(log *zap.Logger, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !l.Allow(ip) {
				if onLimited != nil {
					onLimited()
				}
				log.Info("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "60")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from an HTTP request.
// It checks X-Forwarded-For and X-Real-IP headers first (for proxied requests),
// then falls back to RemoteAddr.
func ClientIP(r *http.Request) string {
	// X-Forwarded-For is a comma-separated list; first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
