// Package timeouts provides centralized timeout values for roster operations.
//
// Handlers and background loops wrap store calls with context.WithTimeout
// using these values so limits are consistent and adjustable at startup.
//
//   - Ping: health checks
//   - Read: single roster loads and lookups
//   - Commit: a grouped roster write (transaction + audit record)
//   - Scan: one delta poll or one push-stream scan across all tracked kinds
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultRead   = 5 * time.Second
	DefaultCommit = 15 * time.Second
	DefaultScan   = 5 * time.Second
)

var mu sync.RWMutex

var (
	ping   = DefaultPing
	read   = DefaultRead
	commit = DefaultCommit
	scan   = DefaultScan
)

func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

func Read() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return read
}

func Commit() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return commit
}

// Scan bounds a single change scan. It should stay well below the push
// interval so a slow store cannot stack scans behind each other.
func Scan() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return scan
}

// Config holds timeout overrides. Zero values keep the current setting.
type Config struct {
	Ping   time.Duration
	Read   time.Duration
	Commit time.Duration
	Scan   time.Duration
}

// Configure applies overrides. Call during startup before serving requests.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Read > 0 {
		read = cfg.Read
	}
	if cfg.Commit > 0 {
		commit = cfg.Commit
	}
	if cfg.Scan > 0 {
		scan = cfg.Scan
	}
}

// Reset restores defaults. Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	read = DefaultRead
	commit = DefaultCommit
	scan = DefaultScan
}

// Current returns the active configuration, for startup logging.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Read: read, Commit: commit, Scan: scan}
}

// WithTimeout creates a context with timeout whose cancel func logs a warning
// when the deadline was the reason the operation ended.
//
//	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Commit(), h.Log, "pool to squad")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
