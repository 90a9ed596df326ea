// internal/app/bootstrap/background.go
package bootstrap

import (
	"context"
	"sync"
)

// background owns goroutines started by Startup and stopped by Shutdown.
// Hooks receive DBDeps by value, so DBDeps carries a pointer to it.
type background struct {
	mu     sync.Mutex
	cancel []context.CancelFunc
	stops  []func()
	wg     sync.WaitGroup
}

// Go runs fn until Stop. The lifecycle context only bounds startup, so fn
// gets its own cancellable context.
func (b *background) Go(fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = append(b.cancel, cancel)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx)
	}()
}

// OnStop registers fn to run during Stop, for workers with their own
// Start/Stop lifecycle.
func (b *background) OnStop(fn func()) {
	b.mu.Lock()
	b.stops = append(b.stops, fn)
	b.mu.Unlock()
}

// Stop cancels every goroutine, runs the stop hooks and waits.
func (b *background) Stop() {
	b.mu.Lock()
	for _, c := range b.cancel {
		c()
	}
	stops := b.stops
	b.cancel, b.stops = nil, nil
	b.mu.Unlock()

	for _, fn := range stops {
		fn()
	}
	b.wg.Wait()
}
