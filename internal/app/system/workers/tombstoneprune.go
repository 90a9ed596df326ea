// internal/app/system/workers/tombstoneprune.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes tombstones older than a cutoff. Both store backends
// implement it.
type Pruner interface {
	PruneTombstones(ctx context.Context, cutoff time.Time) (int64, error)
}

// TombstonePrune is a background worker that bounds the deletion feed.
type TombstonePrune struct {
	store     Pruner
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewTombstonePrune creates a new prune worker.
//
// Parameters:
//   - store: the tombstone store
//   - logger: zap logger for logging
//   - interval: how often to prune (e.g., 1 hour)
//   - retention: how long a tombstone stays visible to pollers (e.g., 30 days)
func NewTombstonePrune(store Pruner, logger *zap.Logger, interval, retention time.Duration) *TombstonePrune {
	return &TombstonePrune{
		store:     store,
		log:       logger,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background prune loop.
func (w *TombstonePrune) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("tombstone prune worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// more than once.
func (w *TombstonePrune) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("tombstone prune worker stopped")
	})
}

func (w *TombstonePrune) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Prune()
		}
	}
}

// Prune runs one pass and returns how many tombstones were removed.
func (w *TombstonePrune) Prune() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := w.store.PruneTombstones(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.log.Error("failed to prune tombstones", zap.Error(err))
		return 0
	}
	if count > 0 {
		w.log.Info("pruned tombstones", zap.Int64("count", count))
	}
	return count
}
