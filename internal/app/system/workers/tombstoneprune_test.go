package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
	n       int64
}

func (f *fakePruner) PruneTombstones(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestTombstonePrune_CutoffIsNowMinusRetention(t *testing.T) {
	p := &fakePruner{n: 3}
	w := NewTombstonePrune(p, zap.NewNop(), time.Hour, 24*time.Hour)
	fixed := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if got := w.Prune(); got != 3 {
		t.Errorf("Prune = %d, want 3", got)
	}
	if want := fixed.Add(-24 * time.Hour); !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoffs[0], want)
	}
}

func TestTombstonePrune_ErrorIsLogged(t *testing.T) {
	p := &fakePruner{err: errors.New("boom")}
	w := NewTombstonePrune(p, zap.NewNop(), time.Hour, time.Hour)
	if got := w.Prune(); got != 0 {
		t.Errorf("Prune = %d, want 0 on error", got)
	}
}

func TestTombstonePrune_StartStop(t *testing.T) {
	p := &fakePruner{}
	w := NewTombstonePrune(p, zap.NewNop(), 5*time.Millisecond, time.Hour)
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop()

	if p.calls() == 0 {
		t.Fatal("worker never ran")
	}
	after := p.calls()
	time.Sleep(20 * time.Millisecond)
	if p.calls() != after {
		t.Error("worker kept running after Stop")
	}
}
