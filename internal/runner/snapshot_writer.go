package runner

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unhackeddev/nfury/internal/domain"
)

// snapshotWriter persists every Nth sample off the worker goroutines. The
// queue is bounded and lossy: a slow store drops snapshots instead of
// stalling the engine. Telemetry loss here is acceptable; run aggregates
// are computed from the engine's own accumulator, not from snapshots.
type snapshotWriter struct {
	store SnapshotStore
	token string
	ch    chan domain.MetricSample
	done  chan struct{}
	seen  atomic.Int64
}

func newSnapshotWriter(store SnapshotStore, token string) *snapshotWriter {
	w := &snapshotWriter{
		store: store,
		token: token,
		ch:    make(chan domain.MetricSample, snapshotQueueSize),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// offer counts the sample and enqueues every snapshotEvery-th one.
func (w *snapshotWriter) offer(sample domain.MetricSample) {
	if w.seen.Add(1)%snapshotEvery != 0 {
		return
	}
	select {
	case w.ch <- sample:
	default:
		slog.Warn("snapshot queue full, dropping snapshot", "run_token", w.token)
	}
}

// close stops intake and waits for queued snapshots to be written, so the
// persisted timeline ends before the run's terminal state is stored.
func (w *snapshotWriter) close() {
	close(w.ch)
	<-w.done
}

func (w *snapshotWriter) loop() {
	defer close(w.done)
	for sample := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.store.AppendSnapshot(ctx, w.token, sample); err != nil {
			slog.Warn("persist snapshot", "run_token", w.token, "error", err)
		}
		cancel()
	}
}
