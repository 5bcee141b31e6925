package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically prunes events older than the retention period
type Reaper struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewReaper creates a reaper. Zero durations fall back to a 24h retention
// scanned every 5 minutes.
func NewReaper(store Store, retention, interval time.Duration, log *zap.Logger) *Reaper {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute // default
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Reaper{
		store:     store,
		retention: retention,
		interval:  interval,
		log:       log,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start starts the reaper goroutine
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap deletes everything older than the retention period once
func (r *Reaper) Reap(ctx context.Context) int {
	cutoff := r.now().Add(-r.retention)
	removed, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		r.log.Error("Failed to prune poller history", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	if removed > 0 {
		r.log.Debug("Pruned poller history", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed
}

// Stop stops the reaper and waits for a running pass to finish. It must only
// be called after Start.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}
