// Package janitor enforces retention: on a fixed interval it deletes audit
// rows and ledger entries older than their configured windows. A zero window
// keeps rows forever.
package janitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tollkeep/tollkeep/internal/config"
)

// Pruner deletes rows received before a cutoff and reports how many went.
type Pruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor sweeps the delivery log and the idempotency ledger.
type Janitor struct {
	cfg        config.RetentionConfig
	deliveries Pruner
	ledger     Pruner
	logger     *slog.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New creates a Janitor. Either pruner may be nil to skip that store.
func New(cfg config.RetentionConfig, deliveries, ledger Pruner, logger *slog.Logger) *Janitor {
	return &Janitor{
		cfg:        cfg,
		deliveries: deliveries,
		ledger:     ledger,
		logger:     logger.With("component", "janitor"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the sweep loop. With no retention configured it is a no-op.
func (j *Janitor) Start(ctx context.Context) {
	if j.cfg.Deliveries <= 0 && j.cfg.Ledger <= 0 {
		j.logger.Info("retention disabled, janitor idle")
		return
	}

	interval := j.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	j.wg.Add(1)
	go j.sweepLoop(ctx, interval)
}

// Stop gracefully stops the sweep loop.
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

func (j *Janitor) sweepLoop(ctx context.Context, interval time.Duration) {
	defer j.wg.Done()

	// Initial sweep immediately
	j.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep performs a single retention pass. Prune failures are logged and the
// loop continues; the next pass retries.
func (j *Janitor) sweep(ctx context.Context) {
	now := time.Now().UTC()

	if j.cfg.Deliveries > 0 && j.deliveries != nil {
		cutoff := now.Add(-j.cfg.Deliveries)
		n, err := j.deliveries.PruneOlderThan(ctx, cutoff)
		if err != nil {
			j.logger.Error("prune deliveries", "error", err)
		} else if n > 0 {
			j.logger.Info("pruned deliveries", "rows", n, "cutoff", cutoff)
		}
	}

	if j.cfg.Ledger > 0 && j.ledger != nil {
		cutoff := now.Add(-j.cfg.Ledger)
		n, err := j.ledger.PruneOlderThan(ctx, cutoff)
		if err != nil {
			j.logger.Error("prune ledger", "error", err)
		} else if n > 0 {
			j.logger.Info("pruned ledger entries", "rows", n, "cutoff", cutoff)
		}
	}
}
