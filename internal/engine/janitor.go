package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger deletes results older than a cutoff. Implemented by
// store.ResultStore.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically removes task results past their retention period.
type Janitor struct {
	store    Purger
	keep     time.Duration
	interval time.Duration
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewJanitor creates a janitor keeping results for keep and sweeping every
// interval.
func NewJanitor(p Purger, keep, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:    p,
		keep:     keep,
		interval: interval,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// PurgeOnce deletes every result created more than keep ago.
func (j *Janitor) PurgeOnce(ctx context.Context) (int64, error) {
	cutoff := j.nowFn().Add(-j.keep)
	n, err := j.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge results before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	purgedTotal.Add(float64(n))
	if n > 0 {
		j.logger.Info("purged expired async results", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run purges once immediately and then on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.PurgeOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("result purge failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
