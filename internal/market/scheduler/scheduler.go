// Package scheduler triggers pipeline runs on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"cryptoetl/internal/market/model"

	"go.uber.org/zap"
)

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context, saveHistory bool) model.RunSummary

type Ticker struct {
	Interval    time.Duration
	SaveHistory bool
	// Align delays the second run to the next UTC multiple of Interval
	// (e.g. the top of the minute for a 1m interval).
	Align  bool
	Run    RunFunc
	Logger *zap.Logger
}

// Start runs once immediately, then every Interval until ctx is done. The
// returned channel closes after the last run has returned.
func (t *Ticker) Start(ctx context.Context) <-chan struct{} {
	log := t.Logger
	if log == nil {
		log = zap.NewNop()
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		// Run immediately once at startup
		t.runOnce(ctx, log)

		if t.Align {
			now := time.Now().UTC()
			next := now.Truncate(t.Interval).Add(t.Interval)
			if !sleep(ctx, time.Until(next)) {
				return
			}
			t.runOnce(ctx, log)
		}

		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("scheduler stopped")
				return
			case <-ticker.C:
				t.runOnce(ctx, log)
			}
		}
	}()

	return done
}

func (t *Ticker) runOnce(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	s := t.Run(ctx, t.SaveHistory)
	log.Info("scheduled run finished",
		zap.String("run_id", s.RunID),
		zap.String("status", string(s.Status)),
		zap.Int("transformed", s.Transformed))
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
