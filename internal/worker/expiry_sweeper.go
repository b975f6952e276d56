package worker

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/logger"
)

type PaymentExpirer interface {
	ExpireDue(ctx context.Context, now time.Time, limit int) (int, error)
}

// ExpirySweeper periodically expires pending payments whose deadline has
// passed. Expiry frees capacity, so every sweep may promote from waiting
// lists.
type ExpirySweeper struct {
	expirer  PaymentExpirer
	interval time.Duration
	batch    int
	logger   *logger.Logger
	now      func() time.Time
}

func NewExpirySweeper(expirer PaymentExpirer, interval time.Duration, batch int, log *logger.Logger) *ExpirySweeper {
	if batch <= 0 {
		batch = 100
	}
	return &ExpirySweeper{expirer: expirer, interval: interval, batch: batch, logger: log, now: time.Now}
}

// Start blocks until ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) {
	every(ctx, "expiry sweeper", w.interval, w.logger, func(ctx context.Context) {
		w.SweepOnce(ctx)
	})
}

// SweepOnce drains due payments batch by batch and returns how many were
// expired.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) int {
	total := 0
	for {
		n, err := w.expirer.ExpireDue(ctx, w.now(), w.batch)
		total += n
		if err != nil {
			w.logger.Error("WORKER", fmt.Sprintf("Expiry sweep failed after %d payments: %v", total, err))
			return total
		}
		if n < w.batch || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		w.logger.Info("WORKER", fmt.Sprintf("Expired %d pending payments", total))
	}
	return total
}
