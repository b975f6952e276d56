package worker

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/logger"
)

type OutboxRelay interface {
	RelayOnce(ctx context.Context) (int, error)
}

// RelayWorker drains the notification outbox on an interval.
type RelayWorker struct {
	relay    OutboxRelay
	interval time.Duration
	logger   *logger.Logger
}

func NewRelayWorker(relay OutboxRelay, interval time.Duration, log *logger.Logger) *RelayWorker {
	return &RelayWorker{relay: relay, interval: interval, logger: log}
}

// Start blocks until ctx is cancelled.
func (w *RelayWorker) Start(ctx context.Context) {
	every(ctx, "outbox relay", w.interval, w.logger, func(ctx context.Context) {
		if _, err := w.relay.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("WORKER", fmt.Sprintf("Outbox relay failed: %v", err))
		}
	})
}
