// Package worker runs the engine's background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/logger"
)

// every runs fn once immediately and then on each tick until ctx is done.
func every(ctx context.Context, name string, interval time.Duration, log *logger.Logger, fn func(ctx context.Context)) {
	if interval <= 0 {
		log.Warn("WORKER", fmt.Sprintf("%s disabled (interval %s)", name, interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("WORKER", fmt.Sprintf("%s started, every %s", name, interval))
	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("WORKER", fmt.Sprintf("%s stopped", name))
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
