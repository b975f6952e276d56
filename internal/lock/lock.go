// Package lock serializes work on one event across goroutines and, with the
// Redis implementation, across service instances.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context or the wait timeout expired.
var ErrNotAcquired = errors.New("event lock not acquired")

// Release gives the lock back. It is safe to call more than once.
type Release func()

// Locker takes a per-event lock.
type Locker interface {
	Lock(ctx context.Context, eventID string) (Release, error)
}
