package lock

import (
	"context"
	"sync"
)

// Local is an in-process Locker keyed by event id. It is enough for a single
// instance and for tests.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(eventID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[eventID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[eventID] = ch
	}
	return ch
}

func (l *Local) Lock(ctx context.Context, eventID string) (Release, error) {
	ch := l.slot(eventID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrNotAcquired
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}
