package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-registration/internal/logger"

	"github.com/stretchr/testify/assert"
)

type fakeExpirer struct {
	mu      sync.Mutex
	batches []int
	err     error
	limits  []int
}

func (f *fakeExpirer) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if len(f.batches) == 0 {
		return 0, f.err
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func TestSweepOnce_DrainsFullBatches(t *testing.T) {
	exp := &fakeExpirer{batches: []int{2, 2, 1}}
	w := NewExpirySweeper(exp, time.Minute, 2, logger.NewNop())

	assert.Equal(t, 5, w.SweepOnce(context.Background()))
	assert.Equal(t, []int{2, 2, 2}, exp.limits)
}

func TestSweepOnce_StopsOnError(t *testing.T) {
	exp := &fakeExpirer{batches: []int{2}, err: errors.New("db gone")}
	w := NewExpirySweeper(exp, time.Minute, 2, logger.NewNop())

	assert.Equal(t, 2, w.SweepOnce(context.Background()))
	assert.Len(t, exp.limits, 2)
}

type countingRelay struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRelay) RelayOnce(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 0, nil
}

func (c *countingRelay) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRelayWorker_RunsUntilCancelled(t *testing.T) {
	relay := &countingRelay{}
	w := NewRelayWorker(relay, 5*time.Millisecond, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return relay.Calls() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerDisabledWithoutInterval(t *testing.T) {
	relay := &countingRelay{}
	NewRelayWorker(relay, 0, logger.NewNop()).Start(context.Background())
	assert.Zero(t, relay.Calls())
}
