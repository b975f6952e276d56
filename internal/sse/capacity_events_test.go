package sse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitReachesSubscribersOfTheEvent(t *testing.T) {
	e := NewCapacityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := e.SubscribeToEvent(ctx, "ev-1")
	b := e.SubscribeToEvent(ctx, "ev-2")
	assert.Equal(t, 1, e.ClientCount("ev-1"))

	e.Emit("ev-1")

	select {
	case c := <-a:
		assert.Equal(t, "ev-1", c.EventID)
	case <-time.After(time.Second):
		t.Fatal("subscriber of ev-1 got nothing")
	}
	select {
	case <-b:
		t.Fatal("subscriber of ev-2 must not be notified")
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	e := NewCapacityEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.SubscribeToEvent(ctx, "ev-1")
	for i := 0; i < 5; i++ {
		e.Emit("ev-1")
	}
	<-ch
	select {
	case <-ch:
		t.Fatal("buffered changes should coalesce")
	default:
	}
}

func TestUnsubscribeOnCancel(t *testing.T) {
	e := NewCapacityEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.SubscribeToEvent(ctx, "ev-1")
	cancel()

	require.Eventually(t, func() bool { return e.ClientCount("ev-1") == 0 }, time.Second, 10*time.Millisecond)
	_, open := <-ch
	assert.False(t, open)
}
