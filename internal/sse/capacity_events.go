package sse

import (
	"context"
	"sync"
	"time"
)

// Change tells subscribers that an event's registrations moved.
type Change struct {
	EventID string    `json:"event_id"`
	At      time.Time `json:"at"`
}

// CapacityEmitter fans capacity changes out to SSE clients per event.
type CapacityEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan Change
	now     func() time.Time
}

func NewCapacityEmitter() *CapacityEmitter {
	return &CapacityEmitter{
		clients: make(map[string][]chan Change),
		now:     time.Now,
	}
}

// SubscribeToEvent returns a channel of changes for eventID. The channel is
// closed once ctx is done.
func (e *CapacityEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan Change {
	ch := make(chan Change, 1)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// Emit notifies every subscriber of eventID. A client that has not consumed
// the previous change is skipped; it re-reads the current state anyway.
func (e *CapacityEmitter) Emit(eventID string) {
	change := Change{EventID: eventID, At: e.now()}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.clients[eventID] {
		select {
		case ch <- change:
		default:
		}
	}
}

func (e *CapacityEmitter) remove(eventID string, ch chan Change) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients subscribed to an event
func (e *CapacityEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
