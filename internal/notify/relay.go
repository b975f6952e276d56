// Package notify delivers notification intents from the outbox table to the
// message broker. Delivery is at-least-once: an intent is marked published
// only after the broker accepted it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type Outbox interface {
	ListUnpublished(ctx context.Context, maxAttempts, limit int) ([]models.NotificationIntent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Message is what consumers of the notification topics receive.
type Message struct {
	ID        string                  `json:"id"`
	Kind      models.NotificationKind `json:"kind"`
	Recipient string                  `json:"recipient"`
	EventID   string                  `json:"event_id"`
	Payload   json.RawMessage         `json:"payload"`
	CreatedAt time.Time               `json:"created_at"`
}

type Relay struct {
	Outbox      Outbox
	Publisher   Publisher
	Logger      *logger.Logger
	TopicPrefix string
	BatchSize   int
	MaxAttempts int
	Now         func() time.Time
}

func NewRelay(outbox Outbox, publisher Publisher, log *logger.Logger, topicPrefix string, batchSize, maxAttempts int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		Outbox:      outbox,
		Publisher:   publisher,
		Logger:      log,
		TopicPrefix: topicPrefix,
		BatchSize:   batchSize,
		MaxAttempts: maxAttempts,
		Now:         time.Now,
	}
}

// RelayOnce publishes one batch and returns how many intents were delivered.
// A failed intent is recorded on its row and retried on a later run; it
// never stops the rest of the batch.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	intents, err := r.Outbox.ListUnpublished(ctx, r.MaxAttempts, r.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("loading outbox: %w", err)
	}

	delivered := 0
	for _, n := range intents {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := r.deliver(ctx, n); err != nil {
			r.Logger.Warn("NOTIFY", fmt.Sprintf("Delivery of %s %s failed (attempt %d): %v", n.Kind, n.ID, n.Attempts+1, err))
			if markErr := r.Outbox.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
				r.Logger.Error("NOTIFY", fmt.Sprintf("Recording failure of %s: %v", n.ID, markErr))
			}
			continue
		}
		if err := r.Outbox.MarkPublished(ctx, n.ID, r.Now()); err != nil {
			// the broker has it; a duplicate on the next run is acceptable
			r.Logger.Error("NOTIFY", fmt.Sprintf("Marking %s published: %v", n.ID, err))
			continue
		}
		delivered++
	}
	if delivered > 0 {
		r.Logger.Info("NOTIFY", fmt.Sprintf("Relayed %d of %d notification intents", delivered, len(intents)))
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, n models.NotificationIntent) error {
	payload := json.RawMessage(n.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(n.Payload)
	}
	value, err := json.Marshal(Message{
		ID:        n.ID,
		Kind:      n.Kind,
		Recipient: n.Recipient,
		EventID:   n.EventID,
		Payload:   payload,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return r.Publisher.Publish(ctx, kafka.TopicFor(r.TopicPrefix, n.Kind), n.EventID, value)
}
