package models

import (
	"time"

	"github.com/uptrace/bun"
)

type NotificationKind string

const (
	NotifyPaymentConfirmationRequested NotificationKind = "payment-confirmation-requested"
	NotifyPaymentVerified              NotificationKind = "payment-verified"
	NotifyPaymentRejected              NotificationKind = "payment-rejected"
	NotifyWaitingListPromoted          NotificationKind = "waiting-list-promoted"
)

// NotificationIntent is an outbox row. It is written in the same transaction
// as the state change and delivered later by the relay.
type NotificationIntent struct {
	bun.BaseModel `bun:"table:notification_outbox"`

	ID          string           `bun:"id,pk" json:"id"`
	Kind        NotificationKind `bun:"kind,notnull" json:"kind"`
	Recipient   string           `bun:"recipient,notnull" json:"recipient"`
	EventID     string           `bun:"event_id,notnull" json:"event_id"`
	Payload     string           `bun:"payload,notnull" json:"payload"`
	CreatedAt   time.Time        `bun:"created_at,notnull" json:"created_at"`
	PublishedAt time.Time        `bun:"published_at,nullzero" json:"published_at,omitempty"`
	Attempts    int              `bun:"attempts,notnull" json:"attempts"`
	LastError   string           `bun:"last_error,nullzero" json:"last_error,omitempty"`
}
