package registration

import (
	"context"
	"time"

	"ms-registration/internal/models"
)

// Identity is who a request is for: a user id, or a guest identified by
// e-mail and name.
type Identity struct {
	UserID     string
	GuestEmail string
	GuestName  string
}

// Reader is the read side of the store. Getters return an error matching
// ErrNotFound when the row does not exist.
type Reader interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetPendingPayment(ctx context.Context, id string) (*models.PendingPayment, error)
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	GetWaitingListEntry(ctx context.Context, id string) (*models.WaitingListEntry, error)

	// ListWaitingList returns the event's queue ordered by position.
	ListWaitingList(ctx context.Context, eventID string) ([]models.WaitingListEntry, error)
	// ListEventRegistrations returns every registration row of the event.
	ListEventRegistrations(ctx context.Context, eventID string) ([]models.Registration, error)
	// ListCapacityPayments returns the event's payments in AWAITING_PAYMENT,
	// PAYMENT_RECEIVED or PROCESSED.
	ListCapacityPayments(ctx context.Context, eventID string) ([]models.PendingPayment, error)
	ListGroupMembers(ctx context.Context, leaderID string) ([]models.Registration, error)

	// FindActiveRequest returns the resource type ("registration",
	// "pending_payment", "waiting_list") already held by the identity for
	// the event, or "" if there is none.
	FindActiveRequest(ctx context.Context, eventID string, who Identity) (string, error)
	VariableSymbolExists(ctx context.Context, symbol string) (bool, error)
	MaxWaitingListPosition(ctx context.Context, eventID string) (int, error)
}

// Tx is a store transaction.
type Tx interface {
	Reader

	// LockEvent reads the event and holds a row lock on it until the
	// transaction ends.
	LockEvent(ctx context.Context, eventID string) (*models.Event, error)

	// InsertPendingPayment fails with ErrConcurrencyConflict when the
	// variable symbol collides with a concurrently inserted payment.
	InsertPendingPayment(ctx context.Context, p *models.PendingPayment) error
	UpdatePendingPayment(ctx context.Context, p *models.PendingPayment, columns ...string) error
	// InsertRegistration fails with ErrDuplicateRegistration on the
	// (user, event) or (guest e-mail, guest name, event) constraints.
	InsertRegistration(ctx context.Context, r *models.Registration) error
	UpdateRegistration(ctx context.Context, r *models.Registration, columns ...string) error
	InsertWaitingListEntry(ctx context.Context, w *models.WaitingListEntry) error
	DeleteWaitingListEntry(ctx context.Context, id string) error
	// ShiftWaitingListAfter moves every entry behind position one place up.
	ShiftWaitingListAfter(ctx context.Context, eventID string, position int) error

	InsertAudit(ctx context.Context, a *models.AuditRecord) error
	InsertNotification(ctx context.Context, n *models.NotificationIntent) error
}

// Store runs transactions and serves reads outside of them.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// ListExpiredPayments returns AWAITING_PAYMENT payments whose deadline
	// passed before now, oldest deadline first.
	ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]models.PendingPayment, error)
}
