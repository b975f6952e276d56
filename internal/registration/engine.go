// Package registration is the capacity-and-payment reconciliation engine.
// It decides whether a request is admitted, queued or already known, moves
// pending payments through their lifecycle, maintains the waiting list and
// turns verified payments into registrations.
package registration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/capacity"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// SystemActor is recorded for transitions not triggered by a person.
const SystemActor = "system"

// noDeadline stands in for an unlimited payment deadline.
const noDeadline = 100 * 365 * 24 * time.Hour

type Config struct {
	// IBAN and AccountName end up in the payment instruction.
	IBAN        string
	AccountName string
	// DefaultPaymentTTL applies when a request does not carry its own. A
	// value <= 0 means payments never expire.
	DefaultPaymentTTL time.Duration
	// AmountToleranceMinor is the accepted difference between the reported
	// and expected amount, in minor units.
	AmountToleranceMinor int64
	VariableSymbolDigits int
	MaxSymbolAttempts    int
	// RetryMaxElapsed bounds the time spent retrying concurrency conflicts.
	RetryMaxElapsed time.Duration
	Unit            capacity.Unit
}

func (c *Config) setDefaults() {
	if c.VariableSymbolDigits <= 0 {
		c.VariableSymbolDigits = 10
	}
	if c.MaxSymbolAttempts <= 0 {
		c.MaxSymbolAttempts = 5
	}
	if c.RetryMaxElapsed <= 0 {
		c.RetryMaxElapsed = 5 * time.Second
	}
	if c.AmountToleranceMinor < 0 {
		c.AmountToleranceMinor = 0
	}
}

type Engine struct {
	store   Store
	locker  lock.Locker
	acc     capacity.Accountant
	log     *logger.Logger
	cfg     Config
	now     func() time.Time
	symbols func(digits int) (string, error)
	changed func(eventID string)
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSymbolSource replaces the random variable symbol generator.
func WithSymbolSource(gen func(digits int) (string, error)) Option {
	return func(e *Engine) { e.symbols = gen }
}

// WithChangeHook registers fn to run after every locked mutation of an
// event, including failed ones. Receivers re-read the state they need.
func WithChangeHook(fn func(eventID string)) Option {
	return func(e *Engine) { e.changed = fn }
}

func New(store Store, locker lock.Locker, log *logger.Logger, cfg Config, opts ...Option) *Engine {
	cfg.setDefaults()
	e := &Engine{
		store:   store,
		locker:  locker,
		acc:     capacity.New(cfg.Unit),
		log:     log,
		cfg:     cfg,
		now:     time.Now,
		symbols: utils.GenerateVariableSymbol,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ---------------- LOCKING ----------------

// withEventLock serialises fn against every other mutation of the event,
// across processes when the locker is distributed.
func (e *Engine) withEventLock(ctx context.Context, eventID string, fn func(ctx context.Context) error) error {
	var release lock.Release
	err := e.retry(ctx, func() error {
		r, err := e.locker.Lock(ctx, eventID)
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				return fmt.Errorf("%w: event %s: %v", ErrConcurrencyConflict, eventID, err)
			}
			return err
		}
		release = r
		return nil
	})
	if err != nil {
		return err
	}
	defer release()
	err = fn(ctx)
	if e.changed != nil {
		e.changed(eventID)
	}
	return err
}

// inEventTx runs fn in a transaction holding the event row lock. The event
// is re-read so capacity changes by organisers are always seen.
func (e *Engine) inEventTx(ctx context.Context, eventID string, fn func(ctx context.Context, tx Tx, ev *models.Event) error) error {
	return e.retry(ctx, func() error {
		return e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			ev, err := tx.LockEvent(ctx, eventID)
			if err != nil {
				return err
			}
			return fn(ctx, tx, ev)
		})
	})
}

// retry repeats op while it fails with ErrConcurrencyConflict.
func (e *Engine) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = e.cfg.RetryMaxElapsed

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrConcurrencyConflict) {
			e.log.Debug("RETRY", fmt.Sprintf("Attempt %d hit a conflict: %v", attempt, err))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}

// ---------------- SNAPSHOTS ----------------

func (e *Engine) snapshot(ctx context.Context, r Reader, ev *models.Event) (capacity.Snapshot, error) {
	regs, err := r.ListEventRegistrations(ctx, ev.ID)
	if err != nil {
		return capacity.Snapshot{}, fmt.Errorf("loading registrations of %s: %w", ev.ID, err)
	}
	payments, err := r.ListCapacityPayments(ctx, ev.ID)
	if err != nil {
		return capacity.Snapshot{}, fmt.Errorf("loading payments of %s: %w", ev.ID, err)
	}
	return capacity.Snapshot{Capacity: ev.Capacity, Registrations: regs, Payments: payments}, nil
}

// Capacity reports the current usage of an event.
func (e *Engine) Capacity(ctx context.Context, eventID string) (*CapacityReport, error) {
	var report *CapacityReport
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		snap, err := e.snapshot(ctx, tx, ev)
		if err != nil {
			return err
		}
		queue, err := tx.ListWaitingList(ctx, eventID)
		if err != nil {
			return err
		}
		usage := e.acc.Usage(snap)
		report = &CapacityReport{
			EventID:           eventID,
			Unit:              string(e.acc.Unit),
			Capacity:          ev.Capacity,
			Registered:        usage.Registered,
			Verified:          usage.Verified,
			Held:              usage.Held,
			EffectiveCount:    usage.Total(),
			AvailableSpots:    e.acc.AvailableSpots(snap),
			WaitingListLength: len(queue),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ---------------- READS ----------------

func (e *Engine) GetPendingPayment(ctx context.Context, id string) (*models.PendingPayment, error) {
	return e.store.GetPendingPayment(ctx, id)
}

func (e *Engine) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	return e.store.GetRegistration(ctx, id)
}

func (e *Engine) GetWaitingListEntry(ctx context.Context, id string) (*models.WaitingListEntry, error) {
	return e.store.GetWaitingListEntry(ctx, id)
}

// ---------------- SIDE RECORDS ----------------

func (e *Engine) audit(ctx context.Context, tx Tx, actor, action, resourceType, resourceID, eventID string, from, to string) error {
	if actor == "" {
		actor = SystemActor
	}
	rec := &models.AuditRecord{
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		EventID:      eventID,
		FromStatus:   from,
		ToStatus:     to,
		CreatedAt:    e.now(),
	}
	if err := tx.InsertAudit(ctx, rec); err != nil {
		return fmt.Errorf("writing audit record for %s %s: %w", resourceType, resourceID, err)
	}
	return nil
}

// paymentNotice is the payload of payment related notifications.
type paymentNotice struct {
	PaymentID           string    `json:"payment_id"`
	EventID             string    `json:"event_id"`
	EventName           string    `json:"event_name"`
	ParticipantCount    int       `json:"participant_count"`
	AmountMinor         int64     `json:"amount_minor"`
	Currency            string    `json:"currency"`
	VariableSymbol      string    `json:"variable_symbol"`
	QRPayment           string    `json:"qr_payment,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
	GuestEmail          string    `json:"guest_email,omitempty"`
	Reason              string    `json:"reason,omitempty"`
	WaitingListPosition int       `json:"waiting_list_position,omitempty"`
}

func noticeFor(ev *models.Event, p *models.PendingPayment) paymentNotice {
	return paymentNotice{
		PaymentID:           p.ID,
		EventID:             p.EventID,
		EventName:           ev.Name,
		ParticipantCount:    p.ParticipantCount,
		AmountMinor:         p.AmountMinor,
		Currency:            p.Currency,
		VariableSymbol:      p.VariableSymbol,
		QRPayment:           p.QRPayment,
		ExpiresAt:           p.ExpiresAt,
		GuestEmail:          p.GuestEmail,
		Reason:              p.RejectionReason,
		WaitingListPosition: p.WaitingListPosition,
	}
}

// notify writes a notification intent to the outbox inside tx.
func (e *Engine) notify(ctx context.Context, tx Tx, kind models.NotificationKind, ev *models.Event, p *models.PendingPayment) error {
	payload, err := json.Marshal(noticeFor(ev, p))
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", kind, err)
	}
	intent := &models.NotificationIntent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: p.Recipient(),
		EventID:   p.EventID,
		Payload:   string(payload),
		CreatedAt: e.now(),
	}
	if err := tx.InsertNotification(ctx, intent); err != nil {
		return fmt.Errorf("queueing %s notification: %w", kind, err)
	}
	return nil
}
