package db

import (
	"context"
	"database/sql"
	"fmt"

	"ms-registration/internal/models"
	"ms-registration/internal/registration"

	"github.com/uptrace/bun"
)

// queries holds every statement and runs them against either the database
// or an open transaction.
type queries struct {
	idb bun.IDB
	pg  bool
}

type tx struct {
	queries
}

// ---------------- EVENTS ----------------

// GetEvent → fetch one event by ID
func (q queries) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := q.idb.NewSelect().Model(&ev).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return &ev, nil
}

// LockEvent → fetch one event and lock its row until the transaction ends.
// SQLite has no row locks; it serialises writers on the database instead.
func (t *tx) LockEvent(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	sel := t.idb.NewSelect().Model(&ev).Where("id = ?", id)
	if t.pg {
		sel = sel.For("UPDATE")
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, classify(notFound(err, "event", id))
	}
	return &ev, nil
}

// ---------------- PENDING PAYMENTS ----------------

// GetPendingPayment → fetch one payment by ID
func (q queries) GetPendingPayment(ctx context.Context, id string) (*models.PendingPayment, error) {
	var p models.PendingPayment
	err := q.idb.NewSelect().Model(&p).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "pending payment", id)
	}
	return &p, nil
}

// ListCapacityPayments → the event's payments that can hold capacity
func (q queries) ListCapacityPayments(ctx context.Context, eventID string) ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	err := q.idb.NewSelect().
		Model(&payments).
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In([]models.PaymentStatus{
			models.PaymentAwaiting, models.PaymentReceived, models.PaymentProcessed,
		})).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// VariableSymbolExists → whether any payment already uses the symbol
func (q queries) VariableSymbolExists(ctx context.Context, symbol string) (bool, error) {
	return q.idb.NewSelect().
		Model((*models.PendingPayment)(nil)).
		Where("variable_symbol = ?", symbol).
		Exists(ctx)
}

// InsertPendingPayment → insert new payment
func (t *tx) InsertPendingPayment(ctx context.Context, p *models.PendingPayment) error {
	_, err := t.idb.NewInsert().Model(p).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: variable symbol %s taken concurrently", registration.ErrConcurrencyConflict, p.VariableSymbol)
	}
	return classify(err)
}

// UpdatePendingPayment → update the given columns
func (t *tx) UpdatePendingPayment(ctx context.Context, p *models.PendingPayment, columns ...string) error {
	_, err := t.idb.NewUpdate().Model(p).Column(columns...).WherePK().Exec(ctx)
	return classify(err)
}

// ---------------- REGISTRATIONS ----------------

// GetRegistration → fetch one registration by ID
func (q queries) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var r models.Registration
	err := q.idb.NewSelect().Model(&r).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "registration", id)
	}
	return &r, nil
}

// ListEventRegistrations → every registration row of the event
func (q queries) ListEventRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := q.idb.NewSelect().
		Model(&regs).
		Where("event_id = ?", eventID).
		Order("created_at ASC", "friend_position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// ListGroupMembers → member rows of a leader in friend order
func (q queries) ListGroupMembers(ctx context.Context, leaderID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := q.idb.NewSelect().
		Model(&regs).
		Where("group_leader_id = ?", leaderID).
		Order("friend_position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// InsertRegistration → insert new registration
func (t *tx) InsertRegistration(ctx context.Context, r *models.Registration) error {
	_, err := t.idb.NewInsert().Model(r).Exec(ctx)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", registration.ErrDuplicateRegistration, err)
	}
	return classify(err)
}

// UpdateRegistration → update the given columns
func (t *tx) UpdateRegistration(ctx context.Context, r *models.Registration, columns ...string) error {
	_, err := t.idb.NewUpdate().Model(r).Column(columns...).WherePK().Exec(ctx)
	return classify(err)
}

// ---------------- WAITING LIST ----------------

// GetWaitingListEntry → fetch one entry by ID
func (q queries) GetWaitingListEntry(ctx context.Context, id string) (*models.WaitingListEntry, error) {
	var w models.WaitingListEntry
	err := q.idb.NewSelect().Model(&w).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "waiting list entry", id)
	}
	return &w, nil
}

// ListWaitingList → the event's queue in position order
func (q queries) ListWaitingList(ctx context.Context, eventID string) ([]models.WaitingListEntry, error) {
	var entries []models.WaitingListEntry
	err := q.idb.NewSelect().
		Model(&entries).
		Where("event_id = ?", eventID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// MaxWaitingListPosition → last occupied position, 0 for an empty queue
func (q queries) MaxWaitingListPosition(ctx context.Context, eventID string) (int, error) {
	var last sql.NullInt64
	err := q.idb.NewSelect().
		Model((*models.WaitingListEntry)(nil)).
		ColumnExpr("MAX(position)").
		Where("event_id = ?", eventID).
		Scan(ctx, &last)
	if err != nil {
		return 0, err
	}
	return int(last.Int64), nil
}

// InsertWaitingListEntry → insert new entry
func (t *tx) InsertWaitingListEntry(ctx context.Context, w *models.WaitingListEntry) error {
	_, err := t.idb.NewInsert().Model(w).Exec(ctx)
	return classify(err)
}

// DeleteWaitingListEntry → delete an entry by ID
func (t *tx) DeleteWaitingListEntry(ctx context.Context, id string) error {
	_, err := t.idb.NewDelete().
		Model((*models.WaitingListEntry)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return classify(err)
}

// ShiftWaitingListAfter → close the gap left at position
func (t *tx) ShiftWaitingListAfter(ctx context.Context, eventID string, position int) error {
	_, err := t.idb.NewUpdate().
		Model((*models.WaitingListEntry)(nil)).
		Set("position = position - 1").
		Where("event_id = ?", eventID).
		Where("position > ?", position).
		Exec(ctx)
	return classify(err)
}

// ---------------- DUPLICATES ----------------

// FindActiveRequest → which record, if any, already represents the identity
func (q queries) FindActiveRequest(ctx context.Context, eventID string, who registration.Identity) (string, error) {
	match := func(sel *bun.SelectQuery) *bun.SelectQuery {
		sel = sel.Where("event_id = ?", eventID)
		if who.UserID != "" {
			return sel.Where("user_id = ?", who.UserID)
		}
		return sel.Where("guest_email = ?", who.GuestEmail).Where("guest_name = ?", who.GuestName)
	}

	found, err := match(q.idb.NewSelect().Model((*models.Registration)(nil))).Exists(ctx)
	if err != nil {
		return "", err
	}
	if found {
		return models.ResourceRegistration, nil
	}

	found, err = match(q.idb.NewSelect().Model((*models.PendingPayment)(nil))).
		Where("status IN (?)", bun.In([]models.PaymentStatus{models.PaymentAwaiting, models.PaymentReceived})).
		Exists(ctx)
	if err != nil {
		return "", err
	}
	if found {
		return models.ResourcePendingPayment, nil
	}

	found, err = match(q.idb.NewSelect().Model((*models.WaitingListEntry)(nil))).Exists(ctx)
	if err != nil {
		return "", err
	}
	if found {
		return models.ResourceWaitingList, nil
	}
	return "", nil
}

// ---------------- SIDE RECORDS ----------------

// InsertAudit → append to the audit trail
func (t *tx) InsertAudit(ctx context.Context, a *models.AuditRecord) error {
	_, err := t.idb.NewInsert().Model(a).Exec(ctx)
	return classify(err)
}

// InsertNotification → append to the outbox
func (t *tx) InsertNotification(ctx context.Context, n *models.NotificationIntent) error {
	_, err := t.idb.NewInsert().Model(n).Exec(ctx)
	return classify(err)
}
