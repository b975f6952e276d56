// Package db is the bun implementation of the registration store. It works
// against PostgreSQL in production and SQLite in tests and local runs.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-registration/internal/models"
	"ms-registration/internal/registration"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type DB struct {
	Bun *bun.DB
	queries
}

var (
	_ registration.Store = (*DB)(nil)
	_ registration.Tx    = (*tx)(nil)
)

func New(bunDB *bun.DB) *DB {
	return &DB{
		Bun:     bunDB,
		queries: queries{idb: bunDB, pg: bunDB.Dialect().Name() == dialect.PG},
	}
}

// InTx runs fn in a read-committed transaction and classifies storage
// failures into registration errors.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, rtx registration.Tx) error) error {
	var opts *sql.TxOptions
	if d.pg {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	err := d.Bun.RunInTx(ctx, opts, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, &tx{queries{idb: btx, pg: d.pg}})
	})
	return classify(err)
}

// ListExpiredPayments → AWAITING_PAYMENT payments past their deadline
func (d *DB) ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	q := d.Bun.NewSelect().
		Model(&payments).
		Where("status = ?", models.PaymentAwaiting).
		Where("expires_at < ?", now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdateCapacity → organiser side change of an event's capacity
func (d *DB) UpdateCapacity(ctx context.Context, eventID string, capacity int) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("capacity = ?", capacity).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: event %s", registration.ErrNotFound, eventID)
	}
	return nil
}

// CreateEvent → insert an event; the catalogue owns events, this exists for
// seeding and tests
func (d *DB) CreateEvent(ctx context.Context, ev *models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(ev).Exec(ctx)
	return err
}

// ListAudit → audit trail of one resource, oldest first
func (d *DB) ListAudit(ctx context.Context, resourceID string) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("resource_id = ?", resourceID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListEventAudit → audit trail of one event, oldest first
func (d *DB) ListEventAudit(ctx context.Context, eventID string) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ---------------- ERROR CLASSIFICATION ----------------

// classify maps driver errors to registration errors. Errors that already
// carry a registration kind pass through unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, registration.ErrConcurrencyConflict) {
		return err
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %v", registration.ErrConcurrencyConflict, err)
	}
	return err
}

func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", registration.ErrNotFound, resource, id)
	}
	return err
}
