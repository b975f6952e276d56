package analytics

import (
	"context"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// StatusCount is the number of registration rows in one status.
type StatusCount struct {
	Status string `bun:"status"`
	Count  int    `bun:"count"`
}

// PaymentTotals aggregates the payments of one status.
type PaymentTotals struct {
	Status       string `bun:"status" json:"status"`
	Count        int    `bun:"count" json:"count"`
	Participants int    `bun:"participants" json:"participants"`
	AmountMinor  int64  `bun:"amount_minor" json:"amount_minor"`
}

// DailyCount is the number of registration rows created on one day.
type DailyCount struct {
	Day   string `bun:"day" json:"day"`
	Count int    `bun:"count" json:"count"`
}

// GetRegistrationStatusCounts counts an event's registration rows by status
func (db *DB) GetRegistrationStatusCounts(ctx context.Context, eventID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := db.bun.NewRaw(`
		SELECT status, COUNT(*) AS count
		FROM registrations
		WHERE event_id = ?
		GROUP BY status
		ORDER BY status`, eventID).
		Scan(ctx, &counts)

	return counts, err
}

// GetPaymentTotals sums an event's payments by status
func (db *DB) GetPaymentTotals(ctx context.Context, eventID string) ([]PaymentTotals, error) {
	var totals []PaymentTotals
	err := db.bun.NewRaw(`
		SELECT
			status,
			COUNT(*) AS count,
			SUM(participant_count) AS participants,
			SUM(amount_minor) AS amount_minor
		FROM pending_payments
		WHERE event_id = ?
		GROUP BY status
		ORDER BY status`, eventID).
		Scan(ctx, &totals)

	return totals, err
}

// GetDailyRegistrations counts registration rows per creation day
func (db *DB) GetDailyRegistrations(ctx context.Context, eventID string) ([]DailyCount, error) {
	var daily []DailyCount
	err := db.bun.NewRaw(`
		SELECT CAST(DATE(created_at) AS TEXT) AS day, COUNT(*) AS count
		FROM registrations
		WHERE event_id = ?
		GROUP BY CAST(DATE(created_at) AS TEXT)
		ORDER BY day`, eventID).
		Scan(ctx, &daily)

	return daily, err
}

// CountWaitingList returns the length of an event's waiting list
func (db *DB) CountWaitingList(ctx context.Context, eventID string) (int, error) {
	var count int
	err := db.bun.NewRaw("SELECT COUNT(*) FROM waiting_list WHERE event_id = ?", eventID).
		Scan(ctx, &count)

	return count, err
}
