package db

import (
	"context"
	"time"

	"ms-registration/internal/models"
)

// ---------------- OUTBOX ----------------

// ListUnpublished → undelivered notification intents with fewer than
// maxAttempts failed deliveries, oldest first; maxAttempts <= 0 means no cap
func (d *DB) ListUnpublished(ctx context.Context, maxAttempts, limit int) ([]models.NotificationIntent, error) {
	var intents []models.NotificationIntent
	q := d.Bun.NewSelect().
		Model(&intents).
		Where("published_at IS NULL").
		Order("created_at ASC")
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return intents, nil
}

// MarkPublished → stamp an intent as delivered
func (d *DB) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.NotificationIntent)(nil)).
		Set("published_at = ?", at).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// MarkFailed → record a failed delivery attempt
func (d *DB) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.NotificationIntent)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", reason).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ListEventNotifications → every intent of an event, oldest first
func (d *DB) ListEventNotifications(ctx context.Context, eventID string) ([]models.NotificationIntent, error) {
	var intents []models.NotificationIntent
	err := d.Bun.NewSelect().
		Model(&intents).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return intents, nil
}
