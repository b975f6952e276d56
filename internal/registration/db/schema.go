package db

import (
	"context"
	"fmt"

	"ms-registration/internal/models"

	"github.com/uptrace/bun"
)

var schemaModels = []interface{}{
	(*models.Event)(nil),
	(*models.PendingPayment)(nil),
	(*models.Registration)(nil),
	(*models.WaitingListEntry)(nil),
	(*models.AuditRecord)(nil),
	(*models.NotificationIntent)(nil),
}

type index struct {
	model   interface{}
	name    string
	unique  bool
	columns []string
}

var schemaIndexes = []index{
	{(*models.Registration)(nil), "registrations_user_event_uidx", true, []string{"user_id", "event_id"}},
	{(*models.Registration)(nil), "registrations_guest_event_uidx", true, []string{"guest_email", "guest_name", "event_id"}},
	{(*models.Registration)(nil), "registrations_leader_idx", false, []string{"group_leader_id"}},
	{(*models.PendingPayment)(nil), "pending_payments_event_status_idx", false, []string{"event_id", "status"}},
	{(*models.PendingPayment)(nil), "pending_payments_expiry_idx", false, []string{"status", "expires_at"}},
	{(*models.WaitingListEntry)(nil), "waiting_list_event_position_idx", false, []string{"event_id", "position"}},
	{(*models.AuditRecord)(nil), "audit_log_resource_idx", false, []string{"resource_id"}},
	{(*models.NotificationIntent)(nil), "notification_outbox_unpublished_idx", false, []string{"published_at", "created_at"}},
}

// CreateSchema → create every table and index from the bun models. Used for
// SQLite; PostgreSQL deployments run the SQL migrations instead.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range schemaModels {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	for _, idx := range schemaIndexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// DropSchema → drop every table, newest dependency first
func DropSchema(ctx context.Context, db *bun.DB) error {
	for i := len(schemaModels) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(schemaModels[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("drop table for %T: %w", schemaModels[i], err)
		}
	}
	return nil
}
