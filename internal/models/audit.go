package models

import (
	"time"

	"github.com/uptrace/bun"
)

// AuditRecord is one create or status transition of an engine-owned row.
type AuditRecord struct {
	bun.BaseModel `bun:"table:audit_log"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Actor        string    `bun:"actor,notnull" json:"actor"`
	Action       string    `bun:"action,notnull" json:"action"`
	ResourceType string    `bun:"resource_type,notnull" json:"resource_type"`
	ResourceID   string    `bun:"resource_id,notnull" json:"resource_id"`
	EventID      string    `bun:"event_id,notnull" json:"event_id"`
	FromStatus   string    `bun:"from_status,nullzero" json:"from_status,omitempty"`
	ToStatus     string    `bun:"to_status,nullzero" json:"to_status,omitempty"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

const (
	ResourcePendingPayment = "pending_payment"
	ResourceRegistration   = "registration"
	ResourceWaitingList    = "waiting_list"
)
