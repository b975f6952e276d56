package models

import (
	"time"

	"github.com/uptrace/bun"
)

// WaitingListEntry is a deferred registration request. Entries of one event
// hold the positions 1..N without gaps.
type WaitingListEntry struct {
	bun.BaseModel `bun:"table:waiting_list"`

	ID            string           `bun:"id,pk" json:"id"`
	EventID       string           `bun:"event_id,notnull" json:"event_id"`
	Position      int              `bun:"position,notnull" json:"position"`
	UserID        string           `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestName     string           `bun:"guest_name,nullzero" json:"guest_name,omitempty"`
	GuestEmail    string           `bun:"guest_email,nullzero" json:"guest_email,omitempty"`
	GuestPhone    string           `bun:"guest_phone,nullzero" json:"guest_phone,omitempty"`
	Kind          RegistrationKind `bun:"kind,notnull" json:"kind"`
	IsGroupEntry  bool             `bun:"is_group_entry,notnull" json:"is_group_entry"`
	GroupSize     int              `bun:"group_size,notnull" json:"group_size"`
	Friends       []Friend         `bun:"friends_data" json:"friends,omitempty"`
	PaymentMethod string           `bun:"payment_method,notnull" json:"payment_method"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"created_at"`
}
