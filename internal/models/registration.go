package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "PENDING"
	RegistrationConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationCancelled RegistrationStatus = "CANCELLED"
	RegistrationRejected  RegistrationStatus = "REJECTED"
	RegistrationAttended  RegistrationStatus = "ATTENDED"
	RegistrationNoShow    RegistrationStatus = "NO_SHOW"
)

// Registration is a durable participation record. A group produces one
// leader row carrying the friend list and one member row per friend.
type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID               string             `bun:"id,pk" json:"id"`
	EventID          string             `bun:"event_id,notnull" json:"event_id"`
	UserID           string             `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestName        string             `bun:"guest_name,nullzero" json:"guest_name,omitempty"`
	GuestEmail       string             `bun:"guest_email,nullzero" json:"guest_email,omitempty"`
	GuestPhone       string             `bun:"guest_phone,nullzero" json:"guest_phone,omitempty"`
	Status           RegistrationStatus `bun:"status,notnull" json:"status"`
	Kind             RegistrationKind   `bun:"kind,notnull" json:"kind"`
	IsGroupLeader    bool               `bun:"is_group_leader,notnull" json:"is_group_leader"`
	GroupSize        int                `bun:"group_size,notnull" json:"group_size"`
	FriendPosition   int                `bun:"friend_position,nullzero" json:"friend_position,omitempty"`
	Friends          []Friend           `bun:"friends_data" json:"friends,omitempty"`
	Dietary          string             `bun:"dietary,nullzero" json:"dietary,omitempty"`
	SpecialRequests  string             `bun:"special_requests,nullzero" json:"special_requests,omitempty"`
	PendingPaymentID string             `bun:"pending_payment_id,nullzero" json:"pending_payment_id,omitempty"`
	GroupLeaderID    string             `bun:"group_leader_id,nullzero" json:"group_leader_id,omitempty"`
	CreatedAt        time.Time          `bun:"created_at,notnull" json:"created_at"`
	ConfirmedAt      time.Time          `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
	CancelledAt      time.Time          `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	AttendanceAt     time.Time          `bun:"attendance_marked_at,nullzero" json:"attendance_marked_at,omitempty"`

	PromotedFromWaitingList bool `bun:"promoted_from_waiting_list,notnull" json:"promoted_from_waiting_list"`
	WaitingListPosition     int  `bun:"waiting_list_position,nullzero" json:"waiting_list_position,omitempty"`
}

// IsMember reports whether the row belongs to a friend of a group leader.
func (r *Registration) IsMember() bool {
	return r.GroupLeaderID != ""
}
