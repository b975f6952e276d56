package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentAwaiting  PaymentStatus = "AWAITING_PAYMENT"
	PaymentReceived  PaymentStatus = "PAYMENT_RECEIVED"
	PaymentProcessed PaymentStatus = "PROCESSED"
	PaymentExpired   PaymentStatus = "EXPIRED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

const PaymentMethodBankTransfer = "bank_transfer"

// PendingPayment is a registration request admitted under capacity that is
// waiting for its bank transfer to be confirmed.
type PendingPayment struct {
	bun.BaseModel `bun:"table:pending_payments"`

	ID               string           `bun:"id,pk" json:"id"`
	EventID          string           `bun:"event_id,notnull" json:"event_id"`
	UserID           string           `bun:"user_id,nullzero" json:"user_id,omitempty"`
	GuestName        string           `bun:"guest_name,nullzero" json:"guest_name,omitempty"`
	GuestEmail       string           `bun:"guest_email,nullzero" json:"guest_email,omitempty"`
	GuestPhone       string           `bun:"guest_phone,nullzero" json:"guest_phone,omitempty"`
	Status           PaymentStatus    `bun:"status,notnull" json:"status"`
	Kind             RegistrationKind `bun:"kind,notnull" json:"kind"`
	ParticipantCount int              `bun:"participant_count,notnull" json:"participant_count"`
	Friends          []Friend         `bun:"friends_data" json:"friends"`
	AmountMinor      int64            `bun:"amount_minor,notnull" json:"amount_minor"`
	Currency         string           `bun:"currency,notnull" json:"currency"`
	PaymentMethod    string           `bun:"payment_method,notnull" json:"payment_method"`
	AccountReference string           `bun:"account_reference,nullzero" json:"account_reference,omitempty"`
	VariableSymbol   string           `bun:"variable_symbol,notnull,unique" json:"variable_symbol"`
	QRPayment        string           `bun:"qr_payment,nullzero" json:"qr_payment,omitempty"`
	CreatedAt        time.Time        `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt        time.Time        `bun:"expires_at,notnull" json:"expires_at"`
	PaidAt           time.Time        `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	VerifiedAt       time.Time        `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	VerifiedBy       string           `bun:"verified_by,nullzero" json:"verified_by,omitempty"`
	ProcessedAt      time.Time        `bun:"processed_at,nullzero" json:"processed_at,omitempty"`
	CancelledAt      time.Time        `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
	RejectionReason  string           `bun:"rejection_reason,nullzero" json:"rejection_reason,omitempty"`

	PromotedFromWaitingList bool `bun:"promoted_from_waiting_list,notnull" json:"promoted_from_waiting_list"`
	WaitingListPosition     int  `bun:"waiting_list_position,nullzero" json:"waiting_list_position,omitempty"`
}

// Recipient is where notifications about the payment go: the user id when
// authenticated, the guest e-mail otherwise.
func (p *PendingPayment) Recipient() string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.GuestEmail
}
