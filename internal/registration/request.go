package registration

import (
	"strings"
	"time"

	"ms-registration/internal/models"
)

// Request asks for a place at an event for the requester and optional
// friends. Exactly one of UserID or Guest identifies the requester; a user
// may still pass Guest to leave contact details.
type Request struct {
	EventID       string
	UserID        string
	Guest         *models.Guest
	Friends       []models.Friend
	PaymentMethod string
	// PaymentTTL is the payment deadline measured from admission. Zero uses
	// the engine default; a negative value means no deadline.
	PaymentTTL time.Duration
	// Actor is recorded in the audit trail. Defaults to the requester.
	Actor string
}

// ParticipantCount is the requester plus every friend.
func (r *Request) ParticipantCount() int {
	return 1 + len(r.Friends)
}

func (r *Request) identity() Identity {
	if r.UserID != "" {
		return Identity{UserID: r.UserID}
	}
	return Identity{GuestEmail: r.Guest.Email, GuestName: r.Guest.Name}
}

func (r *Request) actor() string {
	switch {
	case r.Actor != "":
		return r.Actor
	case r.UserID != "":
		return r.UserID
	default:
		return r.Guest.Email
	}
}

// normalize validates the request and canonicalises identifying fields so
// that duplicate checks compare like with like.
func (r *Request) normalize() error {
	r.EventID = strings.TrimSpace(r.EventID)
	r.UserID = strings.TrimSpace(r.UserID)
	if r.EventID == "" {
		return invalid("event id is required")
	}
	if r.Guest != nil {
		g := *r.Guest
		g.Name = strings.TrimSpace(g.Name)
		g.Email = normalizeEmail(g.Email)
		g.Phone = strings.TrimSpace(g.Phone)
		r.Guest = &g
	}
	if r.UserID == "" {
		if r.Guest == nil || r.Guest.Name == "" || r.Guest.Email == "" {
			return invalid("guest name and email are required without a user id")
		}
		if !strings.Contains(r.Guest.Email, "@") {
			return invalid("guest email %q is not an address", r.Guest.Email)
		}
	}

	seen := make(map[string]struct{}, len(r.Friends)+1)
	if r.Guest != nil && r.Guest.Email != "" {
		seen[r.Guest.Email+"\x00"+r.Guest.Name] = struct{}{}
	}
	friends := make([]models.Friend, len(r.Friends))
	for i, f := range r.Friends {
		f.Name = strings.TrimSpace(f.Name)
		f.Email = normalizeEmail(f.Email)
		f.Phone = strings.TrimSpace(f.Phone)
		if f.Name == "" {
			return invalid("friend %d has no name", i+1)
		}
		if f.Email != "" {
			key := f.Email + "\x00" + f.Name
			if _, dup := seen[key]; dup {
				if r.Guest != nil && f.Email == r.Guest.Email && f.Name == r.Guest.Name {
					return invalid("friend %s <%s> is the requester", f.Name, f.Email)
				}
				return invalid("friend %s <%s> is listed twice", f.Name, f.Email)
			}
			seen[key] = struct{}{}
		}
		friends[i] = f
	}
	r.Friends = friends

	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	if r.PaymentMethod == "" {
		r.PaymentMethod = models.PaymentMethodBankTransfer
	}
	return nil
}

// guestIdentities lists every participant the guest uniqueness constraint
// applies to: the requester's guest details when both name and e-mail are
// known, then each friend with an e-mail.
func (r *Request) guestIdentities() []Identity {
	out := make([]Identity, 0, len(r.Friends)+1)
	if r.Guest != nil && r.Guest.Email != "" && r.Guest.Name != "" {
		out = append(out, Identity{GuestEmail: r.Guest.Email, GuestName: r.Guest.Name})
	}
	for _, f := range r.Friends {
		if f.Email != "" {
			out = append(out, Identity{GuestEmail: f.Email, GuestName: f.Name})
		}
	}
	return out
}

func (id Identity) String() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.GuestName + " <" + id.GuestEmail + ">"
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *Request) guest() models.Guest {
	if r.Guest == nil {
		return models.Guest{}
	}
	return *r.Guest
}

// Result is the business outcome of Register.
type Result string

const (
	ResultAdmitted          Result = "admitted"
	ResultWaitlisted        Result = "waitlisted"
	ResultAlreadyRegistered Result = "already_registered"
)

// Outcome carries whichever record Register produced. For
// ResultAlreadyRegistered, Existing names the kind of record that blocked
// the request and Participant names who it belongs to.
type Outcome struct {
	Result           Result                   `json:"result"`
	PendingPayment   *models.PendingPayment   `json:"pending_payment,omitempty"`
	WaitingListEntry *models.WaitingListEntry `json:"waiting_list_entry,omitempty"`
	Existing         string                   `json:"existing,omitempty"`
	Participant      string                   `json:"participant,omitempty"`
}

// VerifyInput is what the admin confirms when matching a bank transfer.
type VerifyInput struct {
	VerifiedBy string
	// ReportedAmountMinor is the amount seen on the bank statement. Nil
	// skips the amount check.
	ReportedAmountMinor *int64
	// PaidAt is when the transfer arrived. Zero means now.
	PaidAt time.Time
}

// Verification is the result of a successful Verify or ProcessReceived.
type Verification struct {
	Payment       *models.PendingPayment `json:"payment"`
	Registrations []models.Registration  `json:"registrations"`
}

// AdminOptions control AdminRegister.
type AdminOptions struct {
	Actor string
	// Force admits the registration even when the event is full.
	Force bool
}

// CapacityReport describes an event's current usage.
type CapacityReport struct {
	EventID           string `json:"event_id"`
	Unit              string `json:"unit"`
	Capacity          int    `json:"capacity"`
	Registered        int    `json:"registered"`
	Verified          int    `json:"verified"`
	Held              int    `json:"held"`
	EffectiveCount    int    `json:"effective_count"`
	AvailableSpots    int    `json:"available_spots"`
	WaitingListLength int    `json:"waiting_list_length"`
}
