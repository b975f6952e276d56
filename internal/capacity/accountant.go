// Package capacity computes how much of an event's capacity is consumed by
// its registrations and pending payments. Everything here is a pure function
// of a Snapshot; callers re-read the snapshot for every decision.
package capacity

import (
	"fmt"
	"strings"

	"ms-registration/internal/models"
)

// Unit selects what one capacity unit measures.
type Unit string

const (
	// UnitSlot counts every registration row or payment as one slot,
	// whatever the size of the group behind it.
	UnitSlot Unit = "slot"
	// UnitPerson counts every participant, so a group of N uses N units.
	UnitPerson Unit = "person"
)

// ParseUnit accepts "slot" or "person" (case-insensitive). Empty means slot.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(UnitSlot):
		return UnitSlot, nil
	case string(UnitPerson):
		return UnitPerson, nil
	default:
		return "", fmt.Errorf("unknown capacity unit %q", s)
	}
}

// Snapshot is the state of one event at the moment of a decision.
// Registrations must include every row of the event (cancelled ones too) so
// that processed payments can be matched to the registrations they produced.
type Snapshot struct {
	Capacity      int
	Registrations []models.Registration
	Payments      []models.PendingPayment
}

// Usage breaks the effective count down by source.
type Usage struct {
	Registered int `json:"registered"`
	Verified   int `json:"verified"`
	Held       int `json:"held"`
}

// Total is the effective count.
func (u Usage) Total() int {
	return u.Registered + u.Verified + u.Held
}

type Accountant struct {
	Unit Unit
}

func New(unit Unit) Accountant {
	if unit == "" {
		unit = UnitSlot
	}
	return Accountant{Unit: unit}
}

// Usage counts:
//   - leader (or individual) registrations in CONFIRMED or ATTENDED; member
//     rows never count on their own,
//   - payments in PAYMENT_RECEIVED,
//   - payments in PROCESSED that no registration references yet,
//   - payments in AWAITING_PAYMENT, which hold their slot until they are
//     verified, rejected or expired.
func (a Accountant) Usage(s Snapshot) Usage {
	var u Usage
	finalized := make(map[string]struct{}, len(s.Registrations))
	for i := range s.Registrations {
		r := &s.Registrations[i]
		if r.PendingPaymentID != "" {
			finalized[r.PendingPaymentID] = struct{}{}
		}
		if r.IsMember() {
			continue
		}
		switch r.Status {
		case models.RegistrationConfirmed, models.RegistrationAttended:
			u.Registered += a.weight(r.GroupSize)
		}
	}
	for i := range s.Payments {
		p := &s.Payments[i]
		switch p.Status {
		case models.PaymentReceived:
			u.Verified += a.weight(p.ParticipantCount)
		case models.PaymentProcessed:
			if _, ok := finalized[p.ID]; !ok {
				u.Verified += a.weight(p.ParticipantCount)
			}
		case models.PaymentAwaiting:
			u.Held += a.weight(p.ParticipantCount)
		}
	}
	return u
}

// EffectiveCount is the number of capacity units in use.
func (a Accountant) EffectiveCount(s Snapshot) int {
	return a.Usage(s).Total()
}

// AvailableSpots never goes below zero, even when an admin override pushed
// the event past its capacity.
func (a Accountant) AvailableSpots(s Snapshot) int {
	free := s.Capacity - a.EffectiveCount(s)
	if free < 0 {
		return 0
	}
	return free
}

// HasCapacity reports whether requested units fit. Requests below one are
// treated as one.
func (a Accountant) HasCapacity(s Snapshot, requested int) bool {
	if requested < 1 {
		requested = 1
	}
	return a.AvailableSpots(s) >= requested
}

// Fits reports whether a request of the given size could ever be admitted
// to an empty event of this capacity.
func Fits(capacity, requested int) bool {
	return requested <= capacity
}

func (a Accountant) weight(size int) int {
	if a.Unit == UnitPerson && size > 1 {
		return size
	}
	return 1
}
