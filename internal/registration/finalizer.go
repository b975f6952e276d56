package registration

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/models"

	"github.com/google/uuid"
)

// finalize turns a PAYMENT_RECEIVED payment into registrations and marks it
// PROCESSED in one transaction. The caller holds the event lock.
func (e *Engine) finalize(ctx context.Context, eventID, paymentID, actor string) (*Verification, error) {
	var out *Verification
	err := e.inEventTx(ctx, eventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
		p, err := tx.GetPendingPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentReceived {
			return &StateError{Resource: models.ResourcePendingPayment, ID: p.ID, Status: string(p.Status), Operation: "finalize"}
		}

		now := e.now()
		regs := buildRegistrations(ev, applicant{
			UserID:  p.UserID,
			Guest:   models.Guest{Name: p.GuestName, Email: p.GuestEmail, Phone: p.GuestPhone},
			Friends: p.Friends,
			Kind:    p.Kind,
		}, now)
		for i := range regs {
			regs[i].PendingPaymentID = p.ID
			regs[i].PromotedFromWaitingList = p.PromotedFromWaitingList
			regs[i].WaitingListPosition = p.WaitingListPosition
		}
		if err := e.insertRegistrations(ctx, tx, regs, actor, "finalize"); err != nil {
			return err
		}

		p.Status = models.PaymentProcessed
		p.ProcessedAt = now
		if err := tx.UpdatePendingPayment(ctx, p, "status", "processed_at"); err != nil {
			return fmt.Errorf("marking payment processed: %w", err)
		}
		if err := e.audit(ctx, tx, actor, "process", models.ResourcePendingPayment, p.ID, ev.ID,
			string(models.PaymentReceived), string(p.Status)); err != nil {
			return err
		}
		out = &Verification{Payment: p, Registrations: regs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.LogRegistration("CONFIRMED", out.Registrations[0].ID,
		fmt.Sprintf("payment=%s group_size=%d", paymentID, out.Registrations[0].GroupSize))
	return out, nil
}

// buildRegistrations returns the leader row followed by one member row per
// friend, all CONFIRMED.
func buildRegistrations(ev *models.Event, a applicant, now time.Time) []models.Registration {
	size := 1 + len(a.Friends)
	leader := models.Registration{
		ID:            uuid.NewString(),
		EventID:       ev.ID,
		UserID:        a.UserID,
		GuestName:     a.Guest.Name,
		GuestEmail:    a.Guest.Email,
		GuestPhone:    a.Guest.Phone,
		Status:        models.RegistrationConfirmed,
		Kind:          a.Kind,
		IsGroupLeader: true,
		GroupSize:     size,
		Friends:       cloneFriends(a.Friends),
		CreatedAt:     now,
		ConfirmedAt:   now,
	}
	regs := make([]models.Registration, 0, size)
	regs = append(regs, leader)
	for i, f := range a.Friends {
		regs = append(regs, models.Registration{
			ID:              uuid.NewString(),
			EventID:         ev.ID,
			GuestName:       f.Name,
			GuestEmail:      f.Email,
			GuestPhone:      f.Phone,
			Dietary:         f.Dietary,
			SpecialRequests: f.SpecialRequests,
			Status:          models.RegistrationConfirmed,
			Kind:            a.Kind,
			GroupSize:       size,
			FriendPosition:  i + 1,
			GroupLeaderID:   leader.ID,
			CreatedAt:       now,
			ConfirmedAt:     now,
		})
	}
	return regs
}

func (e *Engine) insertRegistrations(ctx context.Context, tx Tx, regs []models.Registration, actor, action string) error {
	for i := range regs {
		if err := tx.InsertRegistration(ctx, &regs[i]); err != nil {
			return fmt.Errorf("creating registration: %w", err)
		}
		if err := e.audit(ctx, tx, actor, action, models.ResourceRegistration, regs[i].ID, regs[i].EventID,
			"", string(regs[i].Status)); err != nil {
			return err
		}
	}
	return nil
}

// ---------------- CANCELLATION ----------------

// Cancel cancels a PENDING or CONFIRMED registration. Cancelling a group
// leader cancels its members as well; members cannot be cancelled on their
// own. The freed capacity is offered to the waiting list.
func (e *Engine) Cancel(ctx context.Context, registrationID, actor string) (*models.Registration, error) {
	r, err := e.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}

	var out *models.Registration
	err = e.withEventLock(ctx, r.EventID, func(ctx context.Context) error {
		err := e.inEventTx(ctx, r.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			cur, err := tx.GetRegistration(ctx, registrationID)
			if err != nil {
				return err
			}
			if cur.IsMember() {
				return &StateError{Resource: models.ResourceRegistration, ID: cur.ID, Status: string(cur.Status), Operation: "cancel",
					Reason: fmt.Sprintf("member of group %s; cancel the leader", cur.GroupLeaderID)}
			}
			if !cancellable(cur.Status) {
				return &StateError{Resource: models.ResourceRegistration, ID: cur.ID, Status: string(cur.Status), Operation: "cancel"}
			}
			now := e.now()
			if err := e.cancelRow(ctx, tx, cur, actor, now); err != nil {
				return err
			}
			if cur.IsGroupLeader && cur.GroupSize > 1 {
				members, err := tx.ListGroupMembers(ctx, cur.ID)
				if err != nil {
					return fmt.Errorf("loading group members: %w", err)
				}
				for i := range members {
					if !cancellable(members[i].Status) {
						continue
					}
					if err := e.cancelRow(ctx, tx, &members[i], actor, now); err != nil {
						return err
					}
				}
			}
			out = cur
			return nil
		})
		if err != nil {
			return err
		}
		e.log.LogRegistration("CANCELLED", registrationID, fmt.Sprintf("event=%s group_size=%d by=%s", r.EventID, out.GroupSize, actor))
		e.recoverCapacity(ctx, r.EventID, actor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func cancellable(s models.RegistrationStatus) bool {
	return s == models.RegistrationPending || s == models.RegistrationConfirmed
}

func (e *Engine) cancelRow(ctx context.Context, tx Tx, r *models.Registration, actor string, now time.Time) error {
	from := r.Status
	r.Status = models.RegistrationCancelled
	r.CancelledAt = now
	if err := tx.UpdateRegistration(ctx, r, "status", "cancelled_at"); err != nil {
		return fmt.Errorf("cancelling registration %s: %w", r.ID, err)
	}
	return e.audit(ctx, tx, actor, "cancel", models.ResourceRegistration, r.ID, r.EventID, string(from), string(r.Status))
}

// ---------------- ATTENDANCE ----------------

// MarkAttendance records whether a CONFIRMED participant showed up.
func (e *Engine) MarkAttendance(ctx context.Context, registrationID string, attended bool, actor string) (*models.Registration, error) {
	r, err := e.store.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	var out *models.Registration
	err = e.withEventLock(ctx, r.EventID, func(ctx context.Context) error {
		return e.inEventTx(ctx, r.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			cur, err := tx.GetRegistration(ctx, registrationID)
			if err != nil {
				return err
			}
			if cur.Status != models.RegistrationConfirmed {
				return &StateError{Resource: models.ResourceRegistration, ID: cur.ID, Status: string(cur.Status), Operation: "mark attendance of"}
			}
			cur.Status = models.RegistrationNoShow
			if attended {
				cur.Status = models.RegistrationAttended
			}
			cur.AttendanceAt = e.now()
			if err := tx.UpdateRegistration(ctx, cur, "status", "attendance_marked_at"); err != nil {
				return fmt.Errorf("marking attendance: %w", err)
			}
			out = cur
			return e.audit(ctx, tx, actor, "attendance", models.ResourceRegistration, cur.ID, ev.ID,
				string(models.RegistrationConfirmed), string(cur.Status))
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.LogRegistration(string(out.Status), registrationID, fmt.Sprintf("marked by %s", actor))
	return out, nil
}

// ---------------- ADMIN ----------------

// AdminRegister creates CONFIRMED registrations without a payment. It fails
// with a CapacityError on a full event unless opts.Force is set.
func (e *Engine) AdminRegister(ctx context.Context, req Request, opts AdminOptions) ([]models.Registration, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	actor := opts.Actor
	if actor == "" {
		actor = req.actor()
	}

	var out []models.Registration
	err := e.withEventLock(ctx, req.EventID, func(ctx context.Context) error {
		return e.inEventTx(ctx, req.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			existing, who, err := e.findTaken(ctx, tx, ev.ID, &req)
			if err != nil {
				return err
			}
			if existing != "" {
				return fmt.Errorf("%w: %s already holds a %s for event %s", ErrDuplicateRegistration, who, existing, ev.ID)
			}

			snap, err := e.snapshot(ctx, tx, ev)
			if err != nil {
				return err
			}
			if !e.acc.HasCapacity(snap, req.ParticipantCount()) {
				if !opts.Force {
					return &CapacityError{EventID: ev.ID, Requested: req.ParticipantCount(), Available: e.acc.AvailableSpots(snap)}
				}
				e.log.Warn("REGISTRATION", fmt.Sprintf("Admin %s forced %d participants into full event %s", actor, req.ParticipantCount(), ev.ID))
			}

			a := applicantFromRequest(&req)
			a.Kind = models.KindAdmin
			out = buildRegistrations(ev, a, e.now())
			action := "admin_create"
			if opts.Force {
				action = "admin_force_create"
			}
			return e.insertRegistrations(ctx, tx, out, actor, action)
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.LogRegistration("ADMIN_CREATED", out[0].ID, fmt.Sprintf("event=%s group_size=%d by=%s force=%t", req.EventID, out[0].GroupSize, actor, opts.Force))
	return out, nil
}
