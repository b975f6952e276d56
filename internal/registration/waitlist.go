package registration

import (
	"context"
	"fmt"

	"ms-registration/internal/capacity"
	"ms-registration/internal/models"

	"github.com/google/uuid"
)

// enqueue appends the request to the end of the event's waiting list.
func (e *Engine) enqueue(ctx context.Context, tx Tx, ev *models.Event, req *Request) (*models.WaitingListEntry, error) {
	last, err := tx.MaxWaitingListPosition(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("reading waiting list tail: %w", err)
	}
	g := req.guest()
	entry := &models.WaitingListEntry{
		ID:            uuid.NewString(),
		EventID:       ev.ID,
		Position:      last + 1,
		UserID:        req.UserID,
		GuestName:     g.Name,
		GuestEmail:    g.Email,
		GuestPhone:    g.Phone,
		Kind:          models.KindFor(req.Friends),
		IsGroupEntry:  len(req.Friends) > 0,
		GroupSize:     req.ParticipantCount(),
		Friends:       cloneFriends(req.Friends),
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     e.now(),
	}
	if err := tx.InsertWaitingListEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("adding to waiting list: %w", err)
	}
	if err := e.audit(ctx, tx, req.actor(), "enqueue", models.ResourceWaitingList, entry.ID, ev.ID, "", "WAITING"); err != nil {
		return nil, err
	}
	return entry, nil
}

// removeEntry deletes a queue entry and closes the gap behind it.
func (e *Engine) removeEntry(ctx context.Context, tx Tx, w *models.WaitingListEntry) error {
	if err := tx.DeleteWaitingListEntry(ctx, w.ID); err != nil {
		return fmt.Errorf("removing waiting list entry: %w", err)
	}
	if err := tx.ShiftWaitingListAfter(ctx, w.EventID, w.Position); err != nil {
		return fmt.Errorf("renumbering waiting list: %w", err)
	}
	return nil
}

// Withdraw removes an entry from the waiting list at the requester's wish.
func (e *Engine) Withdraw(ctx context.Context, entryID, actor string) error {
	w, err := e.store.GetWaitingListEntry(ctx, entryID)
	if err != nil {
		return err
	}
	err = e.withEventLock(ctx, w.EventID, func(ctx context.Context) error {
		return e.inEventTx(ctx, w.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			cur, err := tx.GetWaitingListEntry(ctx, entryID)
			if err != nil {
				return err
			}
			if err := e.removeEntry(ctx, tx, cur); err != nil {
				return err
			}
			return e.audit(ctx, tx, actor, "withdraw", models.ResourceWaitingList, cur.ID, ev.ID, "WAITING", "WITHDRAWN")
		})
	})
	if err != nil {
		return err
	}
	e.log.LogWaitingList("WITHDRAWN", w.EventID, fmt.Sprintf("entry=%s position=%d", w.ID, w.Position))
	return nil
}

// PromoteNext promotes the first waiting-list entry, in position order,
// whose group fits the free capacity. Groups that do not fit are skipped,
// never split. It returns nil when nothing can be promoted.
func (e *Engine) PromoteNext(ctx context.Context, eventID, actor string) (*models.PendingPayment, error) {
	var out *models.PendingPayment
	err := e.withEventLock(ctx, eventID, func(ctx context.Context) error {
		var err error
		out, err = e.promoteNext(ctx, eventID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// promoteNext runs one promotion in its own transaction. The caller holds
// the event lock.
func (e *Engine) promoteNext(ctx context.Context, eventID, actor string) (*models.PendingPayment, error) {
	var (
		out   *models.PendingPayment
		entry models.WaitingListEntry
	)
	err := e.inEventTx(ctx, eventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
		out = nil
		snap, err := e.snapshot(ctx, tx, ev)
		if err != nil {
			return err
		}
		free := e.acc.AvailableSpots(snap)
		if free == 0 {
			return nil
		}
		queue, err := tx.ListWaitingList(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("loading waiting list: %w", err)
		}

		for i := range queue {
			if !capacity.Fits(free, queue[i].GroupSize) {
				continue
			}
			entry = queue[i]
			p, err := e.createPendingPayment(ctx, tx, ev, applicantFromEntry(&entry), 0, actor, entry.Position)
			if err != nil {
				return err
			}
			if err := e.removeEntry(ctx, tx, &entry); err != nil {
				return err
			}
			if err := e.audit(ctx, tx, actor, "promote", models.ResourceWaitingList, entry.ID, ev.ID, "WAITING", "PROMOTED"); err != nil {
				return err
			}
			if err := e.notify(ctx, tx, models.NotifyWaitingListPromoted, ev, p); err != nil {
				return err
			}
			out = p
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		e.log.LogWaitingList("PROMOTED", eventID,
			fmt.Sprintf("entry=%s position=%d size=%d payment=%s", entry.ID, entry.Position, entry.GroupSize, out.ID))
	}
	return out, nil
}

// recoverCapacity promotes from the waiting list until nothing more fits.
// Every promotion holds its slot, so the loop ends once the freed capacity
// is taken or the queue has no entry that fits. The caller holds the event
// lock. The triggering transition is already committed, so failures are
// logged and left for the next recovery or an explicit PromoteNext.
func (e *Engine) recoverCapacity(ctx context.Context, eventID, actor string) []*models.PendingPayment {
	var promoted []*models.PendingPayment
	for {
		p, err := e.promoteNext(ctx, eventID, actor)
		if err != nil {
			e.log.Error("WAITING_LIST", fmt.Sprintf("Capacity recovery for event %s stopped: %v", eventID, err))
			return promoted
		}
		if p == nil {
			return promoted
		}
		promoted = append(promoted, p)
	}
}

// ListWaitingList returns the event's queue in position order.
func (e *Engine) ListWaitingList(ctx context.Context, eventID string) ([]models.WaitingListEntry, error) {
	if _, err := e.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return e.store.ListWaitingList(ctx, eventID)
}

// ListUnpromotable returns queue entries whose group is larger than the
// whole event. They can never be promoted and need an organiser to raise the
// capacity, split the group or withdraw the entry.
func (e *Engine) ListUnpromotable(ctx context.Context, eventID string) ([]models.WaitingListEntry, error) {
	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	queue, err := e.store.ListWaitingList(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var dead []models.WaitingListEntry
	for _, w := range queue {
		if !capacity.Fits(ev.Capacity, w.GroupSize) {
			dead = append(dead, w)
		}
	}
	return dead, nil
}
