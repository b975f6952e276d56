package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/models"
	"ms-registration/internal/payments/qr"

	"github.com/google/uuid"
)

// ---------------- ADMISSION ----------------

// Register admits the request under capacity, queues it on the waiting list
// when the event is full, or reports that the requester already holds a
// registration, an open payment or a queue entry for the event.
func (e *Engine) Register(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var out *Outcome
	err := e.withEventLock(ctx, req.EventID, func(ctx context.Context) error {
		return e.inEventTx(ctx, req.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			out = nil

			existing, who, err := e.findTaken(ctx, tx, ev.ID, &req)
			if err != nil {
				return err
			}
			if existing != "" {
				out = &Outcome{Result: ResultAlreadyRegistered, Existing: existing, Participant: who}
				return nil
			}

			snap, err := e.snapshot(ctx, tx, ev)
			if err != nil {
				return err
			}
			if e.acc.HasCapacity(snap, req.ParticipantCount()) {
				p, err := e.createPendingPayment(ctx, tx, ev, applicantFromRequest(&req), req.PaymentTTL, req.actor(), 0)
				if err != nil {
					return err
				}
				if err := e.notify(ctx, tx, models.NotifyPaymentConfirmationRequested, ev, p); err != nil {
					return err
				}
				out = &Outcome{Result: ResultAdmitted, PendingPayment: p}
				return nil
			}

			entry, err := e.enqueue(ctx, tx, ev, &req)
			if err != nil {
				return err
			}
			out = &Outcome{Result: ResultWaitlisted, WaitingListEntry: entry}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	switch out.Result {
	case ResultAdmitted:
		e.log.LogPayment("CREATED", out.PendingPayment.ID,
			fmt.Sprintf("event=%s participants=%d vs=%s", req.EventID, out.PendingPayment.ParticipantCount, out.PendingPayment.VariableSymbol))
	case ResultWaitlisted:
		e.log.LogWaitingList("ENQUEUED", req.EventID,
			fmt.Sprintf("entry=%s position=%d size=%d", out.WaitingListEntry.ID, out.WaitingListEntry.Position, out.WaitingListEntry.GroupSize))
	default:
		e.log.Info("REGISTRATION", fmt.Sprintf("Duplicate request for event %s blocked by existing %s of %s", req.EventID, out.Existing, out.Participant))
	}
	return out, nil
}

// findTaken returns the kind of record and the participant when anyone on
// req already takes part in the event: the requester by FindActiveRequest,
// a guest participant as a registration row or guest requester, or as a
// friend listed on an open payment or a queue entry.
func (e *Engine) findTaken(ctx context.Context, tx Tx, eventID string, req *Request) (string, string, error) {
	existing, err := tx.FindActiveRequest(ctx, eventID, req.identity())
	if err != nil {
		return "", "", fmt.Errorf("checking existing requests: %w", err)
	}
	if existing != "" {
		return existing, req.identity().String(), nil
	}

	people := req.guestIdentities()
	if len(people) == 0 {
		return "", "", nil
	}
	for _, who := range people {
		if req.UserID == "" && who == req.identity() {
			continue
		}
		existing, err := tx.FindActiveRequest(ctx, eventID, who)
		if err != nil {
			return "", "", fmt.Errorf("checking existing participants: %w", err)
		}
		if existing != "" {
			return existing, who.String(), nil
		}
	}

	payments, err := tx.ListCapacityPayments(ctx, eventID)
	if err != nil {
		return "", "", fmt.Errorf("loading payments: %w", err)
	}
	for _, p := range payments {
		if p.Status != models.PaymentAwaiting && p.Status != models.PaymentReceived {
			continue
		}
		if who, ok := listedFriend(p.Friends, people); ok {
			return models.ResourcePendingPayment, who.String(), nil
		}
	}

	queue, err := tx.ListWaitingList(ctx, eventID)
	if err != nil {
		return "", "", fmt.Errorf("loading waiting list: %w", err)
	}
	for _, w := range queue {
		if who, ok := listedFriend(w.Friends, people); ok {
			return models.ResourceWaitingList, who.String(), nil
		}
	}
	return "", "", nil
}

func listedFriend(friends []models.Friend, people []Identity) (Identity, bool) {
	for _, f := range friends {
		if f.Email == "" {
			continue
		}
		for _, who := range people {
			if f.Email == who.GuestEmail && f.Name == who.GuestName {
				return who, true
			}
		}
	}
	return Identity{}, false
}

// applicant is the part of a request that travels unchanged from the
// waiting list to a pending payment and on to registrations.
type applicant struct {
	UserID        string
	Guest         models.Guest
	Friends       []models.Friend
	Kind          models.RegistrationKind
	PaymentMethod string
}

func applicantFromRequest(r *Request) applicant {
	return applicant{
		UserID:        r.UserID,
		Guest:         r.guest(),
		Friends:       r.Friends,
		Kind:          models.KindFor(r.Friends),
		PaymentMethod: r.PaymentMethod,
	}
}

func applicantFromEntry(w *models.WaitingListEntry) applicant {
	return applicant{
		UserID:        w.UserID,
		Guest:         models.Guest{Name: w.GuestName, Email: w.GuestEmail, Phone: w.GuestPhone},
		Friends:       w.Friends,
		Kind:          w.Kind,
		PaymentMethod: w.PaymentMethod,
	}
}

// createPendingPayment inserts an AWAITING_PAYMENT payment. A non-zero
// queuePosition marks it as promoted from that waiting-list position.
func (e *Engine) createPendingPayment(ctx context.Context, tx Tx, ev *models.Event, a applicant, ttl time.Duration, actor string, queuePosition int) (*models.PendingPayment, error) {
	symbol, err := e.uniqueSymbol(ctx, tx)
	if err != nil {
		return nil, err
	}

	count := 1 + len(a.Friends)
	now := e.now()
	p := &models.PendingPayment{
		ID:                      uuid.NewString(),
		EventID:                 ev.ID,
		UserID:                  a.UserID,
		GuestName:               a.Guest.Name,
		GuestEmail:              a.Guest.Email,
		GuestPhone:              a.Guest.Phone,
		Status:                  models.PaymentAwaiting,
		Kind:                    a.Kind,
		ParticipantCount:        count,
		Friends:                 cloneFriends(a.Friends),
		AmountMinor:             amountDue(ev, count),
		Currency:                ev.Currency,
		PaymentMethod:           a.PaymentMethod,
		AccountReference:        e.cfg.IBAN,
		VariableSymbol:          symbol,
		CreatedAt:               now,
		ExpiresAt:               now.Add(e.paymentTTL(ttl)),
		PromotedFromWaitingList: queuePosition > 0,
		WaitingListPosition:     queuePosition,
	}
	p.QRPayment = qr.Instruction{
		IBAN:           e.cfg.IBAN,
		AmountMinor:    p.AmountMinor,
		Currency:       p.Currency,
		VariableSymbol: symbol,
		Message:        paymentMessage(ev, count),
		RecipientName:  e.cfg.AccountName,
	}.String()

	if err := tx.InsertPendingPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("creating pending payment: %w", err)
	}
	if err := e.audit(ctx, tx, actor, "create", models.ResourcePendingPayment, p.ID, ev.ID, "", string(p.Status)); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) paymentTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = e.cfg.DefaultPaymentTTL
	}
	if ttl <= 0 {
		return noDeadline
	}
	return ttl
}

// uniqueSymbol draws variable symbols until one is unused.
func (e *Engine) uniqueSymbol(ctx context.Context, tx Tx) (string, error) {
	for i := 0; i < e.cfg.MaxSymbolAttempts; i++ {
		symbol, err := e.symbols(e.cfg.VariableSymbolDigits)
		if err != nil {
			return "", err
		}
		taken, err := tx.VariableSymbolExists(ctx, symbol)
		if err != nil {
			return "", fmt.Errorf("checking variable symbol: %w", err)
		}
		if !taken {
			return symbol, nil
		}
		e.log.Warn("PAYMENT", fmt.Sprintf("Variable symbol %s already in use, drawing again", symbol))
	}
	return "", fmt.Errorf("%w: no free variable symbol after %d attempts", ErrConcurrencyConflict, e.cfg.MaxSymbolAttempts)
}

func amountDue(ev *models.Event, participants int) int64 {
	if ev.IsFree() {
		return 0
	}
	return ev.PriceMinor * int64(participants)
}

func paymentMessage(ev *models.Event, participants int) string {
	if participants > 1 {
		return fmt.Sprintf("%s x%d", ev.Name, participants)
	}
	return ev.Name
}

func cloneFriends(in []models.Friend) []models.Friend {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Friend, len(in))
	copy(out, in)
	return out
}

// ---------------- VERIFICATION ----------------

// Verify records that the bank transfer for an AWAITING_PAYMENT payment has
// arrived and finalizes it into registrations. If finalization fails the
// payment stays PAYMENT_RECEIVED and ProcessReceived can complete it.
func (e *Engine) Verify(ctx context.Context, paymentID string, in VerifyInput) (*Verification, error) {
	p, err := e.store.GetPendingPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var result *Verification
	err = e.withEventLock(ctx, p.EventID, func(ctx context.Context) error {
		err := e.inEventTx(ctx, p.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			cur, err := tx.GetPendingPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			if cur.Status != models.PaymentAwaiting {
				return &StateError{Resource: models.ResourcePendingPayment, ID: cur.ID, Status: string(cur.Status), Operation: "verify"}
			}
			if in.ReportedAmountMinor != nil {
				expected := amountDue(ev, cur.ParticipantCount)
				if diff := *in.ReportedAmountMinor - expected; diff > e.cfg.AmountToleranceMinor || -diff > e.cfg.AmountToleranceMinor {
					return &AmountMismatchError{
						PaymentID:      cur.ID,
						ExpectedMinor:  expected,
						ReportedMinor:  *in.ReportedAmountMinor,
						ToleranceMinor: e.cfg.AmountToleranceMinor,
					}
				}
			}

			now := e.now()
			cur.Status = models.PaymentReceived
			cur.PaidAt = in.PaidAt
			if cur.PaidAt.IsZero() {
				cur.PaidAt = now
			}
			cur.VerifiedAt = now
			cur.VerifiedBy = in.VerifiedBy
			if err := tx.UpdatePendingPayment(ctx, cur, "status", "paid_at", "verified_at", "verified_by"); err != nil {
				return fmt.Errorf("marking payment received: %w", err)
			}
			if err := e.audit(ctx, tx, in.VerifiedBy, "verify", models.ResourcePendingPayment, cur.ID, ev.ID,
				string(models.PaymentAwaiting), string(cur.Status)); err != nil {
				return err
			}
			return e.notify(ctx, tx, models.NotifyPaymentVerified, ev, cur)
		})
		if err != nil {
			return err
		}
		e.log.LogPayment("VERIFIED", paymentID, fmt.Sprintf("verified by %s", in.VerifiedBy))

		result, err = e.finalize(ctx, p.EventID, paymentID, in.VerifiedBy)
		if err != nil {
			return fmt.Errorf("payment %s received but not processed: %w", paymentID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ProcessReceived finalizes a payment left in PAYMENT_RECEIVED by an earlier
// failure.
func (e *Engine) ProcessReceived(ctx context.Context, paymentID, actor string) (*Verification, error) {
	p, err := e.store.GetPendingPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var result *Verification
	err = e.withEventLock(ctx, p.EventID, func(ctx context.Context) error {
		var err error
		result, err = e.finalize(ctx, p.EventID, paymentID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ---------------- REJECTION & EXPIRY ----------------

// Reject cancels an unprocessed payment, frees its slot and promotes from
// the waiting list.
func (e *Engine) Reject(ctx context.Context, paymentID, reason, actor string) (*models.PendingPayment, error) {
	p, err := e.store.GetPendingPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var out *models.PendingPayment
	err = e.withEventLock(ctx, p.EventID, func(ctx context.Context) error {
		err := e.inEventTx(ctx, p.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			cur, err := tx.GetPendingPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			from := cur.Status
			if from != models.PaymentAwaiting && from != models.PaymentReceived {
				return &StateError{Resource: models.ResourcePendingPayment, ID: cur.ID, Status: string(from), Operation: "reject"}
			}
			cur.Status = models.PaymentCancelled
			cur.CancelledAt = e.now()
			cur.RejectionReason = reason
			if err := tx.UpdatePendingPayment(ctx, cur, "status", "cancelled_at", "rejection_reason"); err != nil {
				return fmt.Errorf("cancelling payment: %w", err)
			}
			if err := e.audit(ctx, tx, actor, "reject", models.ResourcePendingPayment, cur.ID, ev.ID, string(from), string(cur.Status)); err != nil {
				return err
			}
			if err := e.notify(ctx, tx, models.NotifyPaymentRejected, ev, cur); err != nil {
				return err
			}
			out = cur
			return nil
		})
		if err != nil {
			return err
		}
		e.log.LogPayment("REJECTED", paymentID, reason)
		e.recoverCapacity(ctx, p.EventID, actor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Expire moves an AWAITING_PAYMENT payment past its deadline to EXPIRED and
// promotes from the waiting list. Expiring an already expired payment is a
// no-op.
func (e *Engine) Expire(ctx context.Context, paymentID string, now time.Time) (*models.PendingPayment, error) {
	p, err := e.store.GetPendingPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PaymentExpired {
		return p, nil
	}

	var out *models.PendingPayment
	err = e.withEventLock(ctx, p.EventID, func(ctx context.Context) error {
		changed := false
		err := e.inEventTx(ctx, p.EventID, func(ctx context.Context, tx Tx, ev *models.Event) error {
			changed = false
			cur, err := tx.GetPendingPayment(ctx, paymentID)
			if err != nil {
				return err
			}
			out = cur
			switch {
			case cur.Status == models.PaymentExpired:
				return nil
			case cur.Status != models.PaymentAwaiting:
				return &StateError{Resource: models.ResourcePendingPayment, ID: cur.ID, Status: string(cur.Status), Operation: "expire"}
			case !now.After(cur.ExpiresAt):
				return &StateError{Resource: models.ResourcePendingPayment, ID: cur.ID, Status: string(cur.Status), Operation: "expire",
					Reason: fmt.Sprintf("deadline %s has not passed", cur.ExpiresAt.Format(time.RFC3339))}
			}
			cur.Status = models.PaymentExpired
			if err := tx.UpdatePendingPayment(ctx, cur, "status"); err != nil {
				return fmt.Errorf("expiring payment: %w", err)
			}
			changed = true
			return e.audit(ctx, tx, SystemActor, "expire", models.ResourcePendingPayment, cur.ID, ev.ID,
				string(models.PaymentAwaiting), string(cur.Status))
		})
		if err != nil || !changed {
			return err
		}
		e.log.LogPayment("EXPIRED", paymentID, fmt.Sprintf("deadline was %s", out.ExpiresAt.Format(time.RFC3339)))
		e.recoverCapacity(ctx, p.EventID, SystemActor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireDue expires up to limit payments whose deadline passed before now
// and returns how many it expired. Failures of single payments do not stop
// the sweep; they are joined into the returned error.
func (e *Engine) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := e.store.ListExpiredPayments(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("listing expired payments: %w", err)
	}

	expired := 0
	var errs []error
	for i := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := e.Expire(ctx, due[i].ID, now); err != nil {
			// Someone verified or rejected it in the meantime.
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			errs = append(errs, fmt.Errorf("payment %s: %w", due[i].ID, err))
			continue
		}
		expired++
	}
	return expired, errors.Join(errs...)
}
