package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/metrics"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/google/uuid"
)

type PaymentEventType string

const (
	PaymentSucceeded PaymentEventType = "success"
	PaymentFailed    PaymentEventType = "failure"
	PaymentExpired   PaymentEventType = "expired"
	PaymentCancelled PaymentEventType = "cancelled"
)

// PaymentEvent is a provider callback. ID is the provider's event id and fences redelivery.
type PaymentEvent struct {
	ID            string
	Type          PaymentEventType
	ParticipantID uuid.UUID
	SessionID     string
}

type Checkout struct {
	ParticipantID uuid.UUID
	SessionID     string
	URL           string
	ExpiresAt     time.Time
}

type PaymentEligibility struct {
	Allowed bool
	Reason  string
	Message string
}

// CanProcessPayment reports whether an online payment may start for the user.
func (s *HuntService) CanProcessPayment(ctx context.Context, eventID, userID uuid.UUID) (PaymentEligibility, error) {
	var out PaymentEligibility
	err := s.store.InEventTx(ctx, eventID, func(tx domain.EventTx) error {
		p, found, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		confirmed, err := tx.CountConfirmed(ctx)
		if err != nil {
			return err
		}
		reason := domain.PaymentGate(tx.Event(), p, found, confirmed)
		out = PaymentEligibility{Allowed: reason == "", Reason: reason}
		if reason != "" {
			out.Message = domain.GateMessage(reason)
		}
		return nil
	})
	return out, err
}

// InitiatePayment takes the payment lock in the same transaction as the gate check,
// then opens a checkout outside of it. If the provider fails the lock is released
// before the error is returned.
func (s *HuntService) InitiatePayment(ctx context.Context, eventID, userID uuid.UUID) (Checkout, error) {
	if s.payments == nil {
		return Checkout{}, domain.ErrPaymentProvider(errors.New("no payment provider configured"))
	}
	now := s.now()

	var req domain.CheckoutRequest
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		e := tx.Event()
		p, found, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		confirmed, err := tx.CountConfirmed(ctx)
		if err != nil {
			return err
		}
		if reason := domain.PaymentGate(e, p, found, confirmed); reason != "" {
			return domain.PaymentGateError(reason)
		}

		// a new checkout supersedes any abandoned session
		p.IsPaymentProcessing = true
		p.PaymentRef = nil
		p.UpdatedAt = now
		if err := tx.Save(ctx, p); err != nil {
			return err
		}
		req = domain.CheckoutRequest{
			ParticipantID:  p.ID,
			EventID:        e.ID,
			UserID:         p.UserID,
			AmountCents:    e.PriceCents,
			Currency:       e.Currency,
			SuccessURL:     s.checkout.SuccessURL,
			CancelURL:      s.checkout.CancelURL,
			IdempotencyKey: fmt.Sprintf("%s:%d", p.ID, now.UnixNano()),
		}
		fx.after(func() { s.audit.PaymentLocked(ctx, p) })
		return nil
	})
	if err != nil {
		recordTransition("initiate_payment", err, "")
		return Checkout{}, err
	}

	session, err := s.createCheckout(ctx, req)
	if err != nil {
		// must run even when the caller went away
		if relErr := s.releaseLock(context.WithoutCancel(ctx), eventID, req.ParticipantID, "provider_error"); relErr != nil {
			logger.WithCtx(ctx).Error().Err(relErr).
				Str("participant_id", req.ParticipantID.String()).
				Msg("payment lock release failed")
		}
		perr := domain.ErrPaymentProvider(err)
		recordTransition("initiate_payment", perr, "")
		return Checkout{}, perr
	}

	// Keep the session reference; a webhook that already raced us wins.
	bg := context.WithoutCancel(ctx)
	err = s.store.InEventTx(bg, eventID, func(tx domain.EventTx) error {
		p, found, err := tx.ParticipantByID(bg, req.ParticipantID)
		if err != nil || !found {
			return err
		}
		if !p.IsPaymentProcessing || p.PaymentRef != nil {
			return nil
		}
		ref := session.ID
		p.PaymentRef = &ref
		p.UpdatedAt = s.now()
		return tx.Save(bg, p)
	})
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).
			Str("participant_id", req.ParticipantID.String()).
			Str("session_id", session.ID).
			Msg("could not store payment reference")
	}

	recordTransition("initiate_payment", nil, "locked")
	return Checkout{
		ParticipantID: req.ParticipantID,
		SessionID:     session.ID,
		URL:           session.URL,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

func (s *HuntService) createCheckout(ctx context.Context, req domain.CheckoutRequest) (sess domain.CheckoutSession, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("payment provider panic: %v", r)
		}
	}()
	return s.payments.CreateCheckout(ctx, req)
}

// releaseLock clears isPaymentProcessing, retrying once on a store error.
func (s *HuntService) releaseLock(ctx context.Context, eventID, participantID uuid.UUID, reason string) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
			p, found, err := tx.ParticipantByID(ctx, participantID)
			if err != nil || !found {
				return err
			}
			if !p.ReleasePaymentLock(s.now()) {
				return nil
			}
			if err := tx.Save(ctx, p); err != nil {
				return err
			}
			fx.after(func() {
				s.audit.PaymentUnlocked(ctx, p, reason)
				metrics.RecordLockRelease(reason)
			})
			return nil
		})
		if err == nil {
			return nil
		}
	}
	return err
}

// MarkPaymentProcessing sets or clears the payment lock directly.
// Taking a lock that is already held fails with a payment gate error.
func (s *HuntService) MarkPaymentProcessing(ctx context.Context, participantID uuid.UUID, locked bool) (domain.Participant, error) {
	cur, err := s.store.FindParticipant(ctx, participantID)
	if err != nil {
		return domain.Participant{}, err
	}
	if !locked {
		if err := s.releaseLock(ctx, cur.EventID, participantID, "manual"); err != nil {
			return domain.Participant{}, err
		}
		return s.store.FindParticipant(ctx, participantID)
	}

	var out domain.Participant
	err = s.run(ctx, cur.EventID, func(tx domain.EventTx, fx *effects) error {
		p, found, err := tx.ParticipantByID(ctx, participantID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrParticipantNotFound()
		}
		if p.IsPaymentProcessing {
			return domain.PaymentGateError(domain.GateReasonInFlight)
		}
		p.IsPaymentProcessing = true
		p.UpdatedAt = s.now()
		out = p
		fx.after(func() { s.audit.PaymentLocked(ctx, p) })
		return tx.Save(ctx, p)
	})
	return out, err
}

// ApplyPaymentEvent reconciles a provider callback. Redelivered events (same ID) and
// repeated successes leave the participant unchanged.
func (s *HuntService) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) (domain.Participant, error) {
	switch ev.Type {
	case PaymentSucceeded, PaymentFailed, PaymentExpired, PaymentCancelled:
	default:
		return domain.Participant{}, domain.ErrInvalidField("type", "must be one of success, failure, expired, cancelled")
	}

	cur, err := s.store.FindParticipant(ctx, ev.ParticipantID)
	if err != nil {
		return domain.Participant{}, err
	}

	now := s.now()
	result := "noop"
	var out domain.Participant
	err = s.run(ctx, cur.EventID, func(tx domain.EventTx, fx *effects) error {
		p, found, err := tx.ParticipantByID(ctx, ev.ParticipantID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrParticipantNotFound()
		}
		out = p

		first, err := tx.MarkProcessed(ctx, ev.ID, "payment_webhook")
		if err != nil {
			return err
		}
		if !first {
			result = "duplicate"
			return nil
		}

		// a callback for a session other than the one we are tracking
		stale := ev.SessionID != "" && p.PaymentRef != nil && *p.PaymentRef != ev.SessionID

		var changed bool
		switch ev.Type {
		case PaymentSucceeded:
			wasLocked := p.IsPaymentProcessing
			changed, err = s.applySuccessTx(ctx, tx, &p, now)
			if err != nil {
				return err
			}
			if !changed && stale {
				// money arrived twice
				result = "refund"
				if err := s.emit(ctx, tx, domain.RKRefundRequired, p, func(pl *event.ParticipantPayload) { pl.Reason = "duplicate_payment" }); err != nil {
					return err
				}
			}
			if wasLocked && !changed {
				changed = true
			}
		case PaymentFailed:
			if !stale {
				changed = p.ApplyPaymentFailure(now)
			}
		case PaymentExpired, PaymentCancelled:
			if !stale {
				changed = p.ReleasePaymentLock(now)
			}
		}

		if changed {
			if err := tx.Save(ctx, p); err != nil {
				return err
			}
			if result == "noop" {
				result = "applied"
			}
		}
		out = p
		fx.after(func() { s.audit.PaymentApplied(ctx, p, string(ev.Type), changed) })
		return nil
	})
	if err != nil {
		metrics.RecordPaymentEvent(string(ev.Type), outcome(err, ""))
		return domain.Participant{}, err
	}
	metrics.RecordPaymentEvent(string(ev.Type), result)
	return out, nil
}

// applySuccessTx settles the payment and, for hunts without approval, seats the
// participant. Confirmation happens only here, so it is emitted exactly once.
func (s *HuntService) applySuccessTx(ctx context.Context, tx domain.EventTx, p *domain.Participant, now time.Time) (bool, error) {
	if !p.ApplyPaymentSuccess(now) {
		return false, nil
	}
	e := tx.Event()

	switch {
	case p.Status == domain.StatusCancelled:
		return true, s.emit(ctx, tx, domain.RKRefundRequired, *p, func(pl *event.ParticipantPayload) { pl.Reason = "participant_cancelled" })
	case !e.AcceptingAt(now):
		return true, s.emit(ctx, tx, domain.RKRefundRequired, *p, func(pl *event.ParticipantPayload) { pl.Reason = "event_ended" })
	case e.RequiresApproval:
		// organizer still has to approve
		return true, nil
	}

	seated, err := s.seatPaidTx(ctx, tx, e, p, now)
	if err != nil {
		return true, err
	}
	if seated {
		if err := s.emit(ctx, tx, domain.RKConfirmed, *p, func(pl *event.ParticipantPayload) { pl.Reason = "payment_confirmed" }); err != nil {
			return true, err
		}
	}
	return true, nil
}

// seatPaidTx places a participant whose payment settled: confirmed when a seat is
// free, otherwise on the waitlist (keeping an existing position).
func (s *HuntService) seatPaidTx(ctx context.Context, tx domain.EventTx, e domain.Event, p *domain.Participant, now time.Time) (bool, error) {
	if p.Status == domain.StatusConfirmed {
		return false, nil
	}
	confirmed, err := tx.CountConfirmed(ctx)
	if err != nil {
		return false, err
	}
	if e.HasRoom(confirmed) {
		p.Confirm(now)
		return true, nil
	}
	if p.Status != domain.StatusWaitlisted {
		maxPos, err := tx.MaxWaitlistPosition(ctx)
		if err != nil {
			return false, err
		}
		exp := domain.CalculateExpiration(now, e.StartTime)
		if p.RequestExpiresAt != nil && p.RequestExpiresAt.Before(exp) {
			exp = *p.RequestExpiresAt
		}
		p.Waitlist(domain.NextWaitlistPosition(maxPos), exp, now)
	}
	return false, nil
}

// MarkPaid records an off-platform payment declared by the participant.
func (s *HuntService) MarkPaid(ctx context.Context, eventID, userID uuid.UUID) (domain.Participant, error) {
	now := s.now()
	var out domain.Participant
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		p, found, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		if reason := domain.OfflinePaymentGate(tx.Event(), p, found); reason != "" {
			return domain.PaymentGateError(reason)
		}
		p.PaymentStatus = domain.PaymentMarkedPaid
		p.UpdatedAt = now
		out = p
		fx.after(func() { s.audit.PaymentApplied(ctx, p, "marked_paid", true) })
		return tx.Save(ctx, p)
	})
	recordTransition("mark_paid", err, string(domain.PaymentMarkedPaid))
	return out, err
}
