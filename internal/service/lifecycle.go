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

// Cancel reasons recorded on the participant.
const (
	ReasonSelfCancel = "self_cancel"
	ReasonExpired    = "expired"
)

type JoinResult struct {
	Participant      domain.Participant
	Status           domain.ParticipantStatus
	RequiresApproval bool
	RequiresPayment  bool
	IsWaitlisted     bool
	ExpiresAt        *time.Time
	WaitlistPosition *int
	Message          string
}

type CancelResult struct {
	Participant domain.Participant
	Promoted    bool
}

func joinMessage(d domain.Decision, p domain.Participant) string {
	switch {
	case p.Status == domain.StatusConfirmed:
		return "You're confirmed for this hunt."
	case p.Status == domain.StatusWaitlisted && p.WaitlistPosition != nil:
		return fmt.Sprintf("This hunt is full. You are number %d on the waitlist.", *p.WaitlistPosition)
	case d.RequiresApproval && d.RequiresPayment:
		return "Complete payment and wait for the organizer to approve your request."
	case d.RequiresPayment:
		return "Complete payment to secure your spot."
	default:
		return "Your request was sent to the organizer for approval."
	}
}

func (s *HuntService) Join(ctx context.Context, eventID, userID uuid.UUID) (JoinResult, error) {
	now := s.now()
	if err := s.fastFail(ctx, eventID, now); err != nil {
		recordTransition("join", err, "")
		return JoinResult{}, err
	}

	var res JoinResult
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		e := tx.Event()
		if !e.AcceptingAt(now) {
			return domain.CheckAccepting(e, domain.StatusConfirmed, now)
		}

		p, found, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		// ban check is absolute and runs before anything else
		if found && domain.IsBlocked(p) {
			return domain.ErrBlocked()
		}
		if found && p.Status.Active() {
			return domain.ErrAlreadyActive()
		}

		confirmed, err := tx.CountConfirmed(ctx)
		if err != nil {
			return err
		}
		d, err := domain.Decide(e, confirmed)
		if err != nil {
			return err
		}
		if err := domain.CheckAccepting(e, d.Status, now); err != nil {
			return err
		}

		if found {
			p.ResetForRejoin(now)
		} else {
			p = domain.Participant{ID: uuid.New(), EventID: eventID, UserID: userID, JoinedAt: now}
		}
		p.PaymentStatus = domain.PaymentNone
		if e.IsPaid {
			p.PaymentStatus = domain.PaymentPending
		}

		switch d.Status {
		case domain.StatusConfirmed:
			p.Confirm(now)
		case domain.StatusPending:
			p.MarkPending(domain.CalculateExpiration(now, e.StartTime), now)
		case domain.StatusWaitlisted:
			maxPos, err := tx.MaxWaitlistPosition(ctx)
			if err != nil {
				return err
			}
			p.Waitlist(domain.NextWaitlistPosition(maxPos), domain.CalculateExpiration(now, e.StartTime), now)
		}

		if err := tx.Save(ctx, p); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, domain.RKJoined, p, nil); err != nil {
			return err
		}
		if p.Status == domain.StatusConfirmed {
			if err := s.emit(ctx, tx, domain.RKConfirmed, p, func(pl *event.ParticipantPayload) { pl.Reason = "joined" }); err != nil {
				return err
			}
		}

		res = JoinResult{
			Participant:      p,
			Status:           p.Status,
			RequiresApproval: d.RequiresApproval,
			RequiresPayment:  d.RequiresPayment,
			IsWaitlisted:     p.Status == domain.StatusWaitlisted,
			ExpiresAt:        p.RequestExpiresAt,
			WaitlistPosition: p.WaitlistPosition,
			Message:          joinMessage(d, p),
		}
		fx.after(func() { s.audit.Joined(ctx, p) })
		return nil
	})
	recordTransition("join", err, string(res.Status))
	if err != nil {
		return JoinResult{}, err
	}
	return res, nil
}

// Cancel is the self-service leave. Cancelling an already cancelled record is a no-op.
func (s *HuntService) Cancel(ctx context.Context, eventID, userID uuid.UUID) (CancelResult, error) {
	now := s.now()
	var res CancelResult
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		p, found, err := tx.Participant(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrParticipantNotFound()
		}
		res.Participant, res.Promoted, err = s.cancelTx(ctx, tx, fx, p, ReasonSelfCancel, now)
		return err
	})
	recordTransition("cancel", err, string(domain.StatusCancelled))
	if err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

func (s *HuntService) cancelTx(ctx context.Context, tx domain.EventTx, fx *effects, p domain.Participant, reason string, now time.Time) (domain.Participant, bool, error) {
	if p.Status == domain.StatusCancelled {
		return p, false, nil
	}
	prev := p.Status
	p.Cancel(reason, now)
	if err := tx.Save(ctx, p); err != nil {
		return p, false, err
	}

	rk := domain.RKCancelled
	if reason == ReasonExpired {
		rk = domain.RKExpired
	}
	if err := s.emit(ctx, tx, rk, p, func(pl *event.ParticipantPayload) {
		pl.PrevStatus = string(prev)
		pl.Reason = reason
	}); err != nil {
		return p, false, err
	}
	if p.PaymentStatus.Settled() {
		if err := s.emit(ctx, tx, domain.RKRefundRequired, p, func(pl *event.ParticipantPayload) { pl.Reason = reason }); err != nil {
			return p, false, err
		}
	}
	fx.after(func() { s.audit.Cancelled(ctx, p, reason) })

	// only a confirmed participant held a seat
	if prev != domain.StatusConfirmed {
		return p, false, nil
	}
	promoted, err := s.promoteNextTx(ctx, tx, fx, now)
	return p, promoted, err
}

// PromoteNextWaitlisted moves at most one waitlisted participant up. Promoting when
// nobody is waiting or no seat is free is a no-op.
func (s *HuntService) PromoteNextWaitlisted(ctx context.Context, eventID uuid.UUID) (bool, error) {
	now := s.now()
	var promoted bool
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		var err error
		promoted, err = s.promoteNextTx(ctx, tx, fx, now)
		return err
	})
	return promoted, err
}

func (s *HuntService) promoteNextTx(ctx context.Context, tx domain.EventTx, fx *effects, now time.Time) (bool, error) {
	e := tx.Event()
	if !e.AcceptingAt(now) {
		return false, nil
	}
	confirmed, err := tx.CountConfirmed(ctx)
	if err != nil {
		return false, err
	}
	if !e.HasRoom(confirmed) {
		return false, nil
	}
	next, found, err := tx.NextWaitlisted(ctx)
	if err != nil || !found {
		return false, err
	}

	target := domain.PromotionTarget(e, next)
	if target == domain.StatusPending && e.StartedAt(now) {
		// a request promoted now could never resolve in time
		return false, nil
	}
	fromPos := next.WaitlistPosition
	if target == domain.StatusConfirmed {
		next.Confirm(now)
	} else {
		next.MarkPending(domain.CalculateExpiration(now, e.StartTime), now)
	}
	if err := tx.Save(ctx, next); err != nil {
		return false, err
	}
	if err := s.emit(ctx, tx, domain.RKPromoted, next, func(pl *event.ParticipantPayload) {
		pl.PrevStatus = string(domain.StatusWaitlisted)
		pl.WaitlistPosition = fromPos
		pl.Reason = "slot_freed"
	}); err != nil {
		return false, err
	}
	if target == domain.StatusConfirmed {
		if err := s.emit(ctx, tx, domain.RKConfirmed, next, func(pl *event.ParticipantPayload) { pl.Reason = "promoted" }); err != nil {
			return false, err
		}
	}
	fx.after(func() {
		s.audit.Promoted(ctx, next)
		metrics.RecordPromotion()
	})
	return true, nil
}

// ExpireStale cancels requests whose deadline passed and returns how many were expired.
// Failures on one participant do not stop the batch.
func (s *HuntService) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.now()
	due, err := s.store.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	var errs []error
	expired := 0
	for _, cand := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := s.expireOne(ctx, cand, now)
		if err != nil {
			logger.WithCtx(ctx).Warn().Err(err).
				Str("participant_id", cand.ID.String()).
				Msg("expire participant failed")
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}
	metrics.RecordExpired(expired)
	return expired, errors.Join(errs...)
}

func (s *HuntService) expireOne(ctx context.Context, cand domain.Participant, now time.Time) (bool, error) {
	var done bool
	err := s.run(ctx, cand.EventID, func(tx domain.EventTx, fx *effects) error {
		p, found, err := tx.ParticipantByID(ctx, cand.ID)
		if err != nil || !found {
			return err
		}
		// re-check under lock: the participant may have moved on since the scan
		if p.Status != domain.StatusPending && p.Status != domain.StatusWaitlisted {
			return nil
		}
		if p.RequestExpiresAt == nil || !p.RequestExpiresAt.Before(now) || p.IsPaymentProcessing {
			return nil
		}
		_, _, err = s.cancelTx(ctx, tx, fx, p, ReasonExpired, now)
		done = err == nil
		return err
	})
	return done, err
}
