package service

import (
	"context"

	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
)

type RejectResult struct {
	Participant    domain.Participant
	RejectionCount int
	IsBlocked      bool
	Promoted       bool
}

func awaitingDecision(p domain.Participant) bool {
	return p.Status == domain.StatusPending || p.Status == domain.StatusWaitlisted
}

// OrganizerApprove confirms a pending or waitlisted participant. Paid hunts need the
// payment settled first, and the seat must still be free.
func (s *HuntService) OrganizerApprove(ctx context.Context, eventID, organizerID uuid.UUID, role string, targetUserID uuid.UUID) (domain.Participant, error) {
	now := s.now()
	var out domain.Participant
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		e := tx.Event()
		if err := authorizeOrganizer(e, organizerID, role); err != nil {
			return err
		}
		p, found, err := tx.Participant(ctx, targetUserID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrParticipantNotFound()
		}
		if !awaitingDecision(p) {
			return domain.ErrNotPendingOrWaitlisted(p.Status)
		}
		if e.IsPaid && !p.PaymentStatus.Settled() {
			return domain.ErrPaymentNotConfirmed()
		}
		if err := domain.CheckAccepting(e, domain.StatusConfirmed, now); err != nil {
			return err
		}
		confirmed, err := tx.CountConfirmed(ctx)
		if err != nil {
			return err
		}
		if !e.HasRoom(confirmed) {
			return domain.ErrAtCapacity()
		}

		prev := p.Status
		p.Confirm(now)
		if err := tx.Save(ctx, p); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, domain.RKApproved, p, func(pl *event.ParticipantPayload) {
			pl.PrevStatus = string(prev)
			pl.ActorID = organizerID.String()
		}); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, domain.RKConfirmed, p, func(pl *event.ParticipantPayload) { pl.Reason = "approved" }); err != nil {
			return err
		}
		out = p
		fx.after(func() { s.audit.Approved(ctx, p, organizerID) })
		return nil
	})
	recordTransition("approve", err, string(domain.StatusConfirmed))
	return out, err
}

// OrganizerReject cancels a pending or waitlisted request and counts it towards the ban.
// A promotion attempt always follows; it is a no-op when no seat is free.
func (s *HuntService) OrganizerReject(ctx context.Context, eventID, organizerID uuid.UUID, role string, targetUserID uuid.UUID) (RejectResult, error) {
	now := s.now()
	var res RejectResult
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		e := tx.Event()
		if err := authorizeOrganizer(e, organizerID, role); err != nil {
			return err
		}
		p, found, err := tx.Participant(ctx, targetUserID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrParticipantNotFound()
		}
		if !awaitingDecision(p) {
			return domain.ErrNotPendingOrWaitlisted(p.Status)
		}

		prev := p.Status
		count, blocked := p.Reject(now)
		if err := tx.Save(ctx, p); err != nil {
			return err
		}
		if err := s.emit(ctx, tx, domain.RKRejected, p, func(pl *event.ParticipantPayload) {
			pl.PrevStatus = string(prev)
			pl.ActorID = organizerID.String()
		}); err != nil {
			return err
		}
		if blocked {
			if err := s.emit(ctx, tx, domain.RKBlocked, p, func(pl *event.ParticipantPayload) { pl.ActorID = organizerID.String() }); err != nil {
				return err
			}
		}
		if p.PaymentStatus.Settled() {
			if err := s.emit(ctx, tx, domain.RKRefundRequired, p, func(pl *event.ParticipantPayload) { pl.Reason = "rejected" }); err != nil {
				return err
			}
		}
		fx.after(func() { s.audit.Rejected(ctx, p, organizerID, blocked) })

		promoted, err := s.promoteNextTx(ctx, tx, fx, now)
		if err != nil {
			return err
		}
		res = RejectResult{Participant: p, RejectionCount: count, IsBlocked: blocked, Promoted: promoted}
		return nil
	})
	recordTransition("reject", err, "rejected")
	return res, err
}

// ConfirmPaymentReceived is the organizer side of the manual payment path: a
// marked_paid participant becomes received. Hunts without approval confirm the
// seat in the same unit, like an online payment success.
func (s *HuntService) ConfirmPaymentReceived(ctx context.Context, eventID, organizerID uuid.UUID, role string, targetUserID uuid.UUID) (domain.Participant, error) {
	now := s.now()
	var out domain.Participant
	err := s.run(ctx, eventID, func(tx domain.EventTx, fx *effects) error {
		e := tx.Event()
		if err := authorizeOrganizer(e, organizerID, role); err != nil {
			return err
		}
		p, found, err := tx.Participant(ctx, targetUserID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrParticipantNotFound()
		}
		if !awaitingDecision(p) {
			return domain.ErrNotPendingOrWaitlisted(p.Status)
		}
		if p.PaymentStatus != domain.PaymentMarkedPaid {
			return domain.ErrPaymentNotConfirmed()
		}

		p.PaymentStatus = domain.PaymentReceived
		p.PaidAt = &now
		p.UpdatedAt = now
		if !e.RequiresApproval {
			if _, err := s.seatPaidTx(ctx, tx, e, &p, now); err != nil {
				return err
			}
		}
		if err := tx.Save(ctx, p); err != nil {
			return err
		}
		if p.Status == domain.StatusConfirmed {
			if err := s.emit(ctx, tx, domain.RKConfirmed, p, func(pl *event.ParticipantPayload) { pl.Reason = "payment_received" }); err != nil {
				return err
			}
		}
		out = p
		fx.after(func() { s.audit.PaymentApplied(ctx, p, "received", true) })
		return nil
	})
	recordTransition("payment_received", err, string(out.Status))
	return out, err
}
