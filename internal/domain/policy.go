package domain

import "time"

const (
	// RequestWindow is how long a pending or waitlisted request may stay open.
	RequestWindow = 7 * 24 * time.Hour
	// BlockThreshold is the number of organizer rejections that bans a user from a hunt.
	BlockThreshold = 3
)

// Decision is the outcome of the capacity & waitlist engine for a join.
type Decision struct {
	Status           ParticipantStatus
	RequiresApproval bool
	RequiresPayment  bool
}

// Decide picks the target status for a new or returning participant.
// The caller has already checked bans and active records.
func Decide(e Event, confirmed int) (Decision, error) {
	d := Decision{RequiresApproval: e.RequiresApproval, RequiresPayment: e.IsPaid}
	switch {
	case !e.HasRoom(confirmed):
		if !e.WaitlistEnabled {
			return Decision{}, ErrAtCapacity()
		}
		d.Status = StatusWaitlisted
	case e.RequiresApproval || e.IsPaid:
		d.Status = StatusPending
	default:
		d.Status = StatusConfirmed
	}
	return d, nil
}

// CheckAccepting rejects transitions into target once the hunt no longer takes them.
// Confirmed joins stay possible until the end; anything that still has to resolve
// needs the hunt not to have started.
func CheckAccepting(e Event, target ParticipantStatus, now time.Time) error {
	if e.Canceled {
		return ErrEventEnded("this hunt was cancelled by the organizer")
	}
	if !e.AcceptingAt(now) {
		return ErrEventEnded("this hunt has already ended")
	}
	if target != StatusConfirmed && e.StartedAt(now) {
		return ErrEventEnded("this hunt has already started")
	}
	return nil
}

// NextWaitlistPosition appends to the end of the queue.
func NextWaitlistPosition(currentMax int) int {
	if currentMax < 1 {
		return 1
	}
	return currentMax + 1
}

// CalculateExpiration returns the deadline for an open request: RequestWindow from now,
// clamped to one second before the hunt starts.
func CalculateExpiration(now, start time.Time) time.Time {
	deadline := now.Add(RequestWindow)
	if start.IsZero() || deadline.Before(start) {
		return deadline
	}
	return start.Add(-time.Second)
}

func IsBlocked(p Participant) bool {
	return p.RejectionCount >= BlockThreshold
}

// PromotionTarget is where a waitlisted participant lands when a seat frees up.
func PromotionTarget(e Event, p Participant) ParticipantStatus {
	if e.RequiresApproval {
		return StatusPending
	}
	if e.IsPaid && !p.PaymentStatus.Settled() {
		return StatusPending
	}
	return StatusConfirmed
}

// OfflinePaymentGate returns the reason a participant may not pay, or "" when allowed.
// It is shared by online checkout and the manual "mark paid" path.
func OfflinePaymentGate(e Event, p Participant, found bool) string {
	switch {
	case !found:
		return GateReasonNotParticipant
	case IsBlocked(p):
		return GateReasonBlocked
	case !e.IsPaid:
		return GateReasonFreeEvent
	case p.PaymentStatus.Settled():
		return GateReasonAlreadyPaid
	case p.IsPaymentProcessing:
		return GateReasonInFlight
	case p.Status != StatusPending || p.PaymentStatus != PaymentPending:
		return GateReasonNotPayable
	}
	return ""
}

// PaymentGate returns the reason an online payment may not start, or "" when allowed.
// confirmed is the event's current confirmed count.
func PaymentGate(e Event, p Participant, found bool, confirmed int) string {
	if reason := OfflinePaymentGate(e, p, found); reason != "" {
		return reason
	}
	if !e.RequiresApproval && !e.HasRoom(confirmed) {
		// success would confirm the seat directly
		return GateReasonAtCapacity
	}
	return ""
}

// ----------------------
// Participant transitions
// ----------------------

// ResetForRejoin clears request state from a previous cancelled relationship.
// RejectionCount is kept: bans outlive cancellations.
func (p *Participant) ResetForRejoin(now time.Time) {
	p.WaitlistPosition = nil
	p.RequestExpiresAt = nil
	p.IsPaymentProcessing = false
	p.PaymentRef = nil
	p.PaidAt = nil
	p.ConfirmedAt = nil
	p.CancelledAt = nil
	p.CancelReason = nil
	p.JoinedAt = now
	p.UpdatedAt = now
}

func (p *Participant) Confirm(now time.Time) {
	p.Status = StatusConfirmed
	p.WaitlistPosition = nil
	p.RequestExpiresAt = nil
	p.ConfirmedAt = &now
	p.UpdatedAt = now
}

func (p *Participant) MarkPending(expiresAt time.Time, now time.Time) {
	p.Status = StatusPending
	p.WaitlistPosition = nil
	p.RequestExpiresAt = &expiresAt
	p.UpdatedAt = now
}

func (p *Participant) Waitlist(position int, expiresAt time.Time, now time.Time) {
	p.Status = StatusWaitlisted
	p.WaitlistPosition = &position
	p.RequestExpiresAt = &expiresAt
	p.UpdatedAt = now
}

func (p *Participant) Cancel(reason string, now time.Time) {
	p.Status = StatusCancelled
	p.WaitlistPosition = nil
	p.RequestExpiresAt = nil
	p.CancelledAt = &now
	p.CancelReason = &reason
	p.UpdatedAt = now
}

// Reject applies an organizer rejection and reports whether the user is now banned.
func (p *Participant) Reject(now time.Time) (rejectionCount int, blocked bool) {
	p.RejectionCount++
	p.Cancel("rejected", now)
	return p.RejectionCount, IsBlocked(*p)
}

// ApplyPaymentSuccess records settled money. It reports false when the payment was
// already settled so redelivered webhooks change nothing.
func (p *Participant) ApplyPaymentSuccess(now time.Time) bool {
	p.IsPaymentProcessing = false
	if p.PaymentStatus.Settled() {
		return false
	}
	p.PaymentStatus = PaymentConfirmed
	p.PaidAt = &now
	p.UpdatedAt = now
	return true
}

// ApplyPaymentFailure returns the participant to pending so they can retry.
// The original deadline is kept so failed payments never extend the request.
func (p *Participant) ApplyPaymentFailure(now time.Time) bool {
	if p.PaymentStatus.Settled() {
		return false
	}
	p.IsPaymentProcessing = false
	p.PaymentRef = nil
	if p.Status == StatusCancelled {
		p.UpdatedAt = now
		return true
	}
	p.Status = StatusPending
	p.PaymentStatus = PaymentPending
	p.WaitlistPosition = nil
	p.UpdatedAt = now
	return true
}

// ReleasePaymentLock handles abandoned checkouts: only the lock is touched.
func (p *Participant) ReleasePaymentLock(now time.Time) bool {
	if !p.IsPaymentProcessing {
		return false
	}
	p.IsPaymentProcessing = false
	p.UpdatedAt = now
	return true
}
