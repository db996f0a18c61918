package domain

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantStatus string

const (
	StatusPending    ParticipantStatus = "pending"
	StatusConfirmed  ParticipantStatus = "confirmed"
	StatusWaitlisted ParticipantStatus = "waitlisted"
	StatusCancelled  ParticipantStatus = "cancelled"
)

// Active reports whether the status blocks a fresh join.
func (s ParticipantStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusWaitlisted
}

type PaymentStatus string

const (
	PaymentNone       PaymentStatus = "none"
	PaymentPending    PaymentStatus = "pending"
	PaymentMarkedPaid PaymentStatus = "marked_paid"
	PaymentConfirmed  PaymentStatus = "confirmed"
	PaymentReceived   PaymentStatus = "received"
)

// Settled is true once money is known to have arrived.
func (s PaymentStatus) Settled() bool {
	return s == PaymentConfirmed || s == PaymentReceived
}

// Event is the read-model of a hunt owned by the event service.
type Event struct {
	ID               uuid.UUID
	OrganizerID      uuid.UUID
	StartTime        time.Time
	EndTime          time.Time
	Capacity         *int // nil = unlimited
	RequiresApproval bool
	IsPaid           bool
	PriceCents       int64
	Currency         string
	WaitlistEnabled  bool
	Canceled         bool
	UpdatedAt        time.Time
}

// AcceptingAt is false once the hunt is over or was called off.
func (e Event) AcceptingAt(now time.Time) bool {
	if e.Canceled {
		return false
	}
	return e.EndTime.IsZero() || now.Before(e.EndTime)
}

func (e Event) StartedAt(now time.Time) bool {
	return !e.StartTime.IsZero() && !now.Before(e.StartTime)
}

// HasRoom reports whether one more confirmed participant fits.
func (e Event) HasRoom(confirmed int) bool {
	return e.Capacity == nil || confirmed < *e.Capacity
}

type Participant struct {
	ID      uuid.UUID
	EventID uuid.UUID
	UserID  uuid.UUID

	Status              ParticipantStatus
	PaymentStatus       PaymentStatus
	RejectionCount      int
	WaitlistPosition    *int
	RequestExpiresAt    *time.Time
	IsPaymentProcessing bool
	PaymentRef          *string
	PaidAt              *time.Time

	JoinedAt     time.Time
	UpdatedAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

type EventStats struct {
	EventID         uuid.UUID
	Capacity        *int
	ConfirmedCount  int
	PendingCount    int
	WaitlistedCount int
}

// KeysetCursor marks the last item of a page. Waitlist pages key on Position.
type KeysetCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
	Position  int
}

// Routing keys for outbox messages.
const (
	RKJoined         = "participant.joined"
	RKConfirmed      = "participant.confirmed"
	RKApproved       = "participant.approved"
	RKRejected       = "participant.rejected"
	RKBlocked        = "participant.blocked"
	RKPromoted       = "participant.promoted"
	RKCancelled      = "participant.cancelled"
	RKExpired        = "participant.expired"
	RKRefundRequired = "payment.refund_required"
)

// Message is an outbound domain event recorded in the same transaction as the state change.
type Message struct {
	ID         uuid.UUID
	RoutingKey string
	Payload    any
}
