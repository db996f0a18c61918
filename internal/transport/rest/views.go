package rest

import (
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/service"
	"github.com/google/uuid"
)

type participantView struct {
	ID                  uuid.UUID  `json:"id"`
	EventID             uuid.UUID  `json:"event_id"`
	UserID              uuid.UUID  `json:"user_id"`
	Status              string     `json:"status"`
	PaymentStatus       string     `json:"payment_status"`
	RejectionCount      int        `json:"rejection_count"`
	WaitlistPosition    *int       `json:"waitlist_position,omitempty"`
	RequestExpiresAt    *time.Time `json:"request_expires_at,omitempty"`
	IsPaymentProcessing bool       `json:"is_payment_processing"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	JoinedAt            time.Time  `json:"joined_at"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CancelReason        *string    `json:"cancel_reason,omitempty"`
}

func toView(p domain.Participant) participantView {
	return participantView{
		ID:                  p.ID,
		EventID:             p.EventID,
		UserID:              p.UserID,
		Status:              string(p.Status),
		PaymentStatus:       string(p.PaymentStatus),
		RejectionCount:      p.RejectionCount,
		WaitlistPosition:    p.WaitlistPosition,
		RequestExpiresAt:    p.RequestExpiresAt,
		IsPaymentProcessing: p.IsPaymentProcessing,
		PaidAt:              p.PaidAt,
		JoinedAt:            p.JoinedAt,
		ConfirmedAt:         p.ConfirmedAt,
		CancelledAt:         p.CancelledAt,
		CancelReason:        p.CancelReason,
	}
}

func toViews(ps []domain.Participant) []participantView {
	out := make([]participantView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toView(p))
	}
	return out
}

type joinView struct {
	Participant      participantView `json:"participant"`
	Status           string          `json:"status"`
	RequiresApproval bool            `json:"requires_approval"`
	RequiresPayment  bool            `json:"requires_payment"`
	IsWaitlisted     bool            `json:"is_waitlisted"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	WaitlistPosition *int            `json:"waitlist_position,omitempty"`
	Message          string          `json:"message"`
}

func toJoinView(r service.JoinResult) joinView {
	return joinView{
		Participant:      toView(r.Participant),
		Status:           string(r.Status),
		RequiresApproval: r.RequiresApproval,
		RequiresPayment:  r.RequiresPayment,
		IsWaitlisted:     r.IsWaitlisted,
		ExpiresAt:        r.ExpiresAt,
		WaitlistPosition: r.WaitlistPosition,
		Message:          r.Message,
	}
}

type statsView struct {
	EventID         uuid.UUID `json:"event_id"`
	Capacity        *int      `json:"capacity"`
	ConfirmedCount  int       `json:"confirmed_count"`
	PendingCount    int       `json:"pending_count"`
	WaitlistedCount int       `json:"waitlisted_count"`
}
