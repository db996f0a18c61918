package event

import "time"

// Producer is stamped on every envelope this service publishes.
const Producer = "hunt-service"

// DomainEventEnvelope is the canonical envelope consumed across services.
// NOTE: message_id is optional for backward compatibility.
type DomainEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// HuntSnapshotPayload is carried by hunt.published and hunt.updated.
// Keep fields tolerant: extra fields from producer are ignored by json.Unmarshal.
type HuntSnapshotPayload struct {
	EventID          string    `json:"event_id"`
	OrganizerID      string    `json:"organizer_id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Capacity         *int      `json:"capacity,omitempty"` // nil = unlimited
	RequiresApproval bool      `json:"requires_approval"`
	IsPaid           bool      `json:"is_paid"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency,omitempty"`
	WaitlistEnabled  bool      `json:"waitlist_enabled"`
	Status           string    `json:"status,omitempty"` // published/canceled
	UpdatedAt        time.Time `json:"updated_at"`
}

// HuntCanceledPayload
// Accept both event_id and legacy id for robustness.
type HuntCanceledPayload struct {
	EventID string `json:"event_id,omitempty"`
	ID      string `json:"id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ParticipantPayload is the body of every participant.* and payment.* message we emit.
type ParticipantPayload struct {
	ParticipantID    string     `json:"participant_id"`
	EventID          string     `json:"event_id"`
	UserID           string     `json:"user_id"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status,omitempty"`
	PrevStatus       string     `json:"prev_status,omitempty"`
	WaitlistPosition *int       `json:"waitlist_position,omitempty"`
	RequestExpiresAt *time.Time `json:"request_expires_at,omitempty"`
	RejectionCount   int        `json:"rejection_count,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	ActorID          string     `json:"actor_id,omitempty"`
}
