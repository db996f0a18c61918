package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists participants and the hunt read-model.
//
// Lock order for writers (same event):
//  1. the event row (InEventTx / SyncEventTx)
//  2. participant rows of that event
//
// Every trigger runs inside exactly one of these transactions so that the
// capacity check, record mutation and outbox messages commit together.
type Store interface {
	// InEventTx locks the event and runs fn. Returns ErrEventNotFound when unknown.
	InEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx EventTx) error) error
	// SyncEventTx is InEventTx for the snapshot consumer: a missing event is created
	// (zero value, exists=false) so fn can fill it in with SaveEvent.
	SyncEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx EventTx, exists bool) error) error

	FindParticipant(ctx context.Context, participantID uuid.UUID) (Participant, error)
	GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (Participant, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (Event, error)

	ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *KeysetCursor) ([]Participant, *KeysetCursor, error)
	ListWaitlist(ctx context.Context, eventID uuid.UUID, limit int, cursor *KeysetCursor) ([]Participant, *KeysetCursor, error)
	ListMyHunts(ctx context.Context, userID uuid.UUID, statuses []ParticipantStatus, limit int, cursor *KeysetCursor) ([]Participant, *KeysetCursor, error)
	GetStats(ctx context.Context, eventID uuid.UUID) (EventStats, error)

	// ListExpired returns pending/waitlisted participants whose request deadline passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Participant, error)
}

// EventTx is a unit of work scoped to one locked event.
type EventTx interface {
	Event() Event
	SaveEvent(ctx context.Context, e Event) error

	// Participant and ParticipantByID lock the row; found=false when absent.
	Participant(ctx context.Context, userID uuid.UUID) (p Participant, found bool, err error)
	ParticipantByID(ctx context.Context, id uuid.UUID) (p Participant, found bool, err error)

	CountConfirmed(ctx context.Context) (int, error)
	MaxWaitlistPosition(ctx context.Context) (int, error)
	// NextWaitlisted returns the waitlisted participant with the lowest position.
	NextWaitlisted(ctx context.Context) (p Participant, found bool, err error)

	// Save inserts or updates p.
	Save(ctx context.Context, p Participant) error
	// Emit records an outbound message in the same transaction.
	Emit(ctx context.Context, m Message) error
	// MarkProcessed fences inbound message ids; first=false means duplicate delivery.
	MarkProcessed(ctx context.Context, messageID, handler string) (first bool, err error)
}

// CounterStore maintains per-user aggregates fed by participant.confirmed.
type CounterStore interface {
	// IncrementHuntsJoined applies once per messageID; applied=false on redelivery.
	IncrementHuntsJoined(ctx context.Context, messageID string, userID uuid.UUID) (applied bool, err error)
	HuntsJoined(ctx context.Context, userID uuid.UUID) (int, error)
}

// EventWindow is the cached slice of an event used for join fast-fail.
type EventWindow struct {
	EventID  uuid.UUID `json:"event_id"`
	EndTime  time.Time `json:"end_time"`
	Canceled bool      `json:"canceled"`
}

type CacheRepository interface {
	GetEventWindow(ctx context.Context, eventID uuid.UUID) (EventWindow, error)
	SetEventWindow(ctx context.Context, w EventWindow) error
	AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type CheckoutRequest struct {
	ParticipantID  uuid.UUID
	EventID        uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	Currency       string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// PaymentProvider opens external checkout sessions. The provider reports the
// outcome later through the payment webhook, echoing the participant id.
type PaymentProvider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}
