package audit

import (
	"context"

	"github.com/aurorahunt/hunt-service/internal/domain"
	appCtx "github.com/aurorahunt/hunt-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for participation transitions
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

func (l *Logger) participant(ctx context.Context, ev *zerolog.Event, action string, p domain.Participant) *zerolog.Event {
	return ev.
		Str("action", action).
		Str("event_id", p.EventID.String()).
		Str("user_id", p.UserID.String()).
		Str("participant_id", p.ID.String()).
		Str("status", string(p.Status)).
		Str("trace_id", appCtx.TraceID(ctx))
}

// Joined logs a successful join attempt
func (l *Logger) Joined(ctx context.Context, p domain.Participant) {
	ev := l.participant(ctx, l.log.Info(), "joined", p)
	if p.WaitlistPosition != nil {
		ev = ev.Int("waitlist_position", *p.WaitlistPosition)
	}
	ev.Msg("User joined hunt")
}

// Approved logs an organizer approval
func (l *Logger) Approved(ctx context.Context, p domain.Participant, actorID uuid.UUID) {
	l.participant(ctx, l.log.Info(), "approved", p).
		Str("actor_user_id", actorID.String()).
		Msg("Organizer approved participant")
}

// Rejected logs an organizer rejection; blocked rejections are warnings
func (l *Logger) Rejected(ctx context.Context, p domain.Participant, actorID uuid.UUID, blocked bool) {
	ev := l.log.Info()
	action := "rejected"
	if blocked {
		ev = l.log.Warn()
		action = "blocked"
	}
	l.participant(ctx, ev, action, p).
		Str("actor_user_id", actorID.String()).
		Int("rejection_count", p.RejectionCount).
		Msg("Organizer rejected participant")
}

// Promoted logs when a user leaves the waitlist
func (l *Logger) Promoted(ctx context.Context, p domain.Participant) {
	l.participant(ctx, l.log.Info(), "promoted", p).
		Msg("User promoted from waitlist")
}

// Cancelled logs self-cancellation and expiry
func (l *Logger) Cancelled(ctx context.Context, p domain.Participant, reason string) {
	action := "cancelled"
	if reason == "expired" {
		action = "expired"
	}
	l.participant(ctx, l.log.Info(), action, p).
		Str("reason", reason).
		Msg("Participation cancelled")
}

// PaymentLocked logs the start of a checkout attempt
func (l *Logger) PaymentLocked(ctx context.Context, p domain.Participant) {
	l.participant(ctx, l.log.Info(), "payment_locked", p).
		Msg("Payment lock taken")
}

// PaymentUnlocked logs a lock release and why it happened
func (l *Logger) PaymentUnlocked(ctx context.Context, p domain.Participant, reason string) {
	l.participant(ctx, l.log.Warn(), "payment_unlocked", p).
		Str("reason", reason).
		Msg("Payment lock released")
}

// PaymentApplied logs a reconciled provider callback
func (l *Logger) PaymentApplied(ctx context.Context, p domain.Participant, eventType string, changed bool) {
	l.participant(ctx, l.log.Info(), "payment_applied", p).
		Str("payment_event", eventType).
		Str("payment_status", string(p.PaymentStatus)).
		Bool("changed", changed).
		Msg("Payment event applied")
}

// OutboxMessageDead logs when an outbox message is moved to dead status
func (l *Logger) OutboxMessageDead(ctx context.Context, messageID, routingKey string, retries int) {
	l.log.Error().
		Str("action", "outbox_dead").
		Str("message_id", messageID).
		Str("routing_key", routingKey).
		Int("retries", retries).
		Str("trace_id", appCtx.TraceID(ctx)).
		Msg("Outbox message moved to dead status")
}
