package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	appCtx "github.com/aurorahunt/hunt-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const envelopeVersion = 1

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var (
	_ domain.Store        = (*Repository)(nil)
	_ domain.CounterStore = (*Repository)(nil)
)

// -------------------------
// Deadlock policy:
// Always lock in this order (for the same event id):
//   1) hunt_events row (FOR UPDATE)
//   2) participants rows of that event (FOR UPDATE)
// Every trigger goes through InEventTx/SyncEventTx, so two writers of the same
// hunt never interleave and no cycle can form.
// -------------------------

const eventColumns = `id, organizer_id, start_time, end_time, capacity,
	requires_approval, is_paid, price_cents, currency, waitlist_enabled, canceled, updated_at`

const participantColumns = `id, event_id, user_id, status, payment_status, rejection_count,
	waitlist_position, request_expires_at, is_payment_processing, payment_ref, paid_at,
	joined_at, updated_at, confirmed_at, cancelled_at, cancel_reason`

func (r *Repository) InEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx) error) error {
	return r.withEventTx(ctx, eventID, false, func(t *eventTx, _ bool) error { return fn(t) })
}

func (r *Repository) SyncEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx, exists bool) error) error {
	return r.withEventTx(ctx, eventID, true, func(t *eventTx, exists bool) error { return fn(t, exists) })
}

func (r *Repository) withEventTx(ctx context.Context, eventID uuid.UUID, create bool, fn func(t *eventTx, exists bool) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exists := true
	if create {
		// Placeholder row so there is something to lock; it only survives if fn commits.
		tag, err := tx.Exec(ctx, `INSERT INTO hunt_events (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, eventID)
		if err != nil {
			return mapErr(err)
		}
		exists = tag.RowsAffected() == 0
	}

	e, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM hunt_events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEventNotFound()
		}
		return mapErr(err)
	}

	t := &eventTx{tx: tx, event: e}
	if err := fn(t, exists); err != nil {
		return mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(err)
	}
	return nil
}

// mapErr turns lock conflicts into a retryable domain error; domain errors pass through.
func mapErr(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505", "55P03":
			return domain.ErrConcurrentUpdate(err)
		}
	}
	return err
}

type eventTx struct {
	tx    pgx.Tx
	event domain.Event
}

func (t *eventTx) Event() domain.Event { return t.event }

func (t *eventTx) SaveEvent(ctx context.Context, e domain.Event) error {
	e.ID = t.event.ID
	_, err := t.tx.Exec(ctx, `
		UPDATE hunt_events
		SET organizer_id = $2,
		    start_time = $3,
		    end_time = $4,
		    capacity = $5,
		    requires_approval = $6,
		    is_paid = $7,
		    price_cents = $8,
		    currency = $9,
		    waitlist_enabled = $10,
		    canceled = $11,
		    updated_at = $12
		WHERE id = $1
	`, e.ID, nullUUID(e.OrganizerID), nullTime(e.StartTime), nullTime(e.EndTime), e.Capacity,
		e.RequiresApproval, e.IsPaid, e.PriceCents, e.Currency, e.WaitlistEnabled, e.Canceled,
		updatedAt(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	t.event = e
	return nil
}

func (t *eventTx) Participant(ctx context.Context, userID uuid.UUID) (domain.Participant, bool, error) {
	return t.lockOne(ctx, `WHERE event_id = $1 AND user_id = $2`, t.event.ID, userID)
}

func (t *eventTx) ParticipantByID(ctx context.Context, id uuid.UUID) (domain.Participant, bool, error) {
	return t.lockOne(ctx, `WHERE event_id = $1 AND id = $2`, t.event.ID, id)
}

func (t *eventTx) lockOne(ctx context.Context, where string, args ...any) (domain.Participant, bool, error) {
	p, err := scanParticipant(t.tx.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants `+where+` FOR UPDATE`, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, err
	}
	return p, true, nil
}

func (t *eventTx) CountConfirmed(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*) FROM participants WHERE event_id = $1 AND status = 'confirmed'
	`, t.event.ID).Scan(&n)
	return n, err
}

func (t *eventTx) MaxWaitlistPosition(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(waitlist_position), 0)
		FROM participants
		WHERE event_id = $1 AND status = 'waitlisted'
	`, t.event.ID).Scan(&n)
	return n, err
}

func (t *eventTx) NextWaitlisted(ctx context.Context) (domain.Participant, bool, error) {
	return t.lockOne(ctx, `
		WHERE event_id = $1 AND status = 'waitlisted'
		ORDER BY waitlist_position ASC, joined_at ASC, id ASC
		LIMIT 1`, t.event.ID)
}

func (t *eventTx) Save(ctx context.Context, p domain.Participant) error {
	p.EventID = t.event.ID
	_, err := t.tx.Exec(ctx, `
		INSERT INTO participants (`+participantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    payment_status = EXCLUDED.payment_status,
		    rejection_count = EXCLUDED.rejection_count,
		    waitlist_position = EXCLUDED.waitlist_position,
		    request_expires_at = EXCLUDED.request_expires_at,
		    is_payment_processing = EXCLUDED.is_payment_processing,
		    payment_ref = EXCLUDED.payment_ref,
		    paid_at = EXCLUDED.paid_at,
		    joined_at = EXCLUDED.joined_at,
		    updated_at = EXCLUDED.updated_at,
		    confirmed_at = EXCLUDED.confirmed_at,
		    cancelled_at = EXCLUDED.cancelled_at,
		    cancel_reason = EXCLUDED.cancel_reason
	`, p.ID, p.EventID, p.UserID, string(p.Status), string(p.PaymentStatus), p.RejectionCount,
		p.WaitlistPosition, p.RequestExpiresAt, p.IsPaymentProcessing, p.PaymentRef, p.PaidAt,
		p.JoinedAt, p.UpdatedAt, p.ConfirmedAt, p.CancelledAt, p.CancelReason)
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

// Emit writes the message to the outbox wrapped in the shared envelope.
func (t *eventTx) Emit(ctx context.Context, m domain.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	traceID := strings.TrimSpace(appCtx.TraceID(ctx))
	body, err := json.Marshal(event.DomainEventEnvelope[any]{
		Version:    envelopeVersion,
		Producer:   event.Producer,
		TraceID:    traceID,
		MessageID:  m.ID.String(),
		OccurredAt: time.Now().UTC(),
		Payload:    m.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		VALUES ($1, $2, $3, $4, NOW(), 'pending')
	`, m.ID, traceID, m.RoutingKey, body)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}

func (t *eventTx) MarkProcessed(ctx context.Context, messageID, handler string) (bool, error) {
	return markProcessedTx(ctx, t.tx, messageID, handler)
}

// -------------------------
// row helpers
// -------------------------

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	var organizer *uuid.UUID
	var start, end *time.Time
	err := row.Scan(&e.ID, &organizer, &start, &end, &e.Capacity,
		&e.RequiresApproval, &e.IsPaid, &e.PriceCents, &e.Currency, &e.WaitlistEnabled, &e.Canceled, &e.UpdatedAt)
	if err != nil {
		return domain.Event{}, err
	}
	if organizer != nil {
		e.OrganizerID = *organizer
	}
	if start != nil {
		e.StartTime = start.UTC()
	}
	if end != nil {
		e.EndTime = end.UTC()
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	var status, payment string
	err := row.Scan(&p.ID, &p.EventID, &p.UserID, &status, &payment, &p.RejectionCount,
		&p.WaitlistPosition, &p.RequestExpiresAt, &p.IsPaymentProcessing, &p.PaymentRef, &p.PaidAt,
		&p.JoinedAt, &p.UpdatedAt, &p.ConfirmedAt, &p.CancelledAt, &p.CancelReason)
	if err != nil {
		return domain.Participant{}, err
	}
	p.Status = domain.ParticipantStatus(status)
	p.PaymentStatus = domain.PaymentStatus(payment)
	return p, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func updatedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
