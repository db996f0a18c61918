package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	appCtx "github.com/aurorahunt/hunt-service/internal/pkg/context"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/aurorahunt/hunt-service/internal/service"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1

	rkHuntPublished = "hunt.published"
	rkHuntUpdated   = "hunt.updated"
	rkHuntCanceled  = "hunt.canceled"
)

// SnapshotApplier is the part of the orchestrator fed by the event service.
type SnapshotApplier interface {
	ApplyEventSnapshot(ctx context.Context, messageID string, snap domain.Event) (service.SnapshotResult, error)
	ApplyEventCanceled(ctx context.Context, messageID string, eventID uuid.UUID) (bool, error)
}

// ConfirmedHandler maintains aggregates from participant.confirmed.
type ConfirmedHandler interface {
	HandleConfirmed(ctx context.Context, messageID string, p event.ParticipantPayload) error
}

// handlerFunc returns nil for poison messages (they are dropped) and an error
// for anything worth redelivering.
type handlerFunc func(ctx context.Context, routingKey, msgID string, raw json.RawMessage, log zerolog.Logger) error

type Consumer struct {
	rabbitURL string
	exchange  string
	queue     string
	keys      []string
	handle    handlerFunc
}

// NewSnapshotConsumer binds hunt.published/updated/canceled to the orchestrator.
func NewSnapshotConsumer(rabbitURL, exchange string, svc SnapshotApplier) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		queue:     "hunt-service.hunt-snapshots",
		keys:      []string{rkHuntPublished, rkHuntUpdated, rkHuntCanceled},
		handle: func(ctx context.Context, rk, msgID string, raw json.RawMessage, log zerolog.Logger) error {
			return applySnapshot(ctx, svc, rk, msgID, raw, log)
		},
	}
}

// NewCountersConsumer binds participant.confirmed to the counter maintainer.
func NewCountersConsumer(rabbitURL, exchange string, h ConfirmedHandler) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		queue:     "hunt-service.counters",
		keys:      []string{domain.RKConfirmed},
		handle: func(ctx context.Context, rk, msgID string, raw json.RawMessage, log zerolog.Logger) error {
			return applyConfirmed(ctx, h, msgID, raw, log)
		},
	}
}

// Run consumes until ctx is done, reconnecting after broker failures.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Str("queue", c.queue).Logger()
	wait := time.Second
	for {
		err := c.consume(ctx, log)
		if ctx.Err() != nil {
			log.Info().Msg("stopped")
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", wait).Msg("consumer session ended; reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		if wait < 30*time.Second {
			wait *= 2
		}
	}
}

func (c *Consumer) consume(ctx context.Context, log zerolog.Logger) error {
	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	// Ensure exchange exists (idempotent)
	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	for _, rk := range c.keys {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", rk, err)
		}
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, event.Producer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info().Msg("consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := c.handleDelivery(ctx, d.RoutingKey, d.MessageId, d.Body); err != nil {
				_ = d.Nack(false, true) // transient => requeue
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// messageID prefers envelope.message_id, then the AMQP MessageId, else a body hash.
func messageID(env, amqpID, routingKey string, body []byte) string {
	if id := strings.TrimSpace(env); id != "" {
		return id
	}
	if id := strings.TrimSpace(amqpID); id != "" {
		return id
	}
	h := sha256.Sum256(append([]byte(routingKey+"\n"), body...))
	return "hash:" + hex.EncodeToString(h[:])
}

func (c *Consumer) handleDelivery(ctx context.Context, routingKey, amqpMsgID string, body []byte) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", routingKey).
		Logger()

	var env event.DomainEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		return nil // poison => drop
	}
	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		return nil
	}

	msgID := messageID(env.MessageID, amqpMsgID, routingKey, body)
	traceID := strings.TrimSpace(env.TraceID)
	log := baseLog.With().
		Str("message_id", msgID).
		Str("trace_id", traceID).
		Logger()

	if traceID != "" {
		ctx = appCtx.WithTraceID(ctx, traceID)
	}
	if err := c.handle(ctx, routingKey, msgID, env.Payload, log); err != nil {
		log.Error().Err(err).Msg("processing failed (requeue)")
		return err
	}
	return nil
}

// snapshotEvent converts the producer's payload into the hunt read-model.
func snapshotEvent(p event.HuntSnapshotPayload) (domain.Event, error) {
	eid, err := uuid.Parse(strings.TrimSpace(p.EventID))
	if err != nil {
		return domain.Event{}, fmt.Errorf("event_id: %w", err)
	}
	oid, err := uuid.Parse(strings.TrimSpace(p.OrganizerID))
	if err != nil {
		return domain.Event{}, fmt.Errorf("organizer_id: %w", err)
	}
	if p.Capacity != nil && *p.Capacity < 0 {
		return domain.Event{}, fmt.Errorf("capacity: negative")
	}
	return domain.Event{
		ID:               eid,
		OrganizerID:      oid,
		StartTime:        p.StartTime.UTC(),
		EndTime:          p.EndTime.UTC(),
		Capacity:         p.Capacity,
		RequiresApproval: p.RequiresApproval,
		IsPaid:           p.IsPaid,
		PriceCents:       p.PriceCents,
		Currency:         strings.ToUpper(strings.TrimSpace(p.Currency)),
		WaitlistEnabled:  p.WaitlistEnabled,
		Canceled:         strings.EqualFold(strings.TrimSpace(p.Status), "canceled"),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}, nil
}

func applySnapshot(ctx context.Context, svc SnapshotApplier, routingKey, msgID string, raw json.RawMessage, log zerolog.Logger) error {
	switch routingKey {
	case rkHuntPublished, rkHuntUpdated:
		var p event.HuntSnapshotPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return nil
		}
		snap, err := snapshotEvent(p)
		if err != nil {
			log.Warn().Err(err).Msg("invalid snapshot; dropping")
			return nil
		}
		res, err := svc.ApplyEventSnapshot(ctx, msgID, snap)
		if err != nil {
			return err
		}
		if !res.Applied {
			log.Info().Msg("duplicate or stale snapshot ignored")
			return nil
		}
		log.Info().Int("promoted", res.Promoted).Str("event_id", snap.ID.String()).Msg("snapshot applied")
		return nil

	case rkHuntCanceled:
		var p event.HuntCanceledPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn().Err(err).Msg("invalid payload json; dropping")
			return nil
		}

		// tolerate legacy field
		eidStr := strings.TrimSpace(p.EventID)
		if eidStr == "" {
			eidStr = strings.TrimSpace(p.ID)
		}
		eid, err := uuid.Parse(eidStr)
		if err != nil {
			log.Warn().Err(err).Msg("invalid event_id; dropping")
			return nil
		}
		applied, err := svc.ApplyEventCanceled(ctx, msgID, eid)
		if err != nil {
			return err
		}
		if !applied {
			log.Info().Msg("duplicate delivery ignored")
		}
		return nil

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return nil
	}
}

func applyConfirmed(ctx context.Context, h ConfirmedHandler, msgID string, raw json.RawMessage, log zerolog.Logger) error {
	var p event.ParticipantPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Err(err).Msg("invalid payload json; dropping")
		return nil
	}
	return h.HandleConfirmed(ctx, msgID, p)
}
