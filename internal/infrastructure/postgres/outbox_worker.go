package postgres

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/aurorahunt/hunt-service/internal/audit"
	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	appCtx "github.com/aurorahunt/hunt-service/internal/pkg/context"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	outboxBatchSize   = 20
	outboxMaxAttempts = 12 // ~ up to hours with exponential backoff
	confirmWait       = 300 * time.Millisecond
)

// backoff: exponential with jitter, bounded
func computeNextRetry(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// base: 2^attempt seconds, cap at 30 minutes
	sec := math.Pow(2, float64(attempt))
	if sec < 5 {
		sec = 5
	}
	if sec > 1800 {
		sec = 1800
	}

	d := time.Duration(sec) * time.Second

	// jitter +/-20%
	j := time.Duration(rand.Int63n(int64(d/5))) - d/10
	return d + j
}

type outboxMsg struct {
	ID         int64
	MessageID  uuid.UUID
	TraceID    string
	RoutingKey string
	Payload    []byte
	Attempt    int
}

// OutboxWorker relays committed outbox rows to the exchange with publisher confirms.
type OutboxWorker struct {
	repo      *Repository
	rabbitURL string
	exchange  string
	audit     *audit.Logger
}

func (r *Repository) NewOutboxWorker(rabbitURL, exchange string, a *audit.Logger) *OutboxWorker {
	if a == nil {
		a = audit.New(logger.Logger)
	}
	return &OutboxWorker{repo: r, rabbitURL: rabbitURL, exchange: exchange, audit: a}
}

// Run publishes until ctx is done, reconnecting with backoff when the broker drops.
func (w *OutboxWorker) Run(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	for attempt := 0; ; attempt++ {
		err := w.session(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("stopped")
			return nil
		}
		if err == nil {
			attempt = 0
		}
		wait := computeNextRetry(attempt)
		log.Warn().Err(err).Dur("retry_in", wait).Msg("outbox session ended; reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (w *OutboxWorker) session(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	conn, err := amqp.Dial(w.rabbitURL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(w.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", w.exchange, err)
	}

	// Publisher confirms + mandatory returns
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	confirmCh := ch.NotifyPublish(make(chan amqp.Confirmation, 100))
	returnCh := ch.NotifyReturn(make(chan amqp.Return, 100))
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	log.Info().Str("exchange", w.exchange).Msg("outbox worker connected")

	// Polling interval can be longer because next_retry_at gates load.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr string
	var lastAt time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return fmt.Errorf("connection closed")
			}
			return amqpErr
		case <-ticker.C:
			if err := w.processBatch(ctx, ch, confirmCh, returnCh); err != nil {
				if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
					log.Warn().Err(err).Msg("outbox batch failed")
					lastErr = err.Error()
					lastAt = time.Now()
				}
			} else {
				lastErr = ""
			}
		}
	}
}

// claimBatch marks due rows in-flight for a short window so a second worker skips them.
func (r *Repository) claimBatch(ctx context.Context) ([]outboxMsg, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, message_id, trace_id, routing_key, payload, attempt
		FROM outbox
		WHERE status = 'pending'
		  AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC, occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, outboxBatchSize)
	if err != nil {
		return nil, err
	}

	var messages []outboxMsg
	for rows.Next() {
		var m outboxMsg
		if err := rows.Scan(&m.ID, &m.MessageID, &m.TraceID, &m.RoutingKey, &m.Payload, &m.Attempt); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	if _, err := tx.Exec(ctx, `
		UPDATE outbox
		SET next_retry_at = NOW() + INTERVAL '15 seconds'
		WHERE id = ANY($1)
	`, ids); err != nil {
		return nil, err
	}
	return messages, tx.Commit(ctx)
}

func (w *OutboxWorker) processBatch(
	ctx context.Context,
	ch *amqp.Channel,
	confirmCh <-chan amqp.Confirmation,
	returnCh <-chan amqp.Return,
) error {
	messages, err := w.repo.claimBatch(ctx)
	if err != nil {
		return err
	}

	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	for _, m := range messages {
		// Drain stale notifications
	DrainLoop:
		for {
			select {
			case <-returnCh:
				continue
			case <-confirmCh:
				continue
			default:
				break DrainLoop
			}
		}

		pub := amqp.Publishing{
			ContentType:   "application/json",
			Body:          m.Payload,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			MessageId:     m.MessageID.String(),
			CorrelationId: m.TraceID,
			AppId:         event.Producer,
		}

		if err := ch.PublishWithContext(ctx, w.exchange, m.RoutingKey, true, false, pub); err != nil {
			w.fail(ctx, m, fmt.Sprintf("publish error: %v", err))
			continue
		}

		// Wait for Confirm AND possible Return (mandatory); Return usually arrives first.
		var gotReturn, gotConfirm bool
		var conf amqp.Confirmation

		deadline := time.After(confirmWait * 2)
	WaitLoop:
		for !gotConfirm {
			select {
			case ret := <-returnCh:
				gotReturn = true
				w.fail(ctx, m, fmt.Sprintf("NO_ROUTE: code=%d text=%s exchange=%s rk=%s",
					ret.ReplyCode, ret.ReplyText, ret.Exchange, ret.RoutingKey))
			case c := <-confirmCh:
				gotConfirm = true
				conf = c
			case <-deadline:
				w.fail(ctx, m, "confirm/return timeout")
				break WaitLoop
			}
		}

		if gotReturn || !gotConfirm {
			continue
		}
		if !conf.Ack {
			w.fail(ctx, m, fmt.Sprintf("NACK: delivery_tag=%d", conf.DeliveryTag))
			continue
		}

		if _, err := w.repo.pool.Exec(ctx, `
			UPDATE outbox
			SET status = 'sent',
			    last_error = NULL
			WHERE id = $1
		`, m.ID); err != nil {
			log.Warn().Err(err).Int64("outbox_id", m.ID).Msg("mark sent failed; message may be published twice")
			continue
		}

		log.Info().
			Int64("outbox_id", m.ID).
			Str("message_id", m.MessageID.String()).
			Str("routing_key", m.RoutingKey).
			Msg("published")
	}

	return nil
}

func (w *OutboxWorker) fail(ctx context.Context, m outboxMsg, errMsg string) {
	log := logger.Logger.With().Str("component", "outbox_worker").Logger()

	nextAttempt := m.Attempt + 1
	if nextAttempt >= outboxMaxAttempts {
		_, _ = w.repo.pool.Exec(ctx, `
			UPDATE outbox
			SET status = 'dead',
			    attempt = $2,
			    last_error = $3
			WHERE id = $1
		`, m.ID, nextAttempt, errMsg)

		w.audit.OutboxMessageDead(appCtx.WithTraceID(ctx, m.TraceID), m.MessageID.String(), m.RoutingKey, nextAttempt)
		return
	}

	delay := computeNextRetry(nextAttempt)
	_, _ = w.repo.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt = $2,
		    next_retry_at = NOW() + $3::interval,
		    last_error = $4
		WHERE id = $1
	`, m.ID, nextAttempt, fmt.Sprintf("%f seconds", delay.Seconds()), errMsg)

	log.Warn().
		Int64("outbox_id", m.ID).
		Str("message_id", m.MessageID.String()).
		Str("routing_key", m.RoutingKey).
		Int("attempt", nextAttempt).
		Dur("retry_in", delay).
		Msg("outbox publish failed; scheduled retry")
}
