// Package counters keeps per-user aggregates in step with participant.confirmed.
package counters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Maintainer struct {
	store domain.CounterStore
	log   zerolog.Logger
}

func New(store domain.CounterStore) *Maintainer {
	return &Maintainer{
		store: store,
		log:   logger.Logger.With().Str("component", "counters").Logger(),
	}
}

// HandleConfirmed bumps hunts_joined for the confirmed user once per message id.
// Payloads without a usable user id are dropped (nil error) so they are not redelivered.
func (m *Maintainer) HandleConfirmed(ctx context.Context, messageID string, p event.ParticipantPayload) error {
	uid, err := uuid.Parse(strings.TrimSpace(p.UserID))
	if err != nil {
		m.log.Warn().Err(err).Str("message_id", messageID).Msg("invalid user_id; dropping")
		return nil
	}
	applied, err := m.store.IncrementHuntsJoined(ctx, messageID, uid)
	if err != nil {
		return fmt.Errorf("increment hunts_joined: %w", err)
	}
	if !applied {
		m.log.Debug().Str("message_id", messageID).Msg("duplicate confirmation ignored")
	}
	return nil
}

// Drainer hands over outbox messages that were committed but not yet delivered.
type Drainer interface {
	DrainOutbox() []domain.Message
}

// Relay feeds an in-process outbox straight into the maintainer. It stands in
// for the broker round-trip when the service runs on the memory store.
func (m *Maintainer) Relay(ctx context.Context, src Drainer, every time.Duration) error {
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			m.RelayOnce(context.WithoutCancel(ctx), src)
			return nil
		case <-t.C:
			m.RelayOnce(ctx, src)
		}
	}
}

// RelayOnce drains src and applies every participant.confirmed message.
func (m *Maintainer) RelayOnce(ctx context.Context, src Drainer) int {
	applied := 0
	for _, msg := range src.DrainOutbox() {
		if msg.RoutingKey != domain.RKConfirmed {
			m.log.Debug().Str("routing_key", msg.RoutingKey).Str("message_id", msg.ID.String()).Msg("relayed")
			continue
		}
		p, ok := msg.Payload.(event.ParticipantPayload)
		if !ok {
			m.log.Warn().Str("message_id", msg.ID.String()).Msg("unexpected payload type; dropping")
			continue
		}
		if err := m.HandleConfirmed(ctx, msg.ID.String(), p); err != nil {
			m.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("counter update failed")
			continue
		}
		applied++
	}
	return applied
}
