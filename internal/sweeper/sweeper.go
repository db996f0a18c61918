package sweeper

import (
	"context"
	"time"

	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/rs/zerolog"
)

type expirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// Sweeper cancels pending and waitlisted requests whose deadline passed.
type Sweeper struct {
	svc      expirer
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

func New(svc expirer, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		batch:    batch,
		log:      logger.Logger.With().Str("component", "expiry_sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Int("batch", s.batch).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs batches until one comes back short, so a backlog clears within one tick.
func (s *Sweeper) Sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		n, err := s.svc.ExpireStale(ctx, s.batch)
		total += n
		if err != nil {
			s.log.Error().Err(err).Int("expired", n).Msg("expire stale requests failed")
			break
		}
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		s.log.Info().Int("expired", total).Msg("expired stale requests")
	}
	return total
}
