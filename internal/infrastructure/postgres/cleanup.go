package postgres

import (
	"context"
	"time"

	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
)

// RunProcessedCleanup periodically deletes processed_messages fences older than
// retention so the table does not grow without bound. Redeliveries older than
// retention are no longer deduplicated. Blocks until ctx is done.
func (r *Repository) RunProcessedCleanup(ctx context.Context, retention, every time.Duration) error {
	log := logger.Logger.With().Str("component", "processed_cleanup").Logger()
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	// Run once immediately on startup
	r.purgeProcessed(ctx, retention)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopped")
			return nil
		case <-ticker.C:
			r.purgeProcessed(ctx, retention)
		}
	}
}

func (r *Repository) purgeProcessed(ctx context.Context, retention time.Duration) {
	n, err := r.PurgeProcessed(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("processed_messages cleanup failed")
		return
	}
	if n > 0 {
		logger.Logger.Info().Int64("deleted", n).Msg("processed_messages cleaned up")
	}
}

// PurgeProcessed deletes fences recorded before cutoff.
func (r *Repository) PurgeProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM processed_messages WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
