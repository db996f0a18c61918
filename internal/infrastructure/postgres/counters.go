package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const countersHandler = "counters"

// IncrementHuntsJoined bumps user_stats.hunts_joined once per message id.
func (r *Repository) IncrementHuntsJoined(ctx context.Context, messageID string, userID uuid.UUID) (bool, error) {
	return r.ProcessOnce(ctx, messageID, countersHandler, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_stats (user_id, hunts_joined, updated_at)
			VALUES ($1, 1, NOW())
			ON CONFLICT (user_id) DO UPDATE
			SET hunts_joined = user_stats.hunts_joined + 1,
			    updated_at = NOW()
		`, userID)
		return err
	})
}

func (r *Repository) HuntsJoined(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT hunts_joined FROM user_stats WHERE user_id = $1`, userID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
