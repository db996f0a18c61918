package postgres

import (
	"context"
	"errors"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetEvent reads the hunt snapshot used for organizer checks and stats.
func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM hunt_events WHERE id = $1`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound()
		}
		return domain.Event{}, err
	}
	return e, nil
}
