package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func (r *Repository) FindParticipant(ctx context.Context, participantID uuid.UUID) (domain.Participant, error) {
	return r.getOne(ctx, `WHERE id = $1`, participantID)
}

func (r *Repository) GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participant, error) {
	return r.getOne(ctx, `WHERE event_id = $1 AND user_id = $2`, eventID, userID)
}

func (r *Repository) getOne(ctx context.Context, where string, args ...any) (domain.Participant, error) {
	p, err := scanParticipant(r.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Participant{}, domain.ErrParticipantNotFound()
		}
		return domain.Participant{}, err
	}
	return p, nil
}

func (r *Repository) queryParticipants(ctx context.Context, q string, args ...any) ([]domain.Participant, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// trim drops the look-ahead row and builds the cursor for the next page.
func trim(out []domain.Participant, limit int, cursorOf func(domain.Participant) domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor) {
	if len(out) <= limit {
		return out, nil
	}
	c := cursorOf(out[limit-1])
	return out[:limit], &c
}

func byJoin(p domain.Participant) domain.KeysetCursor {
	return domain.KeysetCursor{CreatedAt: p.JoinedAt, ID: p.ID}
}

// /me/hunts : ORDER BY joined_at DESC, id DESC
// cursor means "start after this item" in DESC order -> WHERE (joined_at, id) < (cursor.created_at, cursor.id)
func (r *Repository) ListMyHunts(ctx context.Context, userID uuid.UUID, statuses []domain.ParticipantStatus, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{userID}
	where := "WHERE user_id = $1"
	argN := 2

	if len(statuses) > 0 {
		ss := make([]string, len(statuses))
		for i, s := range statuses {
			ss[i] = string(s)
		}
		where += fmt.Sprintf(" AND status = ANY($%d)", argN)
		args = append(args, ss)
		argN++
	}
	if cursor != nil {
		where += fmt.Sprintf(" AND (joined_at, id) < ($%d, $%d)", argN, argN+1)
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM participants
		%s
		ORDER BY joined_at DESC, id DESC
		LIMIT %d
	`, participantColumns, where, limit+1)

	out, err := r.queryParticipants(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	out, next := trim(out, limit, byJoin)
	return out, next, nil
}

// participants: confirmed only, ORDER BY joined_at ASC, id ASC
func (r *Repository) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{eventID}
	where := "WHERE event_id = $1 AND status = 'confirmed'"

	// ASC cursor: WHERE (joined_at, id) > (cursor.created_at, cursor.id)
	if cursor != nil {
		where += " AND (joined_at, id) > ($2, $3)"
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM participants
		%s
		ORDER BY joined_at ASC, id ASC
		LIMIT %d
	`, participantColumns, where, limit+1)

	out, err := r.queryParticipants(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	out, next := trim(out, limit, byJoin)
	return out, next, nil
}

// waitlist: queue order, keyed on position
func (r *Repository) ListWaitlist(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{eventID}
	where := "WHERE event_id = $1 AND status = 'waitlisted'"
	if cursor != nil {
		where += " AND waitlist_position > $2"
		args = append(args, cursor.Position)
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM participants
		%s
		ORDER BY waitlist_position ASC
		LIMIT %d
	`, participantColumns, where, limit+1)

	out, err := r.queryParticipants(ctx, q, args...)
	if err != nil {
		return nil, nil, err
	}
	out, next := trim(out, limit, func(p domain.Participant) domain.KeysetCursor {
		return domain.KeysetCursor{CreatedAt: p.JoinedAt, ID: p.ID, Position: *p.WaitlistPosition}
	})
	return out, next, nil
}

func (r *Repository) GetStats(ctx context.Context, eventID uuid.UUID) (domain.EventStats, error) {
	e, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return domain.EventStats{}, err
	}
	s := domain.EventStats{EventID: eventID, Capacity: e.Capacity}
	err = r.pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'confirmed'),
		       count(*) FILTER (WHERE status = 'pending'),
		       count(*) FILTER (WHERE status = 'waitlisted')
		FROM participants
		WHERE event_id = $1
	`, eventID).Scan(&s.ConfirmedCount, &s.PendingCount, &s.WaitlistedCount)
	if err != nil {
		return domain.EventStats{}, err
	}
	return s, nil
}

// ListExpired skips participants with a checkout in flight; the webhook resolves them first.
func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Participant, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryParticipants(ctx, `
		SELECT `+participantColumns+`
		FROM participants
		WHERE status IN ('pending', 'waitlisted')
		  AND request_expires_at < $1
		  AND NOT is_payment_processing
		ORDER BY request_expires_at ASC
		LIMIT $2
	`, now, limit)
}
