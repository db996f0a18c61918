package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
)

// markProcessedTx records (message_id, handler_name) inside tx. The fence and the
// handler's writes share one commit, so a rolled-back attempt can be redelivered.
// first=false means the message was already handled.
func markProcessedTx(ctx context.Context, tx pgx.Tx, messageID, handlerName string) (first bool, err error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		// nothing to dedupe on; consumers derive a body hash before getting here
		return true, nil
	}
	handlerName = strings.TrimSpace(handlerName)
	if handlerName == "" {
		handlerName = "unknown"
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_messages (message_id, handler_name)
		VALUES ($1, $2)
		ON CONFLICT (message_id, handler_name) DO NOTHING
	`, messageID, handlerName)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ProcessOnce runs fn in its own transaction behind the processed_messages fence.
// Duplicates skip fn and report (false, nil).
func (r *Repository) ProcessOnce(ctx context.Context, messageID, handlerName string, fn func(tx pgx.Tx) error) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	first, err := markProcessedTx(ctx, tx, messageID, handlerName)
	if err != nil || !first {
		return false, mapErr(err)
	}
	if err := fn(tx); err != nil {
		return false, mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, mapErr(err)
	}
	return true, nil
}
