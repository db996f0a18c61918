package service

import (
	"context"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/google/uuid"
)

type SnapshotResult struct {
	Applied  bool
	Promoted int
}

// freedSeats is how many waitlisted participants a capacity change may promote;
// -1 means no bound (capacity lifted to unlimited).
func freedSeats(prev, next domain.Event) int {
	switch {
	case prev.Capacity == nil:
		return 0
	case next.Capacity == nil:
		return -1
	case *next.Capacity > *prev.Capacity:
		return *next.Capacity - *prev.Capacity
	}
	return 0
}

// ApplyEventSnapshot stores the organizer's view of a hunt. Out-of-order snapshots are
// dropped; a capacity increase promotes from the waitlist once per new seat.
func (s *HuntService) ApplyEventSnapshot(ctx context.Context, messageID string, snap domain.Event) (SnapshotResult, error) {
	now := s.now()
	var res SnapshotResult
	var stored domain.Event
	fx := &effects{}
	err := s.store.SyncEventTx(ctx, snap.ID, func(tx domain.EventTx, exists bool) error {
		fx.fns = fx.fns[:0]
		res = SnapshotResult{}

		first, err := tx.MarkProcessed(ctx, messageID, "hunt_snapshot")
		if err != nil || !first {
			return err
		}
		prev := tx.Event()
		if exists && !snap.UpdatedAt.IsZero() && snap.UpdatedAt.Before(prev.UpdatedAt) {
			return nil
		}
		// cancellation is terminal
		snap.Canceled = snap.Canceled || prev.Canceled
		if err := tx.SaveEvent(ctx, snap); err != nil {
			return err
		}
		stored = tx.Event()
		res.Applied = true

		if !exists {
			return nil
		}
		seats := freedSeats(prev, snap)
		for seats != 0 {
			promoted, err := s.promoteNextTx(ctx, tx, fx, now)
			if err != nil {
				return err
			}
			if !promoted {
				break
			}
			res.Promoted++
			if seats > 0 {
				seats--
			}
		}
		return nil
	})
	if err != nil {
		return SnapshotResult{}, err
	}
	for _, f := range fx.fns {
		f()
	}
	if res.Applied {
		s.cacheWindow(ctx, stored)
	}
	return res, nil
}

// ApplyEventCanceled marks the hunt cancelled. Joins fail afterwards; existing
// participants are left as they are.
func (s *HuntService) ApplyEventCanceled(ctx context.Context, messageID string, eventID uuid.UUID) (bool, error) {
	var applied bool
	var stored domain.Event
	err := s.store.SyncEventTx(ctx, eventID, func(tx domain.EventTx, exists bool) error {
		applied = false
		first, err := tx.MarkProcessed(ctx, messageID, "hunt_canceled")
		if err != nil || !first {
			return err
		}
		e := tx.Event()
		e.Canceled = true
		e.UpdatedAt = s.now()
		if err := tx.SaveEvent(ctx, e); err != nil {
			return err
		}
		stored = tx.Event()
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.cacheWindow(ctx, stored)
	}
	return applied, nil
}

func (s *HuntService) cacheWindow(ctx context.Context, e domain.Event) {
	if s.cache == nil {
		return
	}
	w := domain.EventWindow{EventID: e.ID, EndTime: e.EndTime, Canceled: e.Canceled}
	if err := s.cache.SetEventWindow(ctx, w); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("event_id", e.ID.String()).Msg("event window cache write failed")
	}
}
