// Package memory is a process-local Store used for STORE_DRIVER=memory and tests.
// Writers of one event are serialized by a per-event mutex; a transaction
// buffers its writes and applies them only when fn returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
)

type pairKey struct {
	eventID uuid.UUID
	userID  uuid.UUID
}

type Store struct {
	mu           sync.RWMutex
	events       map[uuid.UUID]domain.Event
	participants map[uuid.UUID]domain.Participant
	byPair       map[pairKey]uuid.UUID
	outbox       []domain.Message
	processed    map[string]struct{}
	huntsJoined  map[uuid.UUID]int

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func New() *Store {
	return &Store{
		events:       map[uuid.UUID]domain.Event{},
		participants: map[uuid.UUID]domain.Participant{},
		byPair:       map[pairKey]uuid.UUID{},
		processed:    map[string]struct{}{},
		huntsJoined:  map[uuid.UUID]int{},
		locks:        map[uuid.UUID]*sync.Mutex{},
	}
}

func (s *Store) eventLock(eventID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[eventID] = l
	}
	return l
}

func (s *Store) InEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx) error) error {
	l := s.eventLock(eventID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	e, ok := s.events[eventID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrEventNotFound()
	}

	t := newTx(s, e)
	if err := fn(t); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) SyncEventTx(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx, exists bool) error) error {
	l := s.eventLock(eventID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	e, ok := s.events[eventID]
	s.mu.RUnlock()
	if !ok {
		e = domain.Event{ID: eventID}
	}

	t := newTx(s, e)
	if err := fn(t, ok); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.eventDirty {
		s.events[t.event.ID] = t.event
	}
	for id, p := range t.writes {
		s.participants[id] = p
		s.byPair[pairKey{p.EventID, p.UserID}] = id
	}
	s.outbox = append(s.outbox, t.msgs...)
	for _, k := range t.processed {
		s.processed[k] = struct{}{}
	}
}

// Seed stores an event directly; used by tests and local runs without the consumer.
func (s *Store) Seed(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

// Outbox returns a copy of every message emitted so far.
func (s *Store) Outbox() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// DrainOutbox removes and returns pending messages.
func (s *Store) DrainOutbox() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

// -------------------------
// Reads
// -------------------------

func (s *Store) FindParticipant(ctx context.Context, participantID uuid.UUID) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound()
	}
	return p, nil
}

func (s *Store) GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey{eventID, userID}]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound()
	}
	return s.participants[id], nil
}

func (s *Store) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound()
	}
	return e, nil
}

func (s *Store) filter(keep func(p domain.Participant) bool) []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for _, p := range s.participants {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func before(a, b domain.Participant) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID.String() < b.ID.String()
}

func page(items []domain.Participant, limit int, cursorOf func(domain.Participant) domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor) {
	limit = clampLimit(limit)
	if len(items) <= limit {
		return items, nil
	}
	c := cursorOf(items[limit-1])
	return items[:limit], &c
}

func byJoin(p domain.Participant) domain.KeysetCursor {
	return domain.KeysetCursor{CreatedAt: p.JoinedAt, ID: p.ID}
}

func (s *Store) ListParticipants(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	items := s.filter(func(p domain.Participant) bool {
		if p.EventID != eventID || p.Status != domain.StatusConfirmed {
			return false
		}
		return cursor == nil || before(domain.Participant{JoinedAt: cursor.CreatedAt, ID: cursor.ID}, p)
	})
	sort.Slice(items, func(i, j int) bool { return before(items[i], items[j]) })
	out, next := page(items, limit, byJoin)
	return out, next, nil
}

func (s *Store) ListWaitlist(ctx context.Context, eventID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	items := s.filter(func(p domain.Participant) bool {
		if p.EventID != eventID || p.Status != domain.StatusWaitlisted || p.WaitlistPosition == nil {
			return false
		}
		return cursor == nil || *p.WaitlistPosition > cursor.Position
	})
	sort.Slice(items, func(i, j int) bool { return *items[i].WaitlistPosition < *items[j].WaitlistPosition })
	out, next := page(items, limit, func(p domain.Participant) domain.KeysetCursor {
		return domain.KeysetCursor{CreatedAt: p.JoinedAt, ID: p.ID, Position: *p.WaitlistPosition}
	})
	return out, next, nil
}

func (s *Store) ListMyHunts(ctx context.Context, userID uuid.UUID, statuses []domain.ParticipantStatus, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	want := map[domain.ParticipantStatus]bool{}
	for _, st := range statuses {
		want[st] = true
	}
	items := s.filter(func(p domain.Participant) bool {
		if p.UserID != userID {
			return false
		}
		if len(want) > 0 && !want[p.Status] {
			return false
		}
		return cursor == nil || before(p, domain.Participant{JoinedAt: cursor.CreatedAt, ID: cursor.ID})
	})
	// newest first
	sort.Slice(items, func(i, j int) bool { return before(items[j], items[i]) })
	out, next := page(items, limit, byJoin)
	return out, next, nil
}

func (s *Store) GetStats(ctx context.Context, eventID uuid.UUID) (domain.EventStats, error) {
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return domain.EventStats{}, err
	}
	st := domain.EventStats{EventID: eventID, Capacity: e.Capacity}
	for _, p := range s.filter(func(p domain.Participant) bool { return p.EventID == eventID }) {
		switch p.Status {
		case domain.StatusConfirmed:
			st.ConfirmedCount++
		case domain.StatusPending:
			st.PendingCount++
		case domain.StatusWaitlisted:
			st.WaitlistedCount++
		}
	}
	return st, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Participant, error) {
	items := s.filter(func(p domain.Participant) bool {
		if p.Status != domain.StatusPending && p.Status != domain.StatusWaitlisted {
			return false
		}
		return p.RequestExpiresAt != nil && p.RequestExpiresAt.Before(now) && !p.IsPaymentProcessing
	})
	sort.Slice(items, func(i, j int) bool { return items[i].RequestExpiresAt.Before(*items[j].RequestExpiresAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// -------------------------
// Counters
// -------------------------

func (s *Store) IncrementHuntsJoined(ctx context.Context, messageID string, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if messageID != "" {
		key := "counters:" + messageID
		if _, dup := s.processed[key]; dup {
			return false, nil
		}
		s.processed[key] = struct{}{}
	}
	s.huntsJoined[userID]++
	return true, nil
}

func (s *Store) HuntsJoined(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.huntsJoined[userID], nil
}

var (
	_ domain.Store        = (*Store)(nil)
	_ domain.CounterStore = (*Store)(nil)
)
