package memory

import (
	"context"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/google/uuid"
)

type tx struct {
	s          *Store
	event      domain.Event
	eventDirty bool
	writes     map[uuid.UUID]domain.Participant
	msgs       []domain.Message
	processed  []string
}

func newTx(s *Store, e domain.Event) *tx {
	return &tx{s: s, event: e, writes: map[uuid.UUID]domain.Participant{}}
}

func (t *tx) Event() domain.Event { return t.event }

func (t *tx) SaveEvent(ctx context.Context, e domain.Event) error {
	e.ID = t.event.ID
	t.event = e
	t.eventDirty = true
	return nil
}

// view returns the event's participants as this transaction sees them.
func (t *tx) view() []domain.Participant {
	t.s.mu.RLock()
	var out []domain.Participant
	for id, p := range t.s.participants {
		if p.EventID != t.event.ID {
			continue
		}
		if _, overridden := t.writes[id]; overridden {
			continue
		}
		out = append(out, p)
	}
	t.s.mu.RUnlock()
	for _, p := range t.writes {
		out = append(out, p)
	}
	return out
}

func (t *tx) Participant(ctx context.Context, userID uuid.UUID) (domain.Participant, bool, error) {
	for _, p := range t.view() {
		if p.UserID == userID {
			return p, true, nil
		}
	}
	return domain.Participant{}, false, nil
}

func (t *tx) ParticipantByID(ctx context.Context, id uuid.UUID) (domain.Participant, bool, error) {
	if p, ok := t.writes[id]; ok {
		return p, true, nil
	}
	t.s.mu.RLock()
	p, ok := t.s.participants[id]
	t.s.mu.RUnlock()
	if !ok || p.EventID != t.event.ID {
		return domain.Participant{}, false, nil
	}
	return p, true, nil
}

func (t *tx) CountConfirmed(ctx context.Context) (int, error) {
	n := 0
	for _, p := range t.view() {
		if p.Status == domain.StatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (t *tx) MaxWaitlistPosition(ctx context.Context) (int, error) {
	maxPos := 0
	for _, p := range t.view() {
		if p.Status == domain.StatusWaitlisted && p.WaitlistPosition != nil && *p.WaitlistPosition > maxPos {
			maxPos = *p.WaitlistPosition
		}
	}
	return maxPos, nil
}

func (t *tx) NextWaitlisted(ctx context.Context) (domain.Participant, bool, error) {
	var best domain.Participant
	found := false
	for _, p := range t.view() {
		if p.Status != domain.StatusWaitlisted || p.WaitlistPosition == nil {
			continue
		}
		if !found || *p.WaitlistPosition < *best.WaitlistPosition ||
			(*p.WaitlistPosition == *best.WaitlistPosition && before(p, best)) {
			best = p
			found = true
		}
	}
	return best, found, nil
}

func (t *tx) Save(ctx context.Context, p domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.EventID = t.event.ID
	t.writes[p.ID] = p
	return nil
}

func (t *tx) Emit(ctx context.Context, m domain.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	t.msgs = append(t.msgs, m)
	return nil
}

func (t *tx) MarkProcessed(ctx context.Context, messageID, handler string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	key := handler + ":" + messageID
	for _, k := range t.processed {
		if k == key {
			return false, nil
		}
	}
	t.s.mu.RLock()
	_, dup := t.s.processed[key]
	t.s.mu.RUnlock()
	if dup {
		return false, nil
	}
	t.processed = append(t.processed, key)
	return true, nil
}
