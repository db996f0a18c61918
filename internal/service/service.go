package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aurorahunt/hunt-service/internal/audit"
	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/metrics"
	"github.com/aurorahunt/hunt-service/internal/pkg/logger"
	"github.com/google/uuid"
)

// HuntService is the transition orchestrator: one method per trigger, each
// applied inside a single event-scoped transaction.
type HuntService struct {
	store    domain.Store
	cache    domain.CacheRepository
	payments domain.PaymentProvider
	audit    *audit.Logger
	now      func() time.Time
	checkout CheckoutURLs
}

// CheckoutURLs are handed to the payment provider for redirects.
type CheckoutURLs struct {
	SuccessURL string
	CancelURL  string
}

type Option func(*HuntService)

func WithCache(c domain.CacheRepository) Option {
	return func(s *HuntService) { s.cache = c }
}

func WithPayments(p domain.PaymentProvider, urls CheckoutURLs) Option {
	return func(s *HuntService) {
		s.payments = p
		s.checkout = urls
	}
}

func WithAudit(a *audit.Logger) Option {
	return func(s *HuntService) { s.audit = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *HuntService) { s.now = now }
}

func New(store domain.Store, opts ...Option) *HuntService {
	s := &HuntService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	if s.audit == nil {
		s.audit = audit.New(logger.Logger)
	}
	return s
}

// effects collects side effects (audit lines, metrics) that must only run
// once the transaction committed.
type effects struct {
	fns []func()
}

func (f *effects) after(fn func()) { f.fns = append(f.fns, fn) }

func (s *HuntService) run(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx, fx *effects) error) error {
	fx := &effects{}
	err := s.store.InEventTx(ctx, eventID, func(tx domain.EventTx) error {
		fx.fns = fx.fns[:0]
		return fn(tx, fx)
	})
	if err != nil {
		return err
	}
	for _, f := range fx.fns {
		f()
	}
	return nil
}

func (s *HuntService) emit(ctx context.Context, tx domain.EventTx, rk string, p domain.Participant, fill func(*event.ParticipantPayload)) error {
	pl := event.ParticipantPayload{
		ParticipantID:    p.ID.String(),
		EventID:          p.EventID.String(),
		UserID:           p.UserID.String(),
		Status:           string(p.Status),
		PaymentStatus:    string(p.PaymentStatus),
		WaitlistPosition: p.WaitlistPosition,
		RequestExpiresAt: p.RequestExpiresAt,
		RejectionCount:   p.RejectionCount,
	}
	if fill != nil {
		fill(&pl)
	}
	return tx.Emit(ctx, domain.Message{ID: uuid.New(), RoutingKey: rk, Payload: pl})
}

func isPrivileged(role string) bool {
	r := strings.ToLower(strings.TrimSpace(role))
	return r == "admin" || r == "moderator"
}

// authorizeOrganizer guards approve/reject: only the organizer or an admin.
func authorizeOrganizer(e domain.Event, actorID uuid.UUID, role string) error {
	if strings.EqualFold(strings.TrimSpace(role), "admin") || e.OrganizerID == actorID {
		return nil
	}
	return domain.ErrNotOrganizer()
}

func (s *HuntService) requireOrganizerOrStaff(ctx context.Context, eventID, requesterID uuid.UUID, role string) error {
	if isPrivileged(role) {
		return nil
	}
	e, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if e.OrganizerID != requesterID {
		return domain.ErrNotOrganizer()
	}
	return nil
}

func outcome(err error, ok string) string {
	if err == nil {
		return ok
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "error"
}

// fastFail rejects joins for hunts the cache already knows are over.
// Cache errors are ignored; the transaction re-checks everything.
func (s *HuntService) fastFail(ctx context.Context, eventID uuid.UUID, now time.Time) error {
	if s.cache == nil {
		return nil
	}
	w, err := s.cache.GetEventWindow(ctx, eventID)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logger.WithCtx(ctx).Debug().Err(err).Msg("event window cache unavailable")
		}
		return nil
	}
	if w.Canceled {
		return domain.ErrEventEnded("this hunt was cancelled by the organizer")
	}
	if !w.EndTime.IsZero() && !now.Before(w.EndTime) {
		return domain.ErrEventEnded("this hunt has already ended")
	}
	return nil
}

// Reads

func (s *HuntService) GetParticipation(ctx context.Context, eventID, userID uuid.UUID) (domain.Participant, error) {
	return s.store.GetParticipation(ctx, eventID, userID)
}

func (s *HuntService) ListMyHunts(ctx context.Context, userID uuid.UUID, statuses []domain.ParticipantStatus, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	return s.store.ListMyHunts(ctx, userID, statuses, limit, cursor)
}

func (s *HuntService) ListParticipants(ctx context.Context, eventID, requesterID uuid.UUID, role string, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	if err := s.requireOrganizerOrStaff(ctx, eventID, requesterID, role); err != nil {
		return nil, nil, err
	}
	return s.store.ListParticipants(ctx, eventID, limit, cursor)
}

func (s *HuntService) ListWaitlist(ctx context.Context, eventID, requesterID uuid.UUID, role string, limit int, cursor *domain.KeysetCursor) ([]domain.Participant, *domain.KeysetCursor, error) {
	if err := s.requireOrganizerOrStaff(ctx, eventID, requesterID, role); err != nil {
		return nil, nil, err
	}
	return s.store.ListWaitlist(ctx, eventID, limit, cursor)
}

func (s *HuntService) GetStats(ctx context.Context, eventID, requesterID uuid.UUID, role string) (domain.EventStats, error) {
	if err := s.requireOrganizerOrStaff(ctx, eventID, requesterID, role); err != nil {
		return domain.EventStats{}, err
	}
	return s.store.GetStats(ctx, eventID)
}

func recordTransition(trigger string, err error, ok string) {
	metrics.RecordTransition(trigger, outcome(err, ok))
}
