package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aurorahunt/hunt-service/internal/contracts/event"
	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/aurorahunt/hunt-service/internal/infrastructure/memory"
	"github.com/aurorahunt/hunt-service/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPayments struct{ mock.Mock }

func (m *MockPayments) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.CheckoutSession), args.Error(1)
}

type fakeCache struct {
	windows map[uuid.UUID]domain.EventWindow
	err     error
}

func (c *fakeCache) GetEventWindow(ctx context.Context, id uuid.UUID) (domain.EventWindow, error) {
	if c.err != nil {
		return domain.EventWindow{}, c.err
	}
	w, ok := c.windows[id]
	if !ok {
		return domain.EventWindow{}, domain.ErrCacheMiss
	}
	return w, nil
}

func (c *fakeCache) SetEventWindow(ctx context.Context, w domain.EventWindow) error {
	if c.windows == nil {
		c.windows = map[uuid.UUID]domain.EventWindow{}
	}
	c.windows[w.EventID] = w
	return nil
}

func (c *fakeCache) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store *memory.Store
	svc   *service.HuntService
	clock *clock
	pay   *MockPayments
	cache *fakeCache
	event domain.Event
}

var base = time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)

func capacity(n int) *int { return &n }

// newFixture seeds one hunt a month ahead; mut adjusts it.
func newFixture(t *testing.T, mut func(e *domain.Event)) *fixture {
	t.Helper()
	e := domain.Event{
		ID:          uuid.New(),
		OrganizerID: uuid.New(),
		StartTime:   base.Add(30 * 24 * time.Hour),
		EndTime:     base.Add(30*24*time.Hour + 4*time.Hour),
		Currency:    "NOK",
		UpdatedAt:   base,
	}
	if mut != nil {
		mut(&e)
	}
	st := memory.New()
	st.Seed(e)
	clk := &clock{t: base}
	pay := &MockPayments{}
	cache := &fakeCache{}
	svc := service.New(st,
		service.WithClock(clk.Now),
		service.WithPayments(pay, service.CheckoutURLs{SuccessURL: "https://app/ok", CancelURL: "https://app/cancel"}),
		service.WithCache(cache),
	)
	return &fixture{store: st, svc: svc, clock: clk, pay: pay, cache: cache, event: e}
}

func (f *fixture) participant(t *testing.T, userID uuid.UUID) domain.Participant {
	t.Helper()
	p, err := f.store.GetParticipation(context.Background(), f.event.ID, userID)
	require.NoError(t, err)
	return p
}

func (f *fixture) messages(rk string, userID uuid.UUID) int {
	n := 0
	for _, m := range f.store.Outbox() {
		pl, ok := m.Payload.(event.ParticipantPayload)
		if ok && m.RoutingKey == rk && pl.UserID == userID.String() {
			n++
		}
	}
	return n
}

func (f *fixture) confirmedCount(t *testing.T) int {
	t.Helper()
	st, err := f.store.GetStats(context.Background(), f.event.ID)
	require.NoError(t, err)
	return st.ConfirmedCount
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de), "expected domain error, got %v", err)
	require.Equal(t, code, de.Code)
	require.NotEmpty(t, de.Message)
}

// ---------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------

func TestJoin_FreePublicConfirmsAndEmitsOnce(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) { e.Capacity = capacity(10) })
	ctx := context.Background()
	u := uuid.New()

	res, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, res.Status)
	assert.False(t, res.RequiresApproval)
	assert.False(t, res.RequiresPayment)
	assert.False(t, res.IsWaitlisted)
	assert.Nil(t, res.ExpiresAt)
	assert.NotEmpty(t, res.Message)

	assert.Equal(t, 1, f.messages(domain.RKConfirmed, u))
	assert.Equal(t, 1, f.messages(domain.RKJoined, u))
}

func TestJoin_AlreadyActive(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) { e.RequiresApproval = true })
	ctx := context.Background()
	u := uuid.New()

	_, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)

	_, err = f.svc.Join(ctx, f.event.ID, u)
	requireCode(t, err, domain.CodeAlreadyActive)
}

func TestJoin_EventEnded(t *testing.T) {
	t.Run("after end", func(t *testing.T) {
		f := newFixture(t, func(e *domain.Event) {
			e.StartTime = base.Add(-4 * time.Hour)
			e.EndTime = base.Add(-time.Hour)
		})
		_, err := f.svc.Join(context.Background(), f.event.ID, uuid.New())
		requireCode(t, err, domain.CodeEventEnded)
	})

	t.Run("started and needs approval", func(t *testing.T) {
		f := newFixture(t, func(e *domain.Event) {
			e.StartTime = base.Add(-time.Hour)
			e.EndTime = base.Add(time.Hour)
			e.RequiresApproval = true
		})
		_, err := f.svc.Join(context.Background(), f.event.ID, uuid.New())
		requireCode(t, err, domain.CodeEventEnded)
	})

	t.Run("started free hunt still confirms", func(t *testing.T) {
		f := newFixture(t, func(e *domain.Event) {
			e.StartTime = base.Add(-time.Hour)
			e.EndTime = base.Add(time.Hour)
		})
		res, err := f.svc.Join(context.Background(), f.event.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, res.Status)
	})

	t.Run("cache fast-fail", func(t *testing.T) {
		f := newFixture(t, nil)
		f.cache.windows = map[uuid.UUID]domain.EventWindow{f.event.ID: {EventID: f.event.ID, Canceled: true}}
		_, err := f.svc.Join(context.Background(), f.event.ID, uuid.New())
		requireCode(t, err, domain.CodeEventEnded)
		assert.Empty(t, f.store.Outbox())
	})

	t.Run("cache errors are ignored", func(t *testing.T) {
		f := newFixture(t, nil)
		f.cache.err = errors.New("redis down")
		_, err := f.svc.Join(context.Background(), f.event.ID, uuid.New())
		require.NoError(t, err)
	})
}

func TestJoin_UnknownEvent(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Join(context.Background(), uuid.New(), uuid.New())
	requireCode(t, err, domain.CodeEventNotFound)
}

// Scenario: capacity 2 with waitlist; a cancellation promotes the head of the queue.
func TestJoin_WaitlistAndPromotionOnCancel(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(2)
		e.WaitlistEnabled = true
	})
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	for _, u := range []uuid.UUID{a, b} {
		res, err := f.svc.Join(ctx, f.event.ID, u)
		require.NoError(t, err)
		require.Equal(t, domain.StatusConfirmed, res.Status)
	}

	res, err := f.svc.Join(ctx, f.event.ID, c)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitlisted, res.Status)
	assert.True(t, res.IsWaitlisted)
	require.NotNil(t, res.WaitlistPosition)
	assert.Equal(t, 1, *res.WaitlistPosition)
	require.NotNil(t, res.ExpiresAt)

	cres, err := f.svc.Cancel(ctx, f.event.ID, a)
	require.NoError(t, err)
	assert.True(t, cres.Promoted)

	pc := f.participant(t, c)
	assert.Equal(t, domain.StatusConfirmed, pc.Status)
	assert.Nil(t, pc.WaitlistPosition)
	assert.Nil(t, pc.RequestExpiresAt)
	assert.Equal(t, 1, f.messages(domain.RKPromoted, c))
	assert.Equal(t, 1, f.messages(domain.RKConfirmed, c))
	assert.Equal(t, 2, f.confirmedCount(t))
}

func TestPromotion_ApprovalHuntLandsInPending(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(1)
		e.WaitlistEnabled = true
		e.RequiresApproval = true
	})
	ctx := context.Background()
	a, c := uuid.New(), uuid.New()

	_, err := f.svc.Join(ctx, f.event.ID, a)
	require.NoError(t, err)
	_, err = f.svc.OrganizerApprove(ctx, f.event.ID, f.event.OrganizerID, "user", a)
	require.NoError(t, err)

	res, err := f.svc.Join(ctx, f.event.ID, c)
	require.NoError(t, err)
	require.Equal(t, domain.StatusWaitlisted, res.Status)

	f.clock.Advance(time.Hour)
	cres, err := f.svc.Cancel(ctx, f.event.ID, a)
	require.NoError(t, err)
	assert.True(t, cres.Promoted)

	pc := f.participant(t, c)
	assert.Equal(t, domain.StatusPending, pc.Status)
	assert.Nil(t, pc.WaitlistPosition)
	require.NotNil(t, pc.RequestExpiresAt)
	assert.Equal(t, f.clock.Now().Add(domain.RequestWindow), *pc.RequestExpiresAt, "expiration is recomputed on promotion")
	assert.Equal(t, 0, f.messages(domain.RKConfirmed, c))
}

func TestPromotion_PositionsAreStable(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(1)
		e.WaitlistEnabled = true
	})
	ctx := context.Background()
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for _, u := range users {
		_, err := f.svc.Join(ctx, f.event.ID, u)
		require.NoError(t, err)
	}

	_, err := f.svc.Cancel(ctx, f.event.ID, users[0])
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, f.participant(t, users[1]).Status)
	assert.Equal(t, 2, *f.participant(t, users[2]).WaitlistPosition)
	assert.Equal(t, 3, *f.participant(t, users[3]).WaitlistPosition)

	late := uuid.New()
	res, err := f.svc.Join(ctx, f.event.ID, late)
	require.NoError(t, err)
	assert.Equal(t, 4, *res.WaitlistPosition)
}

func TestPromoteNextWaitlisted_NoopWhenFullOrEmpty(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(1)
		e.WaitlistEnabled = true
	})
	ctx := context.Background()

	promoted, err := f.svc.PromoteNextWaitlisted(ctx, f.event.ID)
	require.NoError(t, err)
	assert.False(t, promoted)

	_, err = f.svc.Join(ctx, f.event.ID, uuid.New())
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, f.event.ID, uuid.New())
	require.NoError(t, err)

	promoted, err = f.svc.PromoteNextWaitlisted(ctx, f.event.ID)
	require.NoError(t, err)
	assert.False(t, promoted)
}

// Scenario: two concurrent joins race for the last seat, no waitlist.
func TestJoin_ConcurrentRaceForLastSeat(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) { e.Capacity = capacity(1) })
	ctx := context.Background()

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	statuses := make([]domain.ParticipantStatus, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := f.svc.Join(ctx, f.event.ID, uuid.New())
			errs[i] = err
			statuses[i] = res.Status
		}(i)
	}
	close(start)
	wg.Wait()

	confirmed, full := 0, 0
	for i := range errs {
		if errs[i] == nil {
			assert.Equal(t, domain.StatusConfirmed, statuses[i])
			confirmed++
			continue
		}
		requireCode(t, errs[i], domain.CodeAtCapacity)
		full++
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, racers-1, full)
	assert.Equal(t, 1, f.confirmedCount(t))
}

// Capacity and waitlist invariants hold across an interleaving of triggers.
func TestInvariants_ConcurrentMixedTriggers(t *testing.T) {
	const capN = 3
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(capN)
		e.WaitlistEnabled = true
	})
	ctx := context.Background()

	users := make([]uuid.UUID, 12)
	for i := range users {
		users[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for i, u := range users {
			wg.Add(1)
			go func(i int, u uuid.UUID) {
				defer wg.Done()
				_, _ = f.svc.Join(ctx, f.event.ID, u)
				if (i+round)%3 == 0 {
					_, _ = f.svc.Cancel(ctx, f.event.ID, u)
				}
			}(i, u)
		}
		wg.Wait()

		st, err := f.store.GetStats(ctx, f.event.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, st.ConfirmedCount, capN)

		wl, _, err := f.store.ListWaitlist(ctx, f.event.ID, 100, nil)
		require.NoError(t, err)
		positions := make([]int, 0, len(wl))
		for _, p := range wl {
			require.NotNil(t, p.WaitlistPosition)
			positions = append(positions, *p.WaitlistPosition)
		}
		assert.True(t, sort.IntsAreSorted(positions))
		for i := 1; i < len(positions); i++ {
			assert.Less(t, positions[i-1], positions[i], "positions are unique")
		}
		if st.ConfirmedCount < capN {
			assert.Empty(t, wl, "nobody waits while a seat is free")
		}
	}
}

// ---------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------

func TestCancel_IdempotentAndNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := uuid.New()

	_, err := f.svc.Cancel(ctx, f.event.ID, u)
	requireCode(t, err, domain.CodeParticipantNotFound)

	_, err = f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, f.event.ID, u)
	require.NoError(t, err)
	res, err := f.svc.Cancel(ctx, f.event.ID, u)
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.Equal(t, 1, f.messages(domain.RKCancelled, u))
}

func TestCancel_RejoinReusesRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := uuid.New()

	first, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.event.ID, u)
	require.NoError(t, err)

	second, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)
	assert.Equal(t, first.Participant.ID, second.Participant.ID)
	assert.Equal(t, domain.StatusConfirmed, second.Status)
	assert.Nil(t, second.Participant.CancelledAt)
}

// ---------------------------------------------------------------------
// Organizer actions
// ---------------------------------------------------------------------

// Scenario: three rejections across three join attempts ban the user.
func TestReject_ThreeStrikesBlocks(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) { e.RequiresApproval = true })
	ctx := context.Background()
	u := uuid.New()

	for i := 1; i <= domain.BlockThreshold; i++ {
		_, err := f.svc.Join(ctx, f.event.ID, u)
		require.NoError(t, err)

		res, err := f.svc.OrganizerReject(ctx, f.event.ID, f.event.OrganizerID, "user", u)
		require.NoError(t, err)
		assert.Equal(t, i, res.RejectionCount)
		assert.Equal(t, i == domain.BlockThreshold, res.IsBlocked)
		assert.False(t, res.Promoted)
	}

	p := f.participant(t, u)
	assert.Equal(t, domain.StatusCancelled, p.Status)

	_, err := f.svc.Join(ctx, f.event.ID, u)
	requireCode(t, err, domain.CodeBlocked)

	// still blocked after another cancel attempt
	_, err = f.svc.Cancel(ctx, f.event.ID, u)
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, f.event.ID, u)
	requireCode(t, err, domain.CodeBlocked)
	assert.Equal(t, 1, f.messages(domain.RKBlocked, u))
}

func TestReject_Preconditions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := uuid.New()

	_, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)

	_, err = f.svc.OrganizerReject(ctx, f.event.ID, uuid.New(), "user", u)
	requireCode(t, err, domain.CodeNotOrganizer)

	_, err = f.svc.OrganizerReject(ctx, f.event.ID, f.event.OrganizerID, "user", u)
	requireCode(t, err, domain.CodeNotPendingOrWaitlisted)

	_, err = f.svc.OrganizerReject(ctx, f.event.ID, f.event.OrganizerID, "user", uuid.New())
	requireCode(t, err, domain.CodeParticipantNotFound)
}

func TestReject_WaitlistedDoesNotPromote(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(1)
		e.WaitlistEnabled = true
	})
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{a, b, c} {
		_, err := f.svc.Join(ctx, f.event.ID, u)
		require.NoError(t, err)
	}

	res, err := f.svc.OrganizerReject(ctx, f.event.ID, f.event.OrganizerID, "user", b)
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.Equal(t, domain.StatusWaitlisted, f.participant(t, c).Status)
	assert.Nil(t, f.participant(t, b).WaitlistPosition)
}

func TestApprove_AdminAndCapacity(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(1)
		e.RequiresApproval = true
	})
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{a, b} {
		_, err := f.svc.Join(ctx, f.event.ID, u)
		require.NoError(t, err)
	}

	_, err := f.svc.OrganizerApprove(ctx, f.event.ID, uuid.New(), "moderator", a)
	requireCode(t, err, domain.CodeNotOrganizer)

	p, err := f.svc.OrganizerApprove(ctx, f.event.ID, uuid.New(), "admin", a)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, p.Status)
	assert.Nil(t, p.RequestExpiresAt)
	assert.Equal(t, 1, f.messages(domain.RKConfirmed, a))

	_, err = f.svc.OrganizerApprove(ctx, f.event.ID, f.event.OrganizerID, "user", b)
	requireCode(t, err, domain.CodeAtCapacity)
	assert.Equal(t, domain.StatusPending, f.participant(t, b).Status)

	_, err = f.svc.OrganizerApprove(ctx, f.event.ID, f.event.OrganizerID, "user", a)
	requireCode(t, err, domain.CodeNotPendingOrWaitlisted)
}

// Scenario: private paid hunt; approval before payment is refused without mutation.
func TestApprove_PaidHuntNeedsPayment(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.RequiresApproval = true
		e.IsPaid = true
		e.PriceCents = 25000
		e.StartTime = base.Add(2 * 24 * time.Hour)
		e.EndTime = base.Add(2*24*time.Hour + 3*time.Hour)
	})
	ctx := context.Background()
	u := uuid.New()

	res, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.True(t, res.RequiresApproval)
	assert.True(t, res.RequiresPayment)
	assert.Equal(t, domain.PaymentPending, res.Participant.PaymentStatus)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, f.event.StartTime.Add(-time.Second), *res.ExpiresAt, "deadline clamps to the start")

	before := f.participant(t, u)
	outboxBefore := len(f.store.Outbox())

	_, err = f.svc.OrganizerApprove(ctx, f.event.ID, f.event.OrganizerID, "user", u)
	requireCode(t, err, domain.CodePaymentNotConfirmed)
	assert.Equal(t, before, f.participant(t, u))
	assert.Len(t, f.store.Outbox(), outboxBefore)
}

// ---------------------------------------------------------------------
// Expiration sweep
// ---------------------------------------------------------------------

func TestExpireStale(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) { e.RequiresApproval = true })
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := f.svc.Join(ctx, f.event.ID, a)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.Join(ctx, f.event.ID, b)
	require.NoError(t, err)

	n, err := f.svc.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(domain.RequestWindow - time.Hour)
	n, err = f.svc.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pa := f.participant(t, a)
	assert.Equal(t, domain.StatusCancelled, pa.Status)
	require.NotNil(t, pa.CancelReason)
	assert.Equal(t, service.ReasonExpired, *pa.CancelReason)
	assert.Equal(t, 1, f.messages(domain.RKExpired, a))
	assert.Equal(t, domain.StatusPending, f.participant(t, b).Status)
}

func TestExpireStale_SkipsPaymentInFlight(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.IsPaid = true
		e.PriceCents = 1000
	})
	ctx := context.Background()
	u := uuid.New()

	_, err := f.svc.Join(ctx, f.event.ID, u)
	require.NoError(t, err)
	_, err = f.svc.MarkPaymentProcessing(ctx, f.participant(t, u).ID, true)
	require.NoError(t, err)

	f.clock.Advance(domain.RequestWindow + time.Minute)
	n, err := f.svc.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.StatusPending, f.participant(t, u).Status)
}

// ---------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------

func TestReads_RequireOrganizerOrStaff(t *testing.T) {
	f := newFixture(t, func(e *domain.Event) {
		e.Capacity = capacity(1)
		e.WaitlistEnabled = true
	})
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	for _, u := range []uuid.UUID{a, b} {
		_, err := f.svc.Join(ctx, f.event.ID, u)
		require.NoError(t, err)
	}

	_, _, err := f.svc.ListParticipants(ctx, f.event.ID, uuid.New(), "user", 10, nil)
	requireCode(t, err, domain.CodeNotOrganizer)

	ps, next, err := f.svc.ListParticipants(ctx, f.event.ID, f.event.OrganizerID, "user", 10, nil)
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, ps, 1)
	assert.Equal(t, a, ps[0].UserID)

	wl, _, err := f.svc.ListWaitlist(ctx, f.event.ID, uuid.New(), "moderator", 10, nil)
	require.NoError(t, err)
	require.Len(t, wl, 1)
	assert.Equal(t, b, wl[0].UserID)

	st, err := f.svc.GetStats(ctx, f.event.ID, f.event.OrganizerID, "user")
	require.NoError(t, err)
	assert.Equal(t, 1, st.ConfirmedCount)
	assert.Equal(t, 1, st.WaitlistedCount)

	mine, _, err := f.svc.ListMyHunts(ctx, b, []domain.ParticipantStatus{domain.StatusWaitlisted}, 10, nil)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	p, err := f.svc.GetParticipation(ctx, f.event.ID, a)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, p.Status)
}
