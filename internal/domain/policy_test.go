package domain_test

import (
	"testing"
	"time"

	"github.com/aurorahunt/hunt-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		event     domain.Event
		confirmed int
		want      domain.ParticipantStatus
		wantErr   string
	}{
		{"free public with room", domain.Event{Capacity: intPtr(2)}, 1, domain.StatusConfirmed, ""},
		{"unlimited capacity", domain.Event{}, 500, domain.StatusConfirmed, ""},
		{"requires approval", domain.Event{Capacity: intPtr(2), RequiresApproval: true}, 0, domain.StatusPending, ""},
		{"paid", domain.Event{IsPaid: true}, 0, domain.StatusPending, ""},
		{"full with waitlist", domain.Event{Capacity: intPtr(2), WaitlistEnabled: true}, 2, domain.StatusWaitlisted, ""},
		{"full paid with waitlist", domain.Event{Capacity: intPtr(1), IsPaid: true, WaitlistEnabled: true}, 1, domain.StatusWaitlisted, ""},
		{"full without waitlist", domain.Event{Capacity: intPtr(2)}, 2, "", domain.CodeAtCapacity},
		{"zero capacity", domain.Event{Capacity: intPtr(0)}, 0, "", domain.CodeAtCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := domain.Decide(tt.event, tt.confirmed)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, domain.HasCode(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Status)
			assert.Equal(t, tt.event.RequiresApproval, d.RequiresApproval)
			assert.Equal(t, tt.event.IsPaid, d.RequiresPayment)
		})
	}
}

func TestCalculateExpiration(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  time.Time
	}{
		{"far away start", now.Add(30 * 24 * time.Hour), now.Add(domain.RequestWindow)},
		{"start inside window", now.Add(2 * 24 * time.Hour), now.Add(2*24*time.Hour - time.Second)},
		{"start exactly at window end", now.Add(domain.RequestWindow), now.Add(domain.RequestWindow - time.Second)},
		{"no start time", time.Time{}, now.Add(domain.RequestWindow)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.CalculateExpiration(now, tt.start)
			assert.Equal(t, tt.want, got)
			if !tt.start.IsZero() {
				assert.True(t, got.Before(tt.start))
			}
		})
	}
}

func TestCheckAccepting(t *testing.T) {
	now := time.Date(2025, 1, 1, 22, 0, 0, 0, time.UTC)
	running := domain.Event{StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)}
	upcoming := domain.Event{StartTime: now.Add(time.Hour), EndTime: now.Add(3 * time.Hour)}
	ended := domain.Event{StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-time.Hour)}
	canceled := upcoming
	canceled.Canceled = true

	assert.NoError(t, domain.CheckAccepting(upcoming, domain.StatusPending, now))
	assert.NoError(t, domain.CheckAccepting(running, domain.StatusConfirmed, now))
	assert.True(t, domain.HasCode(domain.CheckAccepting(running, domain.StatusPending, now), domain.CodeEventEnded))
	assert.True(t, domain.HasCode(domain.CheckAccepting(ended, domain.StatusConfirmed, now), domain.CodeEventEnded))
	assert.True(t, domain.HasCode(domain.CheckAccepting(canceled, domain.StatusConfirmed, now), domain.CodeEventEnded))
}

func TestNextWaitlistPosition(t *testing.T) {
	assert.Equal(t, 1, domain.NextWaitlistPosition(0))
	assert.Equal(t, 4, domain.NextWaitlistPosition(3))
}

func TestReject_BlocksAtThreshold(t *testing.T) {
	now := time.Now().UTC()
	exp := now.Add(time.Hour)
	p := domain.Participant{Status: domain.StatusWaitlisted, WaitlistPosition: intPtr(2), RequestExpiresAt: &exp}

	for i := 1; i < domain.BlockThreshold; i++ {
		count, blocked := p.Reject(now)
		assert.Equal(t, i, count)
		assert.False(t, blocked)
		p.Status = domain.StatusPending
	}

	count, blocked := p.Reject(now)
	assert.Equal(t, domain.BlockThreshold, count)
	assert.True(t, blocked)
	assert.Equal(t, domain.StatusCancelled, p.Status)
	assert.Nil(t, p.WaitlistPosition)
	assert.Nil(t, p.RequestExpiresAt)
	assert.True(t, domain.IsBlocked(p))

	p.ResetForRejoin(now)
	assert.True(t, domain.IsBlocked(p), "rejoin must not clear the ban")
}

func TestPromotionTarget(t *testing.T) {
	free := domain.Event{}
	approval := domain.Event{RequiresApproval: true}
	paid := domain.Event{IsPaid: true}

	assert.Equal(t, domain.StatusConfirmed, domain.PromotionTarget(free, domain.Participant{}))
	assert.Equal(t, domain.StatusPending, domain.PromotionTarget(approval, domain.Participant{}))
	assert.Equal(t, domain.StatusPending, domain.PromotionTarget(paid, domain.Participant{PaymentStatus: domain.PaymentPending}))
	assert.Equal(t, domain.StatusConfirmed, domain.PromotionTarget(paid, domain.Participant{PaymentStatus: domain.PaymentConfirmed}))
}

func TestPaymentGate(t *testing.T) {
	paid := domain.Event{IsPaid: true, Capacity: intPtr(1)}
	payable := domain.Participant{Status: domain.StatusPending, PaymentStatus: domain.PaymentPending}

	tests := []struct {
		name      string
		event     domain.Event
		p         domain.Participant
		found     bool
		confirmed int
		want      string
	}{
		{"allowed", paid, payable, true, 0, ""},
		{"not joined", paid, domain.Participant{}, false, 0, domain.GateReasonNotParticipant},
		{"free event", domain.Event{}, payable, true, 0, domain.GateReasonFreeEvent},
		{"blocked", paid, domain.Participant{Status: domain.StatusCancelled, RejectionCount: 3}, true, 0, domain.GateReasonBlocked},
		{"duplicate payment", paid, domain.Participant{Status: domain.StatusConfirmed, PaymentStatus: domain.PaymentConfirmed}, true, 1, domain.GateReasonAlreadyPaid},
		{"received manually", paid, domain.Participant{Status: domain.StatusConfirmed, PaymentStatus: domain.PaymentReceived}, true, 1, domain.GateReasonAlreadyPaid},
		{"in flight", paid, domain.Participant{Status: domain.StatusPending, PaymentStatus: domain.PaymentPending, IsPaymentProcessing: true}, true, 0, domain.GateReasonInFlight},
		{"marked paid", paid, domain.Participant{Status: domain.StatusPending, PaymentStatus: domain.PaymentMarkedPaid}, true, 0, domain.GateReasonNotPayable},
		{"waitlisted", paid, domain.Participant{Status: domain.StatusWaitlisted, PaymentStatus: domain.PaymentPending}, true, 1, domain.GateReasonNotPayable},
		{"full", paid, payable, true, 1, domain.GateReasonAtCapacity},
		{"full but approval needed", domain.Event{IsPaid: true, RequiresApproval: true, Capacity: intPtr(1)}, payable, true, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.PaymentGate(tt.event, tt.p, tt.found, tt.confirmed))
		})
	}
}

func TestApplyPaymentSuccess_Idempotent(t *testing.T) {
	now := time.Now().UTC()
	p := domain.Participant{Status: domain.StatusPending, PaymentStatus: domain.PaymentPending, IsPaymentProcessing: true}

	assert.True(t, p.ApplyPaymentSuccess(now))
	first := p

	assert.False(t, p.ApplyPaymentSuccess(now.Add(time.Minute)))
	assert.Equal(t, first, p)
	assert.Equal(t, domain.PaymentConfirmed, p.PaymentStatus)
	assert.False(t, p.IsPaymentProcessing)
}

func TestApplyPaymentFailure_KeepsDeadline(t *testing.T) {
	now := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	original := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	ref := "cs_123"
	p := domain.Participant{
		Status:              domain.StatusPending,
		PaymentStatus:       domain.PaymentPending,
		IsPaymentProcessing: true,
		PaymentRef:          &ref,
		RequestExpiresAt:    &original,
	}

	require.True(t, p.ApplyPaymentFailure(now))
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, domain.PaymentPending, p.PaymentStatus)
	assert.False(t, p.IsPaymentProcessing)
	assert.Nil(t, p.PaymentRef)
	require.NotNil(t, p.RequestExpiresAt)
	assert.Equal(t, original, *p.RequestExpiresAt)
}

func TestApplyPaymentFailure_IgnoredAfterSuccess(t *testing.T) {
	now := time.Now().UTC()
	p := domain.Participant{Status: domain.StatusConfirmed, PaymentStatus: domain.PaymentConfirmed}

	assert.False(t, p.ApplyPaymentFailure(now))
	assert.Equal(t, domain.StatusConfirmed, p.Status)
}

func TestReleasePaymentLock_OnlyTouchesLock(t *testing.T) {
	now := time.Now().UTC()
	exp := now.Add(time.Hour)
	p := domain.Participant{Status: domain.StatusPending, PaymentStatus: domain.PaymentPending, IsPaymentProcessing: true, RequestExpiresAt: &exp}

	assert.True(t, p.ReleasePaymentLock(now))
	assert.False(t, p.IsPaymentProcessing)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, domain.PaymentPending, p.PaymentStatus)
	assert.Equal(t, &exp, p.RequestExpiresAt)

	assert.False(t, p.ReleasePaymentLock(now))
}
