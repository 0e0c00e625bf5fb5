package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/umit144/license-sync/internal/models"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []SubscriptionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Event
	}
	return out
}

func newTestReconciler(store *memStore, now *time.Time, pub Publisher) *WebhookReconciler {
	var seq atomic.Int64
	r := NewWebhookReconciler(store, zap.NewNop(),
		WithClock(func() time.Time { return *now }),
		WithKeyGenerator(func(time.Time) string { return "FIGMA-000001-AAAA-BBBB" }),
		WithPublisher(pub),
	)
	r.newID = func() string {
		return fmt.Sprintf("id-%d", seq.Add(1))
	}
	return r
}

func succeeded(paymentID, email, plan string) PaymentSucceeded {
	return PaymentSucceeded{
		PaymentID: paymentID,
		Email:     email,
		Plan:      plan,
		Amount:    decimal.RequireFromString("500.00"),
		Currency:  "RUB",
		Metadata:  map[string]string{"email": email, "plan": plan},
	}
}

func TestPaymentSucceededCreatesSubscription(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	pub := &recordingPublisher{}
	r := newTestReconciler(store, &now, pub)

	outcome, err := r.Handle(context.Background(), succeeded("P1", "A@B.com", "quarterly"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	subs := store.subsByEmail("a@b.com")
	require.Len(t, subs, 1)
	sub := subs[0]
	assert.Equal(t, models.StatusActive, sub.Status)
	assert.Equal(t, models.PlanQuarterly, sub.Plan)
	assert.Equal(t, now.AddDate(0, 3, 0), sub.ExpiresAt)
	assert.Equal(t, "FIGMA-000001-AAAA-BBBB", sub.LicenseKey)
	assert.False(t, sub.IsBound())
	require.NotNil(t, sub.PaymentID)
	assert.Equal(t, "P1", *sub.PaymentID)

	p, ok := store.payment("P1")
	require.True(t, ok)
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	require.NotNil(t, p.SubscriptionID)
	assert.Equal(t, sub.ID, *p.SubscriptionID)
	assert.Equal(t, []string{"created"}, pub.names())
	assert.Equal(t, "FIGMA-000001-AAAA-BBBB", pub.events[0].LicenseKey)
}

func TestPaymentSucceededRenewsFromLaterOfExpiryAndNow(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      time.Time
	}{
		{"still active", verifyNow.Add(5 * 24 * time.Hour), verifyNow.Add(5*24*time.Hour).AddDate(0, 1, 0)},
		{"already lapsed", verifyNow.Add(-40 * 24 * time.Hour), verifyNow.AddDate(0, 1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := verifyNow
			existing := activeSub("dev-1")
			existing.Status = models.StatusInactive
			existing.Plan = models.PlanYearly
			existing.ExpiresAt = tt.expiresAt
			store := newMemStore(existing)
			r := newTestReconciler(store, &now, nil)

			outcome, err := r.Handle(context.Background(), succeeded("P2", "a@b.com", "monthly"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeRenewed, outcome)

			sub := store.sub("sub-1")
			assert.Equal(t, tt.want, sub.ExpiresAt)
			assert.Equal(t, models.StatusActive, sub.Status)
			assert.Equal(t, models.PlanMonthly, sub.Plan)
			assert.Equal(t, "FIGMA-000001-AAAA-BBBB", sub.LicenseKey)
			assert.Equal(t, "dev-1", sub.BoundFingerprint())
			assert.Equal(t, "P2", *sub.PaymentID)
		})
	}
}

func TestPaymentSucceededIsIdempotent(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	pub := &recordingPublisher{}
	r := newTestReconciler(store, &now, pub)
	ev := succeeded("P1", "a@b.com", "monthly")

	outcome, err := r.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)
	first := store.subsByEmail("a@b.com")[0]

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		outcome, err = r.Handle(context.Background(), ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, outcome)
	}

	subs := store.subsByEmail("a@b.com")
	require.Len(t, subs, 1)
	assert.Equal(t, first.ExpiresAt, subs[0].ExpiresAt)
	assert.Equal(t, []string{"created"}, pub.names())

	p, _ := store.payment("P1")
	assert.Equal(t, models.PaymentSucceeded, p.Status)
	assert.Equal(t, now, p.UpdatedAt)
	assert.Equal(t, first.ID, *p.SubscriptionID)
}

func TestPaymentSucceededConcurrentDeliveriesApplyOnce(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	r := newTestReconciler(store, &now, nil)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 5)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], _ = r.Handle(context.Background(), succeeded("P1", "a@b.com", "monthly"))
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []Outcome{OutcomeCreated, OutcomeDuplicate, OutcomeDuplicate, OutcomeDuplicate, OutcomeDuplicate}, outcomes)
	require.Len(t, store.subsByEmail("a@b.com"), 1)
	assert.Equal(t, now.AddDate(0, 1, 0), store.subsByEmail("a@b.com")[0].ExpiresAt)
}

func TestPaymentSucceededWithoutEmailIsNoop(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	r := newTestReconciler(store, &now, nil)

	outcome, err := r.Handle(context.Background(), succeeded("P1", "", "monthly"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	_, ok := store.payment("P1")
	assert.False(t, ok)
}

func TestPaymentSucceededToleratesLinkFailure(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	store.linkErr = errors.New("lock wait timeout")
	r := newTestReconciler(store, &now, nil)

	outcome, err := r.Handle(context.Background(), succeeded("P1", "a@b.com", "unknown-plan"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	sub := store.subsByEmail("a@b.com")[0]
	assert.Equal(t, models.PlanMonthly, sub.Plan)
	p, ok := store.payment("P1")
	require.True(t, ok)
	assert.Nil(t, p.SubscriptionID)
}

func TestPaymentCanceled(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	r := newTestReconciler(store, &now, nil)

	outcome, err := r.Handle(context.Background(), PaymentCanceled{PaymentID: "P9"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	require.NoError(t, store.UpsertPayment(context.Background(), &models.Payment{PaymentID: "P9", Status: models.PaymentSucceeded}))
	outcome, err = r.Handle(context.Background(), PaymentCanceled{PaymentID: "P9"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, outcome)
	p, _ := store.payment("P9")
	assert.Equal(t, models.PaymentCanceled, p.Status)
}

func TestRefundDeactivatesSubscription(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	pub := &recordingPublisher{}
	r := newTestReconciler(store, &now, pub)

	_, err := r.Handle(context.Background(), succeeded("P1", "a@b.com", "monthly"))
	require.NoError(t, err)

	outcome, err := r.Handle(context.Background(), RefundSucceeded{RefundID: "R1", PaymentID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefunded, outcome)

	sub := store.subsByEmail("a@b.com")[0]
	assert.Equal(t, models.StatusInactive, sub.Status)
	p, _ := store.payment("P1")
	assert.Equal(t, models.PaymentRefunded, p.Status)
	assert.Equal(t, []string{"created", "deactivated"}, pub.names())
}

func TestUnmatchedRefundIsLoggedOnly(t *testing.T) {
	now := verifyNow
	store := newMemStore(activeSub(""))
	r := newTestReconciler(store, &now, nil)

	outcome, err := r.Handle(context.Background(), RefundSucceeded{RefundID: "R1", PaymentID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, models.StatusActive, store.sub("sub-1").Status)
}

func TestPublishFailureDoesNotFailEvent(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	r := newTestReconciler(store, &now, &recordingPublisher{err: errors.New("redis down")})

	outcome, err := r.Handle(context.Background(), succeeded("P1", "a@b.com", "monthly"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
}

func TestIgnoredEvent(t *testing.T) {
	now := verifyNow
	r := newTestReconciler(newMemStore(), &now, nil)

	outcome, err := r.Handle(context.Background(), IgnoredEvent{Type: "notification", Event: "payment.waiting_for_capture"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
}

// Purchase, bind, conflict, renewal and refund against one subscription.
func TestLicenseLifecycle(t *testing.T) {
	ctx := context.Background()
	now := verifyNow
	clock := func() time.Time { return now }
	store := newMemStore()
	reconciler := newTestReconciler(store, &now, nil)
	verifier := NewVerificationService(store, zap.NewNop(), clock)

	_, err := reconciler.Handle(ctx, succeeded("P1", "a@b.com", "monthly"))
	require.NoError(t, err)

	now = verifyNow.Add(24 * time.Hour)
	res, err := verifier.Verify(ctx, verifyInput("dev-1"))
	require.NoError(t, err)
	assert.Equal(t, 29, res.DaysLeft)
	assert.True(t, res.DeviceBound)

	_, err = verifier.Verify(ctx, verifyInput("dev-2"))
	svcErr := requireKind(t, err, KindDeviceConflict)
	assert.True(t, svcErr.DeviceConflict)

	_, err = reconciler.Handle(ctx, succeeded("P2", "a@b.com", "monthly"))
	require.NoError(t, err)
	sub := store.subsByEmail("a@b.com")[0]
	assert.Equal(t, verifyNow.AddDate(0, 1, 0).AddDate(0, 1, 0), sub.ExpiresAt)
	assert.Equal(t, "dev-1", sub.BoundFingerprint())

	_, err = reconciler.Handle(ctx, RefundSucceeded{RefundID: "R2", PaymentID: "P2"})
	require.NoError(t, err)

	_, err = verifier.Verify(ctx, verifyInput("dev-1"))
	svcErr = requireKind(t, err, KindBlocked)
	assert.Equal(t, "subscription is deactivated", svcErr.Message)
}

func TestPaymentWithUnreadableAmountStillGrantsSubscription(t *testing.T) {
	now := verifyNow
	store := newMemStore()
	r := newTestReconciler(store, &now, nil)

	ev, err := ParseEvent([]byte(`{"type":"notification","event":"payment.succeeded",
		"object":{"id":"P1","amount":{"value":"n/a","currency":"RUB"},"metadata":{"email":"a@b.com","plan":"monthly"}}}`))
	require.NoError(t, err)

	outcome, err := r.Handle(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	require.Len(t, store.subsByEmail("a@b.com"), 1)
	p, ok := store.payment("P1")
	require.True(t, ok)
	assert.True(t, p.Amount.IsZero())
}
