package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeRenewed   Outcome = "renewed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeRefunded  Outcome = "refunded"
	OutcomeIgnored   Outcome = "ignored"
)

// WebhookReconciler applies payment provider events to subscriptions. Each
// provider payment id is applied at most once: the payment ledger row is
// inserted in the same transaction as the subscription write.
type WebhookReconciler struct {
	store     ports.Store
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
	newKey    func(time.Time) string
	newID     func() string
}

type ReconcilerOption func(*WebhookReconciler)

func WithPublisher(p Publisher) ReconcilerOption {
	return func(r *WebhookReconciler) {
		if p != nil {
			r.publisher = p
		}
	}
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *WebhookReconciler) { r.now = now }
}

func WithKeyGenerator(gen func(time.Time) string) ReconcilerOption {
	return func(r *WebhookReconciler) { r.newKey = gen }
}

func NewWebhookReconciler(store ports.Store, log *zap.Logger, opts ...ReconcilerOption) *WebhookReconciler {
	r := &WebhookReconciler{
		store:     store,
		publisher: nopPublisher{},
		log:       log,
		now:       time.Now,
		newKey:    models.GenerateLicenseKey,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *WebhookReconciler) Handle(ctx context.Context, event Event) (Outcome, error) {
	switch ev := event.(type) {
	case PaymentSucceeded:
		return r.paymentSucceeded(ctx, ev)
	case PaymentCanceled:
		return r.paymentCanceled(ctx, ev)
	case RefundSucceeded:
		return r.refundSucceeded(ctx, ev)
	case IgnoredEvent:
		r.log.Info("unhandled webhook event", zap.String("type", ev.Type), zap.String("event", ev.Event))
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("unsupported event %T", event)
	}
}

func (r *WebhookReconciler) paymentSucceeded(ctx context.Context, ev PaymentSucceeded) (Outcome, error) {
	log := r.log.With(zap.String("payment_id", ev.PaymentID))
	email := models.NormalizeEmail(ev.Email)
	if email == "" {
		log.Error("no email in payment metadata")
		return OutcomeIgnored, nil
	}

	now := r.now().UTC()
	plan := models.NormalizePlan(ev.Plan)
	payment := &models.Payment{
		ID:        r.newID(),
		PaymentID: ev.PaymentID,
		Amount:    ev.Amount,
		Currency:  ev.Currency,
		Status:    models.PaymentSucceeded,
		Provider:  models.ProviderYooKassa,
		Metadata:  models.Metadata(ev.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		sub     *models.Subscription
		outcome Outcome
	)
	err := r.store.InTx(ctx, func(tx ports.LedgerTx) error {
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		existing, err := tx.LockSubscriptionByEmail(ctx, email)
		switch {
		case errors.Is(err, ports.ErrNotFound):
			sub = &models.Subscription{
				ID:         r.newID(),
				Email:      email,
				LicenseKey: r.newKey(now),
				Status:     models.StatusActive,
				Plan:       plan,
				ExpiresAt:  plan.Extend(now),
				PaymentID:  &payment.PaymentID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.CreateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("create subscription: %w", err)
			}
			outcome = OutcomeCreated
		case err != nil:
			return fmt.Errorf("lock subscription: %w", err)
		default:
			existing.ExpiresAt = models.RenewalExpiry(existing.ExpiresAt, now, plan)
			existing.Status = models.StatusActive
			existing.Plan = plan
			existing.PaymentID = &payment.PaymentID
			existing.UpdatedAt = now
			if err := tx.RenewSubscription(ctx, existing); err != nil {
				return fmt.Errorf("renew subscription: %w", err)
			}
			sub = existing
			outcome = OutcomeRenewed
		}

		if err := tx.LinkPayment(ctx, payment.PaymentID, sub.ID, now); err != nil {
			log.Warn("failed to link payment to subscription", zap.Error(err))
		}
		return nil
	})

	if errors.Is(err, ports.ErrDuplicatePayment) {
		// Redelivery: the subscription was already credited for this payment.
		if err := r.store.UpsertPayment(ctx, payment); err != nil {
			log.Warn("failed to refresh payment record", zap.Error(err))
		}
		log.Info("duplicate payment notification ignored")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("processing payment %s: %w", ev.PaymentID, err)
	}

	log.Info("payment processed",
		zap.String("outcome", string(outcome)),
		zap.String("subscription_id", sub.ID),
		zap.String("email", email),
		zap.Time("expires_at", sub.ExpiresAt))

	notify(ctx, r.publisher, r.log, ChannelSubscriptionUpdated, SubscriptionEvent{
		Event:          string(outcome),
		SubscriptionID: sub.ID,
		Email:          sub.Email,
		LicenseKey:     sub.LicenseKey,
		Plan:           string(sub.Plan),
		ExpiresAt:      sub.ExpiresAt,
		PaymentID:      payment.PaymentID,
	})
	return outcome, nil
}

func (r *WebhookReconciler) paymentCanceled(ctx context.Context, ev PaymentCanceled) (Outcome, error) {
	matched, err := r.store.UpdatePaymentStatus(ctx, ev.PaymentID, models.PaymentCanceled, r.now().UTC())
	if err != nil {
		return "", fmt.Errorf("cancel payment %s: %w", ev.PaymentID, err)
	}
	if !matched {
		r.log.Info("canceled payment has no ledger row", zap.String("payment_id", ev.PaymentID))
		return OutcomeIgnored, nil
	}
	r.log.Info("payment canceled", zap.String("payment_id", ev.PaymentID))
	return OutcomeCanceled, nil
}

func (r *WebhookReconciler) refundSucceeded(ctx context.Context, ev RefundSucceeded) (Outcome, error) {
	log := r.log.With(zap.String("payment_id", ev.PaymentID), zap.String("refund_id", ev.RefundID))
	now := r.now().UTC()
	outcome := OutcomeIgnored

	sub, err := r.store.FindByPaymentID(ctx, ev.PaymentID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		log.Warn("refund does not match any subscription")
	case err != nil:
		return "", fmt.Errorf("find subscription for refund: %w", err)
	default:
		if err := r.store.UpdateStatus(ctx, sub.ID, models.StatusInactive, now); err != nil {
			return "", fmt.Errorf("deactivate subscription %s: %w", sub.ID, err)
		}
		outcome = OutcomeRefunded
		log.Info("subscription deactivated after refund", zap.String("subscription_id", sub.ID), zap.String("email", sub.Email))
		notify(ctx, r.publisher, r.log, ChannelSubscriptionUpdated, SubscriptionEvent{
			Event:          "deactivated",
			SubscriptionID: sub.ID,
			Email:          sub.Email,
			LicenseKey:     sub.LicenseKey,
			Plan:           string(sub.Plan),
			ExpiresAt:      sub.ExpiresAt,
			PaymentID:      ev.PaymentID,
		})
	}

	if _, err := r.store.UpdatePaymentStatus(ctx, ev.PaymentID, models.PaymentRefunded, now); err != nil {
		log.Warn("failed to mark payment refunded", zap.Error(err))
	}
	return outcome, nil
}
