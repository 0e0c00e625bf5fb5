package services

import (
	"context"
	"fmt"
	"time"

	"github.com/umit144/license-sync/internal/models"
	"github.com/umit144/license-sync/internal/ports"
	"go.uber.org/zap"
)

// SubscriptionService notifies about active subscriptions that lapse within
// the window ahead of now or lapsed within the same window behind it.
// Consumers are expected to deduplicate.
type SubscriptionService interface {
	ProcessExpiringSubscriptions(ctx context.Context) (int, error)
}

type subscriptionService struct {
	store     ports.SubscriptionStore
	publisher Publisher
	log       *zap.Logger
	window    time.Duration
	batchSize int
	now       func() time.Time
}

func NewSubscriptionService(
	store ports.SubscriptionStore,
	publisher Publisher,
	log *zap.Logger,
	window time.Duration,
	batchSize int,
	now func() time.Time,
) SubscriptionService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if now == nil {
		now = time.Now
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &subscriptionService{
		store:     store,
		publisher: publisher,
		log:       log,
		window:    window,
		batchSize: batchSize,
		now:       now,
	}
}

func (s *subscriptionService) ProcessExpiringSubscriptions(ctx context.Context) (int, error) {
	now := s.now().UTC()
	q := ports.ExpiryQuery{
		From:   now.Add(-s.window),
		Before: now.Add(s.window),
		Limit:  s.batchSize,
	}

	published := 0
	for {
		subs, err := s.store.ListExpiring(ctx, q)
		if err != nil {
			return published, fmt.Errorf("fetching expiring subscriptions: %w", err)
		}

		published += s.publishBatch(ctx, subs, now)

		if len(subs) < s.batchSize {
			return published, nil
		}
		if err := ctx.Err(); err != nil {
			return published, err
		}
		last := subs[len(subs)-1]
		q.AfterExpiry, q.AfterID = last.ExpiresAt, last.ID
	}
}

func (s *subscriptionService) publishBatch(ctx context.Context, subs []models.Subscription, now time.Time) int {
	published := 0
	for _, sub := range subs {
		event := SubscriptionEvent{
			Event:          expiryEvent(sub, now),
			SubscriptionID: sub.ID,
			Email:          sub.Email,
			Plan:           string(sub.Plan),
			ExpiresAt:      sub.ExpiresAt,
		}

		if err := s.publisher.Publish(ctx, ChannelSubscriptionExpiring, event); err != nil {
			s.log.Error("failed to publish expiry event", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		published++
		s.log.Info("expiry event published",
			zap.String("subscription_id", sub.ID),
			zap.String("event", event.Event),
			zap.Int("days_left", sub.DaysLeft(now)))
	}
	return published
}

func expiryEvent(sub models.Subscription, now time.Time) string {
	if sub.ExpiresAt.After(now) {
		return "expiring"
	}
	return "expired"
}
