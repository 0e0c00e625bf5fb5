package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ChannelSubscriptionUpdated  = "notifications.subscription.updated"
	ChannelSubscriptionExpiring = "notifications.subscription.expiring"
)

type SubscriptionEvent struct {
	Event          string    `json:"event"`
	SubscriptionID string    `json:"subscriptionId"`
	Email          string    `json:"email"`
	LicenseKey     string    `json:"licenseKey,omitempty"`
	Plan           string    `json:"plan,omitempty"`
	ExpiresAt      time.Time `json:"expiresAt"`
	PaymentID      string    `json:"paymentId,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event SubscriptionEvent) error
}

type RedisPublisher struct {
	redis   *redis.Client
	timeout time.Duration
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client, timeout: 5 * time.Second}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, event SubscriptionEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}

	if err := p.redis.Publish(ctx, channel, string(data)).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, SubscriptionEvent) error { return nil }

// notify publishes best effort; a lost notification never fails the caller.
func notify(ctx context.Context, p Publisher, log *zap.Logger, channel string, event SubscriptionEvent) {
	if err := p.Publish(ctx, channel, event); err != nil {
		log.Warn("failed to publish subscription event",
			zap.String("channel", channel),
			zap.String("event", event.Event),
			zap.Error(err))
		return
	}
	log.Debug("subscription event published", zap.String("channel", channel), zap.String("event", event.Event))
}
