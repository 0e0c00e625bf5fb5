package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelSubscriptionUpdated)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	expires := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	pub := NewRedisPublisher(client)
	require.NoError(t, pub.Publish(ctx, ChannelSubscriptionUpdated, SubscriptionEvent{
		Event:          "created",
		SubscriptionID: "sub-1",
		Email:          "a@b.com",
		LicenseKey:     "FIGMA-000001-AAAA-BBBB",
		Plan:           "monthly",
		ExpiresAt:      expires,
		PaymentID:      "P1",
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "created", got["event"])
	assert.Equal(t, "sub-1", got["subscriptionId"])
	assert.Equal(t, "P1", got["paymentId"])
	assert.Equal(t, "FIGMA-000001-AAAA-BBBB", got["licenseKey"])
	assert.Equal(t, "2025-05-10T12:00:00Z", got["expiresAt"])
}

func TestRedisPublisherReportsConnectionErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	err := NewRedisPublisher(client).Publish(context.Background(), ChannelSubscriptionUpdated, SubscriptionEvent{Event: "created"})
	assert.ErrorContains(t, err, "publishing event")
}
