package websocket

import (
	"context"

	"careportal/internal/events"
	"careportal/internal/redis"
)

// RedisBridge pumps delivery-channel notifications from Redis into the hub
// so connected browsers see them. It is fire-and-forget on both ends: a
// dropped notification is recovered by client-side polling.
type RedisBridge struct {
	subscriber *redis.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber *redis.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

// Run blocks until ctx is cancelled, forwarding every conversation
// notification to the hub channel of the same name.
func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{events.ConversationPattern}, func(channel string, payload []byte) {
		b.hub.Broadcast(channel, payload)
	})
}
