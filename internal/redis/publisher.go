package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher writes raw payloads to a named channel. Envelope encoding and
// conversation channel naming live with the delivery channel in events.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends one payload. No retry, no buffering: a failed publish is
// the caller's signal that the notification was lost.
func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
