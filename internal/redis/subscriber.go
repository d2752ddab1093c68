package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe pattern-subscribes to the given channels and invokes handler
// for each received message. It blocks until ctx is cancelled, reconnecting
// with capped exponential backoff after receive errors. Messages published
// while disconnected are lost; subscribers are expected to tolerate that.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	backoff := reconnectMin
	for {
		if err := s.receive(ctx, channels, handler); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		backoff = reconnectMin
	}
}

func (s *Subscriber) receive(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	sub := s.client.PSubscribe(ctx, channels...)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
