package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	portalredis "careportal/internal/redis"
	"careportal/pkg/logger"
	"careportal/pkg/metrics"
)

// Publisher is the producing half of the delivery channel.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Channel is the best-effort notification fan-out between the message
// store and conversation views. It guarantees nothing: notifications may
// be dropped, duplicated or delayed, and a subscriber that misses one must
// converge through its own re-poll.
type Channel interface {
	Publisher
	Subscribe(ctx context.Context, patientID, doctorID uuid.UUID, handler func(Envelope)) (Subscription, error)
}

// Subscription is a revocable registration of interest in one conversation.
// In-flight notifications may race Close; that is accepted, not an error.
type Subscription interface {
	Close()
}

type redisSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// RedisChannel implements Channel over Redis pub/sub.
type RedisChannel struct {
	client *redis.Client
	pub    *portalredis.Publisher
	log    *logger.Logger
}

func NewRedisChannel(client *redis.Client, log *logger.Logger) *RedisChannel {
	return &RedisChannel{client: client, pub: portalredis.NewPublisher(client), log: log}
}

func (c *RedisChannel) Publish(ctx context.Context, env Envelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}
	channel := ConversationChannel(env.PatientID, env.DoctorID)
	if err := c.pub.Publish(ctx, channel, payload); err != nil {
		return err
	}
	metrics.NotificationsPublished.WithLabelValues(string(env.Type)).Inc()
	return nil
}

// Subscribe registers interest in one conversation. The handler runs on the
// subscription's own goroutine. The receive loop reconnects with capped
// exponential backoff; anything published while disconnected is simply lost,
// which the subscriber's poller compensates for.
func (c *RedisChannel) Subscribe(ctx context.Context, patientID, doctorID uuid.UUID, handler func(Envelope)) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	channel := ConversationChannel(patientID, doctorID)

	go func() {
		defer close(done)
		backoff := time.Second
		for {
			err := c.receive(subCtx, channel, handler)
			if subCtx.Err() != nil {
				return
			}
			if c.log != nil {
				c.log.Warnf("delivery channel %s receive error, reconnecting in %s: %v", channel, backoff, err)
			}
			select {
			case <-subCtx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
		}
	}()

	return &redisSubscription{cancel: cancel, done: done}, nil
}

func (c *RedisChannel) receive(ctx context.Context, channel string, handler func(Envelope)) error {
	pubsub := c.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		env, err := ParseEnvelope([]byte(msg.Payload))
		if err != nil {
			if c.log != nil {
				c.log.Warnf("delivery channel %s: dropping malformed notification: %v", channel, err)
			}
			continue
		}
		handler(env)
	}
}
