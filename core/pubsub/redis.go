package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/chatrelay/core/logger"
)

// RedisBroker implements PubSub over Redis pub/sub, bridging channels across
// server instances. Delivery inherits Redis pub/sub semantics: non-durable,
// at-least-once to currently attached subscribers.
type RedisBroker struct {
	client *redis.Client
	log    *slog.Logger
}

// RedisBrokerOption configures a RedisBroker.
type RedisBrokerOption func(*RedisBroker)

// WithRedisBrokerLogger configures structured logging for the broker.
func WithRedisBrokerLogger(log *slog.Logger) RedisBrokerOption {
	return func(b *RedisBroker) {
		if log != nil {
			b.log = log
		}
	}
}

// NewRedisBroker wraps an established Redis client.
func NewRedisBroker(client *redis.Client, opts ...RedisBrokerOption) *RedisBroker {
	b := &RedisBroker{
		client: client,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends payload to channel via Redis.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe attaches to channel. It blocks until Redis confirms the
// subscription, so payloads published after Subscribe returns are delivered.
// The stream closes when ctx is canceled.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := b.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so callers can rely on
	// delivery of anything published after this point.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe to %s: %w", channel, err)
	}

	out := make(chan Message, DefaultSubscriberBuffer)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Close(); err != nil {
				b.log.Debug("closing redis subscription", logger.Channel(channel), logger.Error(err))
			}
		}()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
