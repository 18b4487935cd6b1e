package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/chatrelay/core/logger"
)

// DefaultSubscriberBuffer is the buffer size of each subscription stream.
const DefaultSubscriberBuffer = 32

// Broker is an in-memory PubSub for single-instance deployments and tests.
// It is non-durable and drops payloads for subscribers whose stream buffer
// is full rather than blocking the publisher.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	log    *slog.Logger
	closed bool
}

type subscription struct {
	ch chan Message
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithSubscriberBuffer sets the per-subscription stream buffer size.
func WithSubscriberBuffer(size int) BrokerOption {
	return func(b *Broker) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// WithBrokerLogger configures structured logging for the broker.
func WithBrokerLogger(log *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBroker creates an in-memory broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: DefaultSubscriberBuffer,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers payload to every current subscriber of channel.
// A subscriber whose buffer is full misses the payload; the publisher is
// never blocked.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for sub := range b.subs[channel] {
		select {
		case sub.ch <- Message{Channel: channel, Payload: payload}:
		default:
			b.log.DebugContext(ctx, "dropping payload for slow subscriber",
				logger.Channel(channel))
		}
	}
	return nil
}

// Subscribe attaches a new stream to channel. The stream is closed and the
// subscription removed when ctx is canceled.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}

	sub := &subscription{ch: make(chan Message, b.buffer)}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(channel, sub)
	}()

	return sub.ch, nil
}

// Subscribers reports how many streams are attached to a channel.
func (b *Broker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *Broker) remove(channel string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[channel]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(b.subs, channel)
		}
	}
}

// Close shuts the broker down and closes every subscription stream.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	b.closed = true

	for channel, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, channel)
	}
	return nil
}
