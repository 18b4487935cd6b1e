package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/envelope"
	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/notify"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
)

// startBridge attaches a notification bridge to conn and waits until its
// subscription is live, so the test can publish without racing attachment.
func startBridge(t *testing.T, bus *pubsub.Broker, conn *Conn, ctx context.Context) <-chan struct{} {
	t.Helper()

	channel := pubsub.UserChannel(conn.UserID())
	before := bus.Subscribers(channel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		forwardNotifications(ctx, bus, conn, logger.Discard())
	}()

	require.Eventually(t, func() bool {
		return bus.Subscribers(channel) > before
	}, time.Second, time.Millisecond)
	return done
}

func TestNotificationBridge(t *testing.T) {
	t.Parallel()

	t.Run("forwards published payloads verbatim", func(t *testing.T) {
		t.Parallel()

		bus := pubsub.NewBroker()
		conn := newTestConn("alice", 8)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := startBridge(t, bus, conn, ctx)
		defer func() { cancel(); <-done }()

		notifier := notify.New(bus)
		require.NoError(t, notifier.Send(context.Background(), "alice", notify.Notification{
			Type:   notify.TypeFriendRequest,
			FromID: "bob",
		}))

		env := recvEnvelope(t, conn)
		assert.Equal(t, envelope.KindNotification, env.Kind)
		var n notify.Notification
		require.NoError(t, env.DecodePayload(&n))
		assert.Equal(t, notify.TypeFriendRequest, n.Type)
		assert.Equal(t, "bob", n.FromID)
	})

	t.Run("every connection of a user receives the notification", func(t *testing.T) {
		t.Parallel()

		bus := pubsub.NewBroker()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		first := newTestConn("alice", 8)
		second := newTestConn("alice", 8)
		other := newTestConn("bob", 8)
		d1 := startBridge(t, bus, first, ctx)
		d2 := startBridge(t, bus, second, ctx)
		d3 := startBridge(t, bus, other, ctx)
		defer func() { cancel(); <-d1; <-d2; <-d3 }()

		notifier := notify.New(bus)
		require.NoError(t, notifier.Send(context.Background(), "alice", notify.Notification{
			Type: notify.TypeChatInvite, RoomID: "r1",
		}))

		for _, conn := range []*Conn{first, second} {
			env := recvEnvelope(t, conn)
			assert.Equal(t, envelope.KindNotification, env.Kind)
		}
		expectNoFrame(t, other)
	})

	t.Run("stops on cancellation and does not replay the gap", func(t *testing.T) {
		t.Parallel()

		bus := pubsub.NewBroker()
		conn := newTestConn("alice", 8)
		ctx, cancel := context.WithCancel(context.Background())
		done := startBridge(t, bus, conn, ctx)

		cancel()
		select {
		case <-done:
		case <-waitTimeout(t):
			t.Fatal("bridge did not stop on cancellation")
		}

		// Wait for the broker to drop the canceled subscription, then
		// publish while no bridge is attached: lost, by contract.
		channel := pubsub.UserChannel("alice")
		require.Eventually(t, func() bool {
			return bus.Subscribers(channel) == 0
		}, time.Second, time.Millisecond)

		notifier := notify.New(bus)
		require.NoError(t, notifier.Send(context.Background(), "alice", notify.Notification{
			Type: notify.TypeUnreadMessage,
		}))

		// A fresh bridge sees only what is published after it attaches.
		ctx2, cancel2 := context.WithCancel(context.Background())
		defer cancel2()
		done2 := startBridge(t, bus, conn, ctx2)
		defer func() { cancel2(); <-done2 }()

		expectNoFrame(t, conn)
		require.NoError(t, notifier.Send(context.Background(), "alice", notify.Notification{
			Type: notify.TypeFriendAccepted,
		}))
		env := recvEnvelope(t, conn)
		var n notify.Notification
		require.NoError(t, env.DecodePayload(&n))
		assert.Equal(t, notify.TypeFriendAccepted, n.Type)
	})

	t.Run("terminates the connection on queue overflow", func(t *testing.T) {
		t.Parallel()

		bus := pubsub.NewBroker()
		conn := newTestConn("alice", 1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := startBridge(t, bus, conn, ctx)

		notifier := notify.New(bus)
		// First fills the queue, second overflows it.
		require.NoError(t, notifier.Send(context.Background(), "alice", notify.Notification{Type: notify.TypeUnreadMessage}))
		require.NoError(t, notifier.Send(context.Background(), "alice", notify.Notification{Type: notify.TypeUnreadMessage}))

		select {
		case <-conn.Done():
		case <-waitTimeout(t):
			t.Fatal("overflowed connection was not terminated")
		}
		<-done
	})
}
