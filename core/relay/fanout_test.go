package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/chat"
	"github.com/dmitrymomot/chatrelay/core/envelope"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
)

// instance is one simulated server process: a coordinator with its room
// relay attached, sharing the pub/sub substrate with its peers.
type instance struct {
	coord *Coordinator
	relay *RoomRelay
	proto *Protocol
}

func startInstance(t *testing.T, bus *pubsub.Broker, store chat.Store) *instance {
	t.Helper()

	coord := NewCoordinator()
	relay := NewRoomRelay(bus, coord)

	ctx, cancel := context.WithCancel(context.Background())
	relay.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	cfg := DefaultConfig()
	cfg.HistoryRate = 10000
	return &instance{
		coord: coord,
		relay: relay,
		proto: NewProtocol(coord, store, cfg, WithRoomRelay(relay)),
	}
}

// waitRoomListeners blocks until n room listeners are attached to room's
// channel on the shared substrate.
func waitRoomListeners(t *testing.T, bus *pubsub.Broker, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bus.Subscribers(pubsub.RoomChannel(room)) == n
	}, time.Second, time.Millisecond)
}

func TestRoomRelay_CrossInstance(t *testing.T) {
	t.Parallel()

	bus := pubsub.NewBroker()
	store := chat.NewMemoryStore()
	a := startInstance(t, bus, store)
	b := startInstance(t, bus, store)

	sender := newTestConn("alice", 8)
	localPeer := newTestConn("carol", 8)
	remotePeer := newTestConn("bob", 8)

	a.coord.Register(sender)
	a.coord.Subscribe(sender, "r1")
	a.coord.Register(localPeer)
	a.coord.Subscribe(localPeer, "r1")
	b.coord.Register(remotePeer)
	b.coord.Subscribe(remotePeer, "r1")

	waitRoomListeners(t, bus, "r1", 2)

	a.proto.HandleFrame(context.Background(), sender,
		[]byte(`{"kind":"chat","room":"r1","payload":{"content":"across"}}`))

	// The remote member receives the frame through the substrate.
	env := recvEnvelope(t, remotePeer)
	assert.Equal(t, envelope.KindChat, env.Kind)
	assert.Equal(t, "alice", env.Sender)
	var p envelope.ChatPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, "across", p.Content)

	// The local peer receives exactly one copy: the direct broadcast.
	// The frame coming back over the substrate carries the origin id of
	// instance a and is skipped.
	first := recvEnvelope(t, localPeer)
	assert.Equal(t, envelope.KindChat, first.Kind)
	expectNoFrame(t, localPeer)

	// The sender gets the ack only, never an echo of its own frame.
	ack := recvEnvelope(t, sender)
	assert.Equal(t, envelope.KindAck, ack.Kind)
	expectNoFrame(t, sender)
}

func TestRoomRelay_ListenerLifecycle(t *testing.T) {
	t.Parallel()

	bus := pubsub.NewBroker()
	a := startInstance(t, bus, chat.NewMemoryStore())

	conn := newTestConn("alice", 8)
	a.coord.Register(conn)
	a.coord.Subscribe(conn, "r1")
	waitRoomListeners(t, bus, "r1", 1)

	// The last member leaving deletes the room, which detaches the
	// listener from the substrate.
	a.coord.Unsubscribe(conn, "r1")
	waitRoomListeners(t, bus, "r1", 0)

	// Rejoining reattaches.
	a.coord.Subscribe(conn, "r1")
	waitRoomListeners(t, bus, "r1", 1)
}

func TestRoomRelay_DistinctOrigins(t *testing.T) {
	t.Parallel()

	bus := pubsub.NewBroker()
	a := startInstance(t, bus, chat.NewMemoryStore())
	b := startInstance(t, bus, chat.NewMemoryStore())

	assert.NotEqual(t, a.relay.InstanceID(), b.relay.InstanceID())
}
