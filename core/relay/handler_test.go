package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chatrelay/core/chat"
	"github.com/dmitrymomot/chatrelay/core/envelope"
	"github.com/dmitrymomot/chatrelay/core/notify"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
	"github.com/dmitrymomot/chatrelay/core/relay"
	"github.com/dmitrymomot/chatrelay/core/token"
)

type testServer struct {
	srv       *httptest.Server
	coord     *relay.Coordinator
	store     *chat.MemoryStore
	bus       *pubsub.Broker
	validator *token.JWTValidator
}

func newTestServer(t *testing.T, tweaks ...func(*relay.Config)) *testServer {
	t.Helper()

	validator, err := token.NewJWTValidator(token.Config{SigningKey: "test-signing-key"})
	require.NoError(t, err)

	bus := pubsub.NewBroker()
	store := chat.NewMemoryStore()
	coord := relay.NewCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = coord.Run(ctx)
	}()

	cfg := relay.DefaultConfig()
	cfg.HistoryRate = 10000
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	proto := relay.NewProtocol(coord, store, cfg)
	handler := relay.NewHandler(coord, proto, validator, bus, cfg, relay.WithAllowAnyOrigin())

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return &testServer{srv: srv, coord: coord, store: store, bus: bus, validator: validator}
}

// dial opens an authenticated client connection for userID.
func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	tok, err := s.validator.Mint(token.Identity{UserID: userID})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/?token=" + tok
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEnvelope(t *testing.T, ws *websocket.Conn) envelope.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func send(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestHandler_RejectsInvalidToken(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/?token=not-a-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(s.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_ChatRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	send(t, alice, `{"kind":"subscribe","room":"r1"}`)
	require.Eventually(t, func() bool {
		return s.coord.RoomSizes()["r1"] == 1
	}, time.Second, time.Millisecond)

	send(t, bob, `{"kind":"subscribe","room":"r1"}`)

	// Alice sees bob join.
	join := readEnvelope(t, alice)
	assert.Equal(t, envelope.KindSystemJoin, join.Kind)
	assert.Equal(t, "bob", join.Sender)

	send(t, alice, `{"kind":"chat","room":"r1","payload":{"content":"hello"}}`)

	// Bob receives the message; alice receives the ack, not an echo.
	msg := readEnvelope(t, bob)
	require.Equal(t, envelope.KindChat, msg.Kind)
	assert.Equal(t, "alice", msg.Sender)
	var p envelope.ChatPayload
	require.NoError(t, msg.DecodePayload(&p))
	assert.Equal(t, "hello", p.Content)

	ack := readEnvelope(t, alice)
	require.Equal(t, envelope.KindAck, ack.Kind)
	assert.Equal(t, "alice", ack.Sender)
	var ap envelope.AckPayload
	require.NoError(t, ack.DecodePayload(&ap))
	assert.Equal(t, p.ID, ap.MessageID)

	// The message is persisted and replayed to a late joiner.
	carol := s.dial(t, "carol")
	send(t, carol, `{"kind":"subscribe","room":"r1"}`)
	replayed := readEnvelope(t, carol)
	require.Equal(t, envelope.KindChat, replayed.Kind)
	var rp envelope.ChatPayload
	require.NoError(t, replayed.DecodePayload(&rp))
	assert.Equal(t, "hello", rp.Content)
	assert.Equal(t, p.ID, rp.ID)
}

func TestHandler_NonMemberGetsError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	eve := s.dial(t, "eve")

	send(t, eve, `{"kind":"chat","room":"r1","payload":{"content":"sneak"}}`)

	env := readEnvelope(t, eve)
	require.Equal(t, envelope.KindError, env.Kind)
	var p envelope.ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, envelope.CodeNotMember, p.Code)

	msgs, err := s.store.ListMessages(context.Background(), "r1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHandler_NotificationDelivery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	alice := s.dial(t, "alice")

	// Wait for the connection's notification bridge to attach.
	channel := pubsub.UserChannel("alice")
	require.Eventually(t, func() bool {
		return s.bus.Subscribers(channel) == 1
	}, time.Second, time.Millisecond)

	notifier := notify.New(s.bus)
	require.NoError(t, notifier.FriendRequest(context.Background(), "alice", "bob"))

	env := readEnvelope(t, alice)
	require.Equal(t, envelope.KindNotification, env.Kind)
	var n notify.Notification
	require.NoError(t, env.DecodePayload(&n))
	assert.Equal(t, notify.TypeFriendRequest, n.Type)
	assert.Equal(t, "bob", n.FromID)
}

func TestHandler_FrameRateLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(cfg *relay.Config) {
		cfg.FrameRate = 1
		cfg.FrameBurst = 1
	})
	alice := s.dial(t, "alice")

	// The first frame consumes the whole bucket; the second is rejected
	// before reaching the protocol.
	send(t, alice, `{"kind":"subscribe","room":"r1"}`)
	send(t, alice, `{"kind":"subscribe","room":"r2"}`)

	env := readEnvelope(t, alice)
	require.Equal(t, envelope.KindError, env.Kind)
	var p envelope.ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, envelope.CodeRateLimited, p.Code)

	require.Eventually(t, func() bool {
		sizes := s.coord.RoomSizes()
		return sizes["r1"] == 1 && sizes["r2"] == 0
	}, time.Second, time.Millisecond)
}

func TestHandler_OversizedFrameGetsDecodeError(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	alice := s.dial(t, "alice")

	send(t, alice, `{"kind":"subscribe","room":"r1"}`)
	require.Eventually(t, func() bool {
		return s.coord.RoomSizes()["r1"] == 1
	}, time.Second, time.Millisecond)

	// A frame over the protocol cap is rejected at decode, not cut at the
	// transport: the client gets an error reply and stays connected.
	huge := `{"kind":"chat","room":"r1","payload":{"content":"` +
		strings.Repeat("x", envelope.MaxFrameSize) + `"}}`
	send(t, alice, huge)

	env := readEnvelope(t, alice)
	require.Equal(t, envelope.KindError, env.Kind)
	var p envelope.ErrorPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, envelope.CodeDecodeError, p.Code)

	// Nothing was persisted, and the connection keeps working.
	msgs, err := s.store.ListMessages(context.Background(), "r1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	send(t, alice, `{"kind":"chat","room":"r1","payload":{"content":"short"}}`)
	ack := readEnvelope(t, alice)
	assert.Equal(t, envelope.KindAck, ack.Kind)
}

func TestHandler_DisconnectCleansUp(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	send(t, alice, `{"kind":"subscribe","room":"r1"}`)
	require.Eventually(t, func() bool {
		return s.coord.RoomSizes()["r1"] == 1
	}, time.Second, time.Millisecond)
	send(t, bob, `{"kind":"subscribe","room":"r1"}`)
	_ = readEnvelope(t, alice) // bob's system_join

	require.NoError(t, bob.Close())

	// Alice is told bob left even though he never unsubscribed.
	leave := readEnvelope(t, alice)
	require.Equal(t, envelope.KindSystemLeave, leave.Kind)
	assert.Equal(t, "bob", leave.Sender)
	assert.Equal(t, "r1", leave.Room)

	// The registry forgets bob, and his notification bridge detaches.
	require.Eventually(t, func() bool {
		return s.coord.RoomSizes()["r1"] == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return s.bus.Subscribers(pubsub.UserChannel("bob")) == 0
	}, time.Second, time.Millisecond)

	// The room keeps working for the remaining member.
	send(t, alice, `{"kind":"chat","room":"r1","payload":{"content":"still here"}}`)
	ack := readEnvelope(t, alice)
	assert.Equal(t, envelope.KindAck, ack.Kind)
}
