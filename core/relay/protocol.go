package relay

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/chatrelay/core/chat"
	"github.com/dmitrymomot/chatrelay/core/envelope"
	"github.com/dmitrymomot/chatrelay/core/logger"
)

// Protocol is the single dispatch point for inbound frames: it decodes them,
// validates them against connection state, invokes the persistence
// collaborator, and turns them into coordinator commands and replies.
//
// Membership checks are a security boundary, not an optimization: room
// membership implicitly encodes the receiver set, so a frame referencing a
// room the sender has not joined produces an error reply and nothing else.
type Protocol struct {
	coord *Coordinator
	store chat.Store
	relay *RoomRelay
	cfg   Config
	log   *slog.Logger
}

// ProtocolOption configures a Protocol.
type ProtocolOption func(*Protocol)

// WithProtocolLogger configures structured logging for the protocol handler.
func WithProtocolLogger(log *slog.Logger) ProtocolOption {
	return func(p *Protocol) {
		if log != nil {
			p.log = log
		}
	}
}

// WithRoomRelay enables cross-instance fan-out: local broadcasts are also
// published to the room's channel for other instances to replay.
func WithRoomRelay(relay *RoomRelay) ProtocolOption {
	return func(p *Protocol) {
		p.relay = relay
	}
}

// NewProtocol creates the dispatch point over the given coordinator and
// persistence collaborator.
func NewProtocol(coord *Coordinator, store chat.Store, cfg Config, opts ...ProtocolOption) *Protocol {
	p := &Protocol{
		coord: coord,
		store: store,
		cfg:   cfg.withDefaults(),
		log:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleFrame processes one raw inbound frame from conn. Decode and
// precondition failures are answered with error replies and leave the
// connection open; only the caller's read loop decides termination.
func (p *Protocol) HandleFrame(ctx context.Context, conn *Conn, raw []byte) {
	env, err := envelope.Decode(raw)
	if err != nil {
		p.reply(conn, envelope.NewError(envelope.CodeDecodeError, err.Error()))
		return
	}

	switch env.Kind {
	case envelope.KindSubscribe:
		p.handleSubscribe(ctx, conn, env)
	case envelope.KindUnsubscribe:
		p.handleUnsubscribe(ctx, conn, env)
	case envelope.KindCreateThread:
		p.handleCreateThread(ctx, conn, env)
	case envelope.KindChat:
		p.handleChat(ctx, conn, env)
	case envelope.KindTyping:
		p.handleTyping(ctx, conn, env)
	case envelope.KindRead:
		p.handleRead(ctx, conn, env)
	}
}

func (p *Protocol) handleSubscribe(ctx context.Context, conn *Conn, env envelope.Envelope) {
	if env.Room == "" {
		p.reply(conn, envelope.NewError(envelope.CodeInvalidFrame, "subscribe requires a room"))
		return
	}
	if conn.InRoom(env.Room) {
		// Re-subscribing is a no-op: no duplicate join broadcast, no
		// duplicate history replay.
		return
	}

	p.coord.Subscribe(conn, env.Room)

	join, err := envelope.New(envelope.KindSystemJoin, env.Room, conn.UserID(), nil)
	if err != nil {
		p.log.Error("building system_join", logger.Room(env.Room), logger.Error(err))
		return
	}
	p.broadcast(ctx, env.Room, join, conn)

	go p.replayHistory(ctx, conn, env.Room)
}

func (p *Protocol) handleUnsubscribe(ctx context.Context, conn *Conn, env envelope.Envelope) {
	if !p.requireMembership(conn, env.Room) {
		return
	}

	p.coord.Unsubscribe(conn, env.Room)

	leave, err := envelope.New(envelope.KindSystemLeave, env.Room, conn.UserID(), nil)
	if err != nil {
		p.log.Error("building system_leave", logger.Room(env.Room), logger.Error(err))
		return
	}
	p.broadcast(ctx, env.Room, leave, conn)
}

func (p *Protocol) handleCreateThread(ctx context.Context, conn *Conn, env envelope.Envelope) {
	var payload envelope.CreateThreadPayload
	if err := env.DecodePayload(&payload); err != nil {
		p.reply(conn, envelope.NewError(envelope.CodeDecodeError, err.Error()))
		return
	}
	if payload.Title == "" {
		p.reply(conn, envelope.NewError(envelope.CodeInvalidFrame, "thread title must not be empty"))
		return
	}

	thread, err := p.store.CreateThread(ctx, payload.Title, conn.UserID())
	if err != nil {
		p.storeError(conn, "create thread", err)
		return
	}

	// The reply goes to the requester only; joining the live room is an
	// explicit follow-up subscribe.
	created, err := envelope.New(envelope.KindThreadCreated, thread.ID, conn.UserID(),
		envelope.ThreadCreatedPayload{RoomID: thread.ID, Title: thread.Title})
	if err != nil {
		p.log.Error("building thread_created", logger.Error(err))
		return
	}
	p.reply(conn, created)
}

func (p *Protocol) handleChat(ctx context.Context, conn *Conn, env envelope.Envelope) {
	if !p.requireMembership(conn, env.Room) {
		return
	}

	var payload envelope.ChatPayload
	if err := env.DecodePayload(&payload); err != nil {
		p.reply(conn, envelope.NewError(envelope.CodeDecodeError, err.Error()))
		return
	}
	if payload.Content == "" {
		p.reply(conn, envelope.NewError(envelope.CodeInvalidFrame, "message content must not be empty"))
		return
	}

	msg, err := p.store.CreateMessage(ctx, env.Room, conn.UserID(), payload.Content)
	if err != nil {
		p.storeError(conn, "create message", err)
		return
	}

	out, err := envelope.New(envelope.KindChat, env.Room, conn.UserID(),
		envelope.ChatPayload{ID: msg.ID, Content: msg.Content})
	if err != nil {
		p.log.Error("building chat envelope", logger.Room(env.Room), logger.Error(err))
		return
	}
	out.Timestamp = msg.CreatedAt
	p.broadcast(ctx, env.Room, out, conn)

	ack, err := envelope.New(envelope.KindAck, env.Room, conn.UserID(), envelope.AckPayload{MessageID: msg.ID})
	if err != nil {
		p.log.Error("building ack", logger.Error(err))
		return
	}
	p.reply(conn, ack)
}

func (p *Protocol) handleTyping(ctx context.Context, conn *Conn, env envelope.Envelope) {
	if !p.requireMembership(conn, env.Room) {
		return
	}

	var payload envelope.TypingPayload
	if err := env.DecodePayload(&payload); err != nil {
		p.reply(conn, envelope.NewError(envelope.CodeDecodeError, err.Error()))
		return
	}

	out, err := envelope.New(envelope.KindTyping, env.Room, conn.UserID(), payload)
	if err != nil {
		p.log.Error("building typing envelope", logger.Room(env.Room), logger.Error(err))
		return
	}
	p.broadcast(ctx, env.Room, out, conn)
}

func (p *Protocol) handleRead(ctx context.Context, conn *Conn, env envelope.Envelope) {
	if !p.requireMembership(conn, env.Room) {
		return
	}

	var payload envelope.ReadPayload
	if err := env.DecodePayload(&payload); err != nil {
		p.reply(conn, envelope.NewError(envelope.CodeDecodeError, err.Error()))
		return
	}
	if len(payload.MessageIDs) == 0 {
		p.reply(conn, envelope.NewError(envelope.CodeInvalidFrame, "read requires message ids"))
		return
	}

	for _, id := range payload.MessageIDs {
		if err := p.store.MarkRead(ctx, id, conn.UserID()); err != nil {
			p.storeError(conn, "mark read", err)
			return
		}
	}

	out, err := envelope.New(envelope.KindRead, env.Room, conn.UserID(), payload)
	if err != nil {
		p.log.Error("building read envelope", logger.Room(env.Room), logger.Error(err))
		return
	}
	p.broadcast(ctx, env.Room, out, conn)
}

// Disconnect broadcasts a system_leave for every room the connection still
// belongs to. Called when a connection goes away without explicit
// unsubscribes; the caller deregisters afterwards.
func (p *Protocol) Disconnect(ctx context.Context, conn *Conn) {
	for _, room := range conn.Rooms() {
		leave, err := envelope.New(envelope.KindSystemLeave, room, conn.UserID(), nil)
		if err != nil {
			p.log.Error("building system_leave", logger.Room(room), logger.Error(err))
			continue
		}
		p.broadcast(ctx, room, leave, conn)
	}
}

// replayHistory sends a bounded page of room history to a fresh subscriber,
// oldest first, throttled so the subscriber's own queue is not saturated.
// It aborts silently on cancellation or when the queue fills.
func (p *Protocol) replayHistory(ctx context.Context, conn *Conn, room string) {
	page, err := p.store.ListMessages(ctx, room, p.cfg.HistoryPageSize, 0)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Error("fetching history", logger.Room(room), logger.Error(err))
			p.reply(conn, envelope.NewError(envelope.CodeInternal, "history unavailable"))
		}
		return
	}

	limiter := rate.NewLimiter(rate.Limit(p.cfg.HistoryRate), 1)
	for _, msg := range page {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		out, err := envelope.New(envelope.KindChat, room, msg.SenderID,
			envelope.ChatPayload{ID: msg.ID, Content: msg.Content})
		if err != nil {
			p.log.Error("building history frame", logger.Room(room), logger.Error(err))
			return
		}
		out.Timestamp = msg.CreatedAt

		raw, err := envelope.Encode(out)
		if err != nil {
			p.log.Error("encoding history frame", logger.Room(room), logger.Error(err))
			return
		}
		if !conn.TrySend(raw) {
			// The subscriber cannot keep up with its own history; stop
			// rather than block or terminate.
			return
		}
	}
}

// storeError logs a persistence failure and answers the sender with an
// internal error so the client can retry without the details leaking out.
func (p *Protocol) storeError(conn *Conn, op string, err error) {
	p.log.Error(op, logger.UserID(conn.UserID()), logger.Error(err))
	p.reply(conn, envelope.NewError(envelope.CodeInternal, op+" failed"))
}

// requireMembership answers a not_member error and returns false when conn
// has not subscribed to room. An empty room id is treated the same way.
func (p *Protocol) requireMembership(conn *Conn, room string) bool {
	if room == "" || !conn.InRoom(room) {
		p.reply(conn, envelope.NewError(envelope.CodeNotMember, "not a member of room "+room))
		return false
	}
	return true
}

// reply sends an envelope to one connection only. A full queue is handled
// by the backpressure policy: the connection is deregistered.
func (p *Protocol) reply(conn *Conn, env envelope.Envelope) {
	raw, err := envelope.Encode(env)
	if err != nil {
		p.log.Error("encoding reply", logger.Kind(string(env.Kind)), logger.Error(err))
		return
	}
	if !conn.TrySend(raw) {
		p.log.Info("reply queue overflow, dropping connection",
			logger.ConnID(conn.ID()), logger.UserID(conn.UserID()))
		p.coord.Deregister(conn)
	}
}

// broadcast fans an envelope out locally and, when a room relay is
// configured, publishes it for other instances.
func (p *Protocol) broadcast(ctx context.Context, room string, env envelope.Envelope, exclude *Conn) {
	raw, err := envelope.Encode(env)
	if err != nil {
		p.log.Error("encoding broadcast", logger.Kind(string(env.Kind)), logger.Error(err))
		return
	}

	p.coord.Broadcast(room, raw, exclude)

	if p.relay != nil {
		if err := p.relay.PublishFrame(ctx, room, raw); err != nil {
			p.log.Error("publishing frame to room channel",
				logger.Room(room), logger.Error(err))
		}
	}
}
