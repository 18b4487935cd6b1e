package relay

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dmitrymomot/chatrelay/core/envelope"
	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
	"github.com/dmitrymomot/chatrelay/core/token"
)

// Handler upgrades authenticated HTTP requests to relay connections. The
// bearer token travels as the "token" query parameter and is validated once,
// before the upgrade; frames are never re-authenticated.
type Handler struct {
	coord     *Coordinator
	proto     *Protocol
	validator token.Validator
	sub       pubsub.Subscriber
	cfg       Config
	log       *slog.Logger
	upgrader  *websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger configures structured logging for the handler and the
// connections it creates.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithOriginCheck sets the WebSocket origin check.
func WithOriginCheck(fn func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// WithAllowAnyOrigin disables the origin check. Development only.
func WithAllowAnyOrigin() HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// NewHandler builds the upgrade endpoint.
func NewHandler(coord *Coordinator, proto *Protocol, validator token.Validator, sub pubsub.Subscriber, cfg Config, opts ...HandlerOption) *Handler {
	h := &Handler{
		coord:     coord,
		proto:     proto,
		validator: validator,
		sub:       sub,
		cfg:       cfg.withDefaults(),
		log:       logger.Discard(),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler. It blocks for the lifetime of the
// connection, running the read loop inline.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.validator.Validate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.log.Debug("rejected upgrade", logger.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.Debug("upgrade failed", logger.UserID(identity.UserID), logger.Error(err))
		return
	}

	// The connection outlives the request context once hijacked; its
	// lifetime is bounded by this cancellation signal instead, shared with
	// the notification bridge.
	ctx, cancel := context.WithCancel(context.Background())
	conn := newConn(ws, identity, cancel, h.cfg, h.log)

	h.coord.Register(conn)
	defer h.coord.Deregister(conn)
	// Announce departure to rooms the peer never left explicitly. Runs
	// before deregistration; the connection's own context may already be
	// canceled, so the leave frames must not inherit it.
	defer h.proto.Disconnect(context.WithoutCancel(ctx), conn)

	go conn.writePump()
	go forwardNotifications(ctx, h.sub, conn, h.log)

	h.log.Info("connection established",
		logger.ConnID(conn.ID()), logger.UserID(identity.UserID))

	h.readLoop(ctx, conn)

	h.log.Info("connection closed",
		logger.ConnID(conn.ID()), logger.UserID(identity.UserID))
}

// readLoop consumes inbound frames until the transport fails, the peer
// closes, or the liveness window expires without a pong. Inbound frames are
// rate-limited per connection; frames over the limit are answered with an
// error and dropped without reaching the protocol.
func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	ws := conn.ws
	// The transport read limit sits above the protocol frame cap so an
	// oversized frame still reaches Decode and is answered with a decode
	// error instead of a 1009 close. Only grossly oversized payloads are
	// cut at the transport.
	readLimit := h.cfg.MaxMessageSize
	if readLimit < 2*envelope.MaxFrameSize {
		readLimit = 2 * envelope.MaxFrameSize
	}
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.FrameRate), h.cfg.FrameBurst)

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				h.log.Debug("read failed", logger.ConnID(conn.ID()), logger.Error(err))
			}
			return
		}

		if !limiter.Allow() {
			reply, err := envelope.Encode(envelope.NewError(envelope.CodeRateLimited, "too many frames"))
			if err == nil {
				_ = conn.TrySend(reply)
			}
			continue
		}

		h.proto.HandleFrame(ctx, conn, raw)
	}
}
