package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/token"
)

// Conn wraps one live client transport: a bounded outbound delivery queue
// drained by a dedicated write pump, the identity resolved at upgrade time,
// and the set of rooms the connection currently belongs to.
//
// Teardown converges on Terminate regardless of cause (read failure, write
// failure, pong timeout, queue overflow, coordinator-initiated removal) and
// is idempotent.
type Conn struct {
	id       string
	identity token.Identity
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	cancel   context.CancelFunc
	cfg      Config
	log      *slog.Logger

	// Joined rooms. Mutated only by the coordinator loop; read by the
	// protocol handler on the read goroutine, hence the guard.
	mu    sync.RWMutex
	rooms map[string]struct{}
}

// newConn builds a connection around an upgraded transport. cancel is the
// cancellation signal shared with the connection's background listeners; it
// fires during teardown.
func newConn(ws *websocket.Conn, identity token.Identity, cancel context.CancelFunc, cfg Config, log *slog.Logger) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		identity: identity,
		ws:       ws,
		send:     make(chan []byte, cfg.SendQueueSize),
		done:     make(chan struct{}),
		cancel:   cancel,
		cfg:      cfg,
		log:      log,
		rooms:    make(map[string]struct{}),
	}
}

// ID is the unique connection id. A user with several simultaneous
// connections owns several distinct ids.
func (c *Conn) ID() string { return c.id }

// UserID is the authenticated user behind the connection.
func (c *Conn) UserID() string { return c.identity.UserID }

// Identity returns the full identity resolved at upgrade time.
func (c *Conn) Identity() token.Identity { return c.identity }

// Done is closed when the connection has been terminated.
func (c *Conn) Done() <-chan struct{} { return c.done }

// TrySend places a frame on the delivery queue without blocking. It returns
// false when the queue is full or the connection is already terminated; the
// caller decides the consequence (for broadcasts: terminate the laggard).
func (c *Conn) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Terminate tears the connection down: fires the shared cancellation signal,
// stops the write pump, and closes the transport, which in turn unblocks the
// read loop. Safe to call from any goroutine, any number of times.
func (c *Conn) Terminate() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		if c.ws == nil {
			return
		}
		if err := c.ws.Close(); err != nil {
			c.log.Debug("closing transport", logger.ConnID(c.id), logger.Error(err))
		}
	})
}

// writePump drains the delivery queue to the transport and emits a liveness
// ping every PingInterval. Any write failure terminates the connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Terminate()
	}()

	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(c.cfg.WriteWait)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return

		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("write failed",
					logger.ConnID(c.id), logger.UserID(c.identity.UserID), logger.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed",
					logger.ConnID(c.id), logger.UserID(c.identity.UserID), logger.Error(err))
				return
			}
		}
	}
}

// InRoom reports whether the connection is currently subscribed to room.
func (c *Conn) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Rooms returns a snapshot of the joined rooms.
func (c *Conn) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// joinRoom and leaveRoom are called only from the coordinator loop.

func (c *Conn) joinRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

func (c *Conn) leaveRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Conn) leaveAllRooms() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.rooms)
}
