package relay

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/chatrelay/core/logger"
)

// Coordinator owns the room registry. All membership mutation and every
// broadcast is serialized through its single Run loop, so the registry needs
// no locks: connections talk to the coordinator exclusively over command
// channels, never by touching shared state.
type Coordinator struct {
	register    chan *Conn
	deregister  chan *Conn
	subscribe   chan membership
	unsubscribe chan membership
	broadcast   chan broadcastReq
	sizes       chan chan map[string]int

	// Owned exclusively by Run. Never read or written elsewhere.
	conns map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{}

	onRoomCreated func(room string)
	onRoomDeleted func(room string)

	log  *slog.Logger
	done chan struct{}
}

type membership struct {
	conn *Conn
	room string
	done chan struct{}
}

type broadcastReq struct {
	room    string
	payload []byte
	exclude *Conn
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger configures structured logging for the coordinator.
func WithCoordinatorLogger(log *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBroadcastBuffer sets the broadcast command queue capacity.
func WithBroadcastBuffer(size int) CoordinatorOption {
	return func(c *Coordinator) {
		if size > 0 {
			c.broadcast = make(chan broadcastReq, size)
		}
	}
}

// NewCoordinator creates a coordinator. Call Run to start processing.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		register:    make(chan *Conn),
		deregister:  make(chan *Conn),
		subscribe:   make(chan membership),
		unsubscribe: make(chan membership),
		broadcast:   make(chan broadcastReq, 256),
		sizes:       make(chan chan map[string]int),
		conns:       make(map[*Conn]struct{}),
		rooms:       make(map[string]map[*Conn]struct{}),
		log:         logger.Discard(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnRoomLifecycle installs hooks fired from the coordinator loop when a room
// is materialized or emptied. Hooks must not block and must not call back
// into the coordinator synchronously. Set before Run.
func (c *Coordinator) OnRoomLifecycle(created, deleted func(room string)) {
	c.onRoomCreated = created
	c.onRoomDeleted = deleted
}

// Run processes commands one at a time until ctx is canceled, then
// terminates every registered connection and returns ctx.Err().
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			for conn := range c.conns {
				conn.Terminate()
			}
			return ctx.Err()

		case conn := <-c.register:
			c.conns[conn] = struct{}{}
			c.log.Debug("connection registered",
				logger.ConnID(conn.ID()), logger.UserID(conn.UserID()),
				logger.Count("connections", len(c.conns)))

		case conn := <-c.deregister:
			c.removeConn(conn)

		case m := <-c.subscribe:
			c.handleSubscribe(m)

		case m := <-c.unsubscribe:
			c.handleUnsubscribe(m)

		case req := <-c.broadcast:
			c.fanOut(req)

		case reply := <-c.sizes:
			snapshot := make(map[string]int, len(c.rooms))
			for room, members := range c.rooms {
				snapshot[room] = len(members)
			}
			reply <- snapshot
		}
	}
}

// Register adds a connection to the live set. No room membership yet.
func (c *Coordinator) Register(conn *Conn) {
	select {
	case c.register <- conn:
	case <-c.done:
	}
}

// Deregister removes a connection from every room it belongs to, deletes
// rooms it leaves empty, and terminates it. Safe to call more than once.
func (c *Coordinator) Deregister(conn *Conn) {
	select {
	case c.deregister <- conn:
	case <-c.done:
		conn.Terminate()
	}
}

// Subscribe adds the connection to room, materializing the room lazily.
// It returns only after the coordinator has applied the change, so the
// caller observes InRoom == true for its next frame.
func (c *Coordinator) Subscribe(conn *Conn, room string) {
	m := membership{conn: conn, room: room, done: make(chan struct{})}
	select {
	case c.subscribe <- m:
		select {
		case <-m.done:
		case <-c.done:
		}
	case <-c.done:
	}
}

// Unsubscribe removes the connection from room, deleting the room if it is
// now empty. Like Subscribe, it returns only after the change is applied.
func (c *Coordinator) Unsubscribe(conn *Conn, room string) {
	m := membership{conn: conn, room: room, done: make(chan struct{})}
	select {
	case c.unsubscribe <- m:
		select {
		case <-m.done:
		case <-c.done:
		}
	case <-c.done:
	}
}

// Broadcast fans payload out to every member of room except exclude.
// Within one room, delivery order equals the order Broadcast calls are
// accepted. A member whose queue is full is deregistered immediately;
// delivery to the remaining members is never blocked.
func (c *Coordinator) Broadcast(room string, payload []byte, exclude *Conn) {
	select {
	case c.broadcast <- broadcastReq{room: room, payload: payload, exclude: exclude}:
	case <-c.done:
	}
}

// RoomSizes returns a snapshot of member counts per room. Empty rooms never
// appear: they are deleted the moment their last member leaves.
func (c *Coordinator) RoomSizes() map[string]int {
	reply := make(chan map[string]int, 1)
	select {
	case c.sizes <- reply:
		return <-reply
	case <-c.done:
		return nil
	}
}

// Everything below runs on the coordinator goroutine only.

func (c *Coordinator) handleSubscribe(m membership) {
	defer close(m.done)

	if _, ok := c.conns[m.conn]; !ok {
		return
	}

	members, ok := c.rooms[m.room]
	if !ok {
		members = make(map[*Conn]struct{})
		c.rooms[m.room] = members
		if c.onRoomCreated != nil {
			c.onRoomCreated(m.room)
		}
	}
	members[m.conn] = struct{}{}
	m.conn.joinRoom(m.room)

	c.log.Debug("subscribed",
		logger.ConnID(m.conn.ID()), logger.Room(m.room),
		logger.Count("members", len(members)))
}

func (c *Coordinator) handleUnsubscribe(m membership) {
	defer close(m.done)

	members, ok := c.rooms[m.room]
	if !ok {
		return
	}
	if _, ok := members[m.conn]; !ok {
		return
	}

	delete(members, m.conn)
	m.conn.leaveRoom(m.room)
	c.deleteRoomIfEmpty(m.room)

	c.log.Debug("unsubscribed", logger.ConnID(m.conn.ID()), logger.Room(m.room))
}

func (c *Coordinator) removeConn(conn *Conn) {
	if _, ok := c.conns[conn]; ok {
		delete(c.conns, conn)
		for _, room := range conn.Rooms() {
			if members, ok := c.rooms[room]; ok {
				delete(members, conn)
				c.deleteRoomIfEmpty(room)
			}
		}
		conn.leaveAllRooms()
		c.log.Debug("connection deregistered",
			logger.ConnID(conn.ID()), logger.UserID(conn.UserID()),
			logger.Count("connections", len(c.conns)))
	}
	conn.Terminate()
}

func (c *Coordinator) deleteRoomIfEmpty(room string) {
	if members, ok := c.rooms[room]; ok && len(members) == 0 {
		delete(c.rooms, room)
		if c.onRoomDeleted != nil {
			c.onRoomDeleted(room)
		}
	}
}

func (c *Coordinator) fanOut(req broadcastReq) {
	members, ok := c.rooms[req.room]
	if !ok {
		return
	}

	var stalled []*Conn
	for conn := range members {
		if conn == req.exclude {
			continue
		}
		if !conn.TrySend(req.payload) {
			stalled = append(stalled, conn)
		}
	}

	// A full queue means a dead or too-slow peer. Cut it loose so the rest
	// of the room keeps receiving.
	for _, conn := range stalled {
		c.log.Info("dropping slow consumer",
			logger.ConnID(conn.ID()), logger.UserID(conn.UserID()), logger.Room(req.room))
		c.removeConn(conn)
	}
}
