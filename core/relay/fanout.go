package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
)

// remoteFrame wraps a broadcast frame on the room channel with the id of the
// instance that produced it, so instances skip their own publications.
type remoteFrame struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// RoomRelay bridges room broadcasts across server instances over the pub/sub
// substrate. It listens on a room's channel exactly while the local registry
// has members in that room, driven by the coordinator's room lifecycle
// hooks, and re-broadcasts frames that originate elsewhere.
//
// On a single instance the relay is inert: every frame it receives carries
// its own origin id and is skipped.
type RoomRelay struct {
	instanceID string
	bus        pubsub.PubSub
	coord      *Coordinator
	log        *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	cancels map[string]context.CancelFunc
}

// RoomRelayOption configures a RoomRelay.
type RoomRelayOption func(*RoomRelay)

// WithRoomRelayLogger configures structured logging for the relay.
func WithRoomRelayLogger(log *slog.Logger) RoomRelayOption {
	return func(r *RoomRelay) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRoomRelay creates a relay over the substrate and installs its room
// lifecycle hooks on the coordinator. Call Start before running the
// coordinator.
func NewRoomRelay(bus pubsub.PubSub, coord *Coordinator, opts ...RoomRelayOption) *RoomRelay {
	r := &RoomRelay{
		instanceID: uuid.NewString(),
		bus:        bus,
		coord:      coord,
		log:        logger.Discard(),
		cancels:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	coord.OnRoomLifecycle(r.roomCreated, r.roomDeleted)
	return r
}

// Start sets the base context bounding every room listener. Canceling it
// stops all listeners.
func (r *RoomRelay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseCtx = ctx
}

// InstanceID identifies this process on the room channels.
func (r *RoomRelay) InstanceID() string { return r.instanceID }

// PublishFrame publishes a locally broadcast frame to the room's channel,
// tagged with this instance's origin id.
func (r *RoomRelay) PublishFrame(ctx context.Context, room string, frame []byte) error {
	wrapped, err := json.Marshal(remoteFrame{Origin: r.instanceID, Frame: frame})
	if err != nil {
		return fmt.Errorf("wrap frame for room %s: %w", room, err)
	}
	return r.bus.Publish(ctx, pubsub.RoomChannel(room), wrapped)
}

// roomCreated and roomDeleted run on the coordinator loop; the subscription
// work happens on a separate goroutine so the loop is never blocked.

func (r *RoomRelay) roomCreated(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.baseCtx == nil || r.cancels[room] != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.cancels[room] = cancel

	go r.listen(ctx, room)
}

func (r *RoomRelay) roomDeleted(room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cancel, ok := r.cancels[room]; ok {
		cancel()
		delete(r.cancels, room)
	}
}

func (r *RoomRelay) listen(ctx context.Context, room string) {
	channel := pubsub.RoomChannel(room)
	stream, err := r.bus.Subscribe(ctx, channel)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Error("subscribing room channel",
				logger.Room(room), logger.Channel(channel), logger.Error(err))
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}

			var remote remoteFrame
			if err := json.Unmarshal(msg.Payload, &remote); err != nil {
				r.log.Debug("malformed frame on room channel",
					logger.Room(room), logger.Error(err))
				continue
			}
			if remote.Origin == r.instanceID {
				continue
			}
			r.coord.Broadcast(room, remote.Frame, nil)
		}
	}
}
