// Package relay is the real-time fan-out core: it routes chat envelopes
// between concurrently connected WebSocket clients grouped into rooms and
// bridges cross-process notifications onto the right connections.
//
// # Architecture
//
// All room membership lives in a registry owned by a single Coordinator
// goroutine. Registration, subscription, and broadcast are commands sent
// over channels and applied one at a time, so the registry needs no locks
// and within-room broadcast order is the order commands were accepted.
//
// Each connection runs a read loop (frames in) and a write pump (bounded
// delivery queue out, plus liveness pings). Delivery to a connection is a
// non-blocking enqueue; a full queue marks the peer dead or too slow and
// terminates that connection without stalling the rest of its room.
//
// Rooms are ephemeral: they materialize on first subscription and vanish
// when their last member leaves. The persistent thread entity lives in the
// chat store, not here.
//
// The Protocol type is the single dispatch point for inbound frames: decode,
// validate against connection state, call the persistence collaborator, then
// issue coordinator commands and replies. Frames referencing rooms the
// sender has not joined are rejected before any side effect.
//
// Per connection, a notification bridge subscribes to the user's pub/sub
// channel and forwards published payloads onto the delivery queue; its
// lifetime is tied to the connection through a shared cancellation signal.
// RoomRelay optionally bridges room broadcasts between server instances
// over the same substrate.
package relay
