package pubsub

import "context"

// Message is a payload delivered on a named channel. The relay treats
// payloads as opaque bytes; on the wire they are envelope-encoded frames.
type Message struct {
	Channel string
	Payload []byte
}

// Publisher sends payloads to a named channel. Delivery is best-effort and
// non-durable: subscribers attached after Publish returns never see the
// payload.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber attaches to a named channel. The returned stream delivers
// payloads published after Subscribe returns and is closed when ctx is
// canceled; cancellation is the only way to detach.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
}

// PubSub combines both directions of the substrate.
type PubSub interface {
	Publisher
	Subscriber
}

// UserChannel derives the notification channel name for a user identity.
// One channel per user; every connection of that user subscribes to it.
func UserChannel(userID string) string {
	return "chatrelay:user:" + userID
}

// RoomChannel derives the cross-instance fan-out channel name for a room.
func RoomChannel(roomID string) string {
	return "chatrelay:room:" + roomID
}
