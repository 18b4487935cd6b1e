package chat

import (
	"context"
	"time"
)

// Message is a persisted chat message.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Thread is a persisted chat thread. The relay's rooms are ephemeral fan-out
// sets keyed by Thread.ID; the thread record itself lives here.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persistence collaborator consumed by the protocol handler.
// Implementations handle their own concurrency control; errors surface as
// protocol error replies and never crash the relay.
type Store interface {
	// CreateMessage appends a message and returns it with a generated id
	// and creation timestamp.
	CreateMessage(ctx context.Context, roomID, senderID, content string) (Message, error)

	// ListMessages returns a page of messages for a room ordered oldest
	// first, so history replays in reading order.
	ListMessages(ctx context.Context, roomID string, limit, offset int) ([]Message, error)

	// MarkRead records that userID has read the message.
	MarkRead(ctx context.Context, messageID, userID string) error

	// CreateThread creates a thread record and returns it; its ID doubles
	// as the room identifier for live fan-out.
	CreateThread(ctx context.Context, title, creatorID string) (Thread, error)
}
