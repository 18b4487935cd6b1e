package notify

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/chatrelay/core/envelope"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
)

// Notification types understood by clients. The relay itself never
// interprets these; it forwards the payload verbatim.
const (
	TypeFriendRequest  = "friend_request"
	TypeFriendAccepted = "friend_accepted"
	TypeChatInvite     = "chat_invite"
	TypeUnreadMessage  = "unread_message"
)

// Notification is the type-tagged payload published on a user's channel.
type Notification struct {
	Type   string `json:"type"`
	FromID string `json:"from_id,omitempty"`
	RoomID string `json:"room_id,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Notifier publishes out-of-band events to a recipient's channel. Delivery
// is non-durable: recipients without an active connection at publish time
// never see the event.
type Notifier struct {
	pub pubsub.Publisher
}

// New creates a Notifier over the given publisher.
func New(pub pubsub.Publisher) *Notifier {
	return &Notifier{pub: pub}
}

// Send publishes a notification to the recipient's channel, wrapped in a
// notification envelope ready for client delivery.
func (n *Notifier) Send(ctx context.Context, recipientID string, notification Notification) error {
	env, err := envelope.New(envelope.KindNotification, "", notification.FromID, notification)
	if err != nil {
		return err
	}
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	if err := n.pub.Publish(ctx, pubsub.UserChannel(recipientID), raw); err != nil {
		return fmt.Errorf("notify %s: %w", recipientID, err)
	}
	return nil
}

// FriendRequest notifies the recipient of a pending friend request.
func (n *Notifier) FriendRequest(ctx context.Context, recipientID, fromID string) error {
	return n.Send(ctx, recipientID, Notification{Type: TypeFriendRequest, FromID: fromID})
}

// FriendAccepted notifies the recipient that their friend request was accepted.
func (n *Notifier) FriendAccepted(ctx context.Context, recipientID, fromID string) error {
	return n.Send(ctx, recipientID, Notification{Type: TypeFriendAccepted, FromID: fromID})
}

// ChatInvite notifies the recipient of an invitation to a chat thread.
func (n *Notifier) ChatInvite(ctx context.Context, recipientID, fromID, roomID, title string) error {
	return n.Send(ctx, recipientID, Notification{
		Type:   TypeChatInvite,
		FromID: fromID,
		RoomID: roomID,
		Title:  title,
	})
}

// UnreadMessage notifies the recipient of a message in a room they are not
// currently viewing. Unread-count reconciliation belongs to the store.
func (n *Notifier) UnreadMessage(ctx context.Context, recipientID, fromID, roomID string) error {
	return n.Send(ctx, recipientID, Notification{
		Type:   TypeUnreadMessage,
		FromID: fromID,
		RoomID: roomID,
	})
}
