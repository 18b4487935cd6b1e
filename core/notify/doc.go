// Package notify is the producer side of the cross-process notification
// bridge: helpers that wrap out-of-band events (friend requests, chat
// invites, unread messages) in notification envelopes and publish them to
// the recipient's per-user channel.
//
// Delivery is non-durable. Events published while the recipient has no
// active connection are lost; the persistent store remains the source of
// truth for unread state.
package notify
