package relay

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/chatrelay/core/logger"
	"github.com/dmitrymomot/chatrelay/core/pubsub"
)

// forwardNotifications is the cross-process notification bridge for one
// connection: it subscribes to the user's channel and forwards every
// published payload verbatim onto the connection's delivery queue.
//
// The listener's lifetime exactly matches the connection's: ctx is the
// cancellation signal fired by Conn.Terminate, so teardown never leaves an
// orphaned listener. Delivery is non-durable; payloads published before the
// subscription is established are never replayed.
//
// A user with several simultaneous connections runs one bridge per
// connection, and each receives the notification.
func forwardNotifications(ctx context.Context, sub pubsub.Subscriber, conn *Conn, log *slog.Logger) {
	channel := pubsub.UserChannel(conn.UserID())
	stream, err := sub.Subscribe(ctx, channel)
	if err != nil {
		if ctx.Err() == nil {
			log.Error("subscribing notification channel",
				logger.ConnID(conn.ID()), logger.Channel(channel), logger.Error(err))
		}
		return
	}

	log.Debug("notification bridge attached",
		logger.ConnID(conn.ID()), logger.UserID(conn.UserID()))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if !conn.TrySend(msg.Payload) {
				// Queue overflow is a terminate signal, same as for
				// broadcasts. Terminating closes the transport, which
				// unwinds the read loop and deregisters the connection.
				log.Info("notification queue overflow, dropping connection",
					logger.ConnID(conn.ID()), logger.UserID(conn.UserID()))
				conn.Terminate()
				return
			}
		}
	}
}
