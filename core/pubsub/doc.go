// Package pubsub abstracts the cross-process publish/subscribe substrate the
// relay uses for per-user notifications and cross-instance room fan-out.
//
// Two implementations are provided: Broker, an in-memory bus for
// single-instance deployments and tests, and RedisBroker over Redis pub/sub
// for multi-instance deployments. Both are non-durable: a subscriber only
// sees payloads published after its Subscribe call returns.
//
// Channel names are derived deterministically with UserChannel and
// RoomChannel so producers and consumers never coordinate beyond a user or
// room identifier:
//
//	stream, err := broker.Subscribe(ctx, pubsub.UserChannel(userID))
//	...
//	err = broker.Publish(ctx, pubsub.UserChannel(userID), payload)
package pubsub
