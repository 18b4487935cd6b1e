package pubsub

import "errors"

// ErrBrokerClosed is returned when publishing to or subscribing on a closed broker.
var ErrBrokerClosed = errors.New("pubsub broker closed")
