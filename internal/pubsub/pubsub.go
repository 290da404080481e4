// Package pubsub is the in-process message bus the relay uses to announce
// connection lifecycle changes to interested components such as presence.
// Relayed chat traffic never goes through it.
package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies what happened, e.g. "relay.connection.opened".
	Topic string
	// UserID is the identity of the connection the message is about, if any.
	UserID string
	// Payload contains the JSON encoded event body.
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the bus.
type Subscriber interface {
	// Subscribe registers handler for topic. Messages are processed in the
	// background until ctx is canceled or the bus is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
