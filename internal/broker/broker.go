// internal/broker/broker.go
package broker

import "context"

// Message is a single entry on a topic.
type Message struct {
	// ID is the broker-assigned entry id, used for acknowledgment.
	ID string
	// Key is the partition key (aggregateType-aggregateId).
	Key string
	// Payload is the serialized event envelope.
	Payload []byte
}

// Handler processes one message. Returning an error leaves the message
// unacknowledged so the broker redelivers it; handlers must be idempotent.
type Handler func(ctx context.Context, msg Message) error

// Publisher appends a message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Bus is a publisher that also serves consumer groups. Each group tracks its
// own offset independently; a message is acknowledged per group only after
// the group's handler succeeds.
type Bus interface {
	Publisher
	// Consume blocks, delivering messages from topic to handler on behalf of
	// group, until ctx is cancelled.
	Consume(ctx context.Context, topic, group string, handler Handler) error
}
