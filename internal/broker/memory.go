// internal/broker/memory.go
package broker

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus used by unit tests and by single-node
// deployments that run without Redis. Semantics match the Redis
// implementation: per-topic ordering, independent group offsets, redelivery
// of unacknowledged messages on the next Consume pass.
type MemoryBus struct {
	mu      sync.Mutex
	topics  map[string][]Message
	offsets map[string]int // topic/group -> next index
	seq     int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics:  make(map[string][]Message),
		offsets: make(map[string]int),
	}
}

func (b *MemoryBus) Publish(_ context.Context, topic, key string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.topics[topic] = append(b.topics[topic], Message{
		ID:      fmt.Sprintf("%d-0", b.seq),
		Key:     key,
		Payload: append([]byte(nil), payload...),
	})
	return nil
}

// Consume drains everything currently on the topic for the group and then
// returns, which is what tests want. A failed message keeps the group offset
// in place so the next Consume call redelivers it.
func (b *MemoryBus) Consume(ctx context.Context, topic, group string, handler Handler) error {
	for {
		msg, ok := b.next(topic, group)
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, msg); err != nil {
			return err
		}
		b.advance(topic, group)
	}
}

// Len reports how many messages a topic holds, for test assertions.
func (b *MemoryBus) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Messages returns a copy of a topic's contents, for test assertions.
func (b *MemoryBus) Messages(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.topics[topic]...)
}

func (b *MemoryBus) next(topic, group string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.offsets[topic+"/"+group]
	if idx >= len(b.topics[topic]) {
		return Message{}, false
	}
	return b.topics[topic][idx], true
}

func (b *MemoryBus) advance(topic, group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offsets[topic+"/"+group]++
}
