package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusGroupsConsumeIndependently(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "topic", "k1", []byte("a")))
	require.NoError(t, bus.Publish(ctx, "topic", "k2", []byte("b")))

	var groupA, groupB []string
	err := bus.Consume(ctx, "topic", "a", func(_ context.Context, msg Message) error {
		groupA = append(groupA, string(msg.Payload))
		return nil
	})
	require.NoError(t, err)
	err = bus.Consume(ctx, "topic", "b", func(_ context.Context, msg Message) error {
		groupB = append(groupB, string(msg.Payload))
		return nil
	})
	require.NoError(t, err)

	// Both groups see the full topic in publish order.
	assert.Equal(t, []string{"a", "b"}, groupA)
	assert.Equal(t, []string{"a", "b"}, groupB)
}

func TestMemoryBusRedeliversUnacked(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "topic", "k", []byte("a")))
	require.NoError(t, bus.Publish(ctx, "topic", "k", []byte("b")))

	var seen []string
	failing := errors.New("transient")
	err := bus.Consume(ctx, "topic", "g", func(_ context.Context, msg Message) error {
		seen = append(seen, string(msg.Payload))
		return failing
	})
	assert.ErrorIs(t, err, failing)

	// Offset did not advance past the failed message.
	err = bus.Consume(ctx, "topic", "g", func(_ context.Context, msg Message) error {
		seen = append(seen, string(msg.Payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a", "b"}, seen)
}

func TestMemoryBusSeparatesTopics(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, "one", "k", []byte("x")))
	assert.Equal(t, 1, bus.Len("one"))
	assert.Equal(t, 0, bus.Len("two"))
}
