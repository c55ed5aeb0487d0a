package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetflow/internal/broker"
	"assetflow/internal/events"
)

// memoryDrainer mimics the store's drain loop over an in-memory slice.
type memoryDrainer struct {
	records []Record
}

func (d *memoryDrainer) Drain(ctx context.Context, limit, maxRetries int, publish func(context.Context, Record) error) (int, error) {
	sent := 0
	for i := range d.records {
		rec := &d.records[i]
		if rec.SentAt != nil || rec.RetryCount >= maxRetries {
			continue
		}
		if err := publish(ctx, *rec); err != nil {
			rec.RetryCount++
			continue
		}
		now := time.Now()
		rec.SentAt = &now
		sent++
	}
	return sent, nil
}

func pending(id int64, eventType string) Record {
	return Record{
		ID:            id,
		AggregateType: events.AggregateAssetLoan,
		AggregateID:   id,
		EventType:     eventType,
		Payload:       json.RawMessage(`{"loanId":1,"assetId":2,"userId":3}`),
	}
}

func TestPublishPendingMirrorsDomainEvents(t *testing.T) {
	store := &memoryDrainer{records: []Record{pending(1, events.TypeAssetAssigned)}}
	bus := broker.NewMemoryBus()
	pub := NewPublisher(store, bus, 3, 100, time.Second)

	sent, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// Domain topic plus realtime mirror.
	require.Equal(t, 1, bus.Len(events.TopicAssetEvents))
	require.Equal(t, 1, bus.Len(events.TopicRealtimeUpdates))

	msg := bus.Messages(events.TopicAssetEvents)[0]
	env, err := events.Decode(msg.Payload)
	require.NoError(t, err)
	assert.Equal(t, events.TypeAssetAssigned, env.EventType)
	assert.Equal(t, events.AggregateAssetLoan, env.AggregateType)
	assert.Equal(t, "ASSET_LOAN-1", msg.Key)
	assert.NotEmpty(t, env.EventID)
	assert.NotEmpty(t, env.Metadata["correlation-id"])
	assert.Equal(t, "default", env.Metadata["tenant-id"])

	loanID, ok := env.Int64("loanId")
	require.True(t, ok)
	assert.Equal(t, int64(1), loanID)
}

func TestPublishPendingSkipsSentRecords(t *testing.T) {
	now := time.Now()
	sentRec := pending(1, events.TypeAssetAssigned)
	sentRec.SentAt = &now
	store := &memoryDrainer{records: []Record{sentRec, pending(2, events.TypeAssetReturned)}}
	bus := broker.NewMemoryBus()
	pub := NewPublisher(store, bus, 3, 100, time.Second)

	sent, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, bus.Len(events.TopicAssetEvents))
}

// failSecondTopic acknowledges the first topic and fails the mirror, the
// partial-delivery case.
type failSecondTopic struct {
	inner *broker.MemoryBus
	calls int
}

func (f *failSecondTopic) Publish(ctx context.Context, topic, key string, payload []byte) error {
	f.calls++
	if f.calls == 2 {
		return errors.New("mirror unavailable")
	}
	return f.inner.Publish(ctx, topic, key, payload)
}

func TestPartialDeliveryRetriesWholeRecord(t *testing.T) {
	store := &memoryDrainer{records: []Record{pending(1, events.TypeAssetAssigned)}}
	bus := &failSecondTopic{inner: broker.NewMemoryBus()}
	pub := NewPublisher(store, bus, 3, 100, time.Second)

	sent, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, store.records[0].RetryCount)
	assert.Nil(t, store.records[0].SentAt)

	// The next cycle republishes to both topics; the domain topic sees the
	// record twice, which consumers must tolerate.
	sent, err = pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, bus.inner.Len(events.TopicAssetEvents))
	assert.Equal(t, 1, bus.inner.Len(events.TopicRealtimeUpdates))
}

// deadlineDrainer records whether the drain context carries a deadline.
type deadlineDrainer struct {
	hadDeadline bool
}

func (d *deadlineDrainer) Drain(ctx context.Context, _, _ int, _ func(context.Context, Record) error) (int, error) {
	_, d.hadDeadline = ctx.Deadline()
	return 0, nil
}

func TestPublishPendingBoundsEachCycle(t *testing.T) {
	store := &deadlineDrainer{}
	pub := NewPublisher(store, broker.NewMemoryBus(), 3, 100, time.Second)

	// Row locks are held for the duration of a cycle, so the cycle must carry
	// a deadline even when the caller's context has none.
	_, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.True(t, store.hadDeadline)
}

func TestRetryBudgetExhaustedRecordsAreLeftAlone(t *testing.T) {
	rec := pending(1, events.TypeAssetAssigned)
	rec.RetryCount = 3
	store := &memoryDrainer{records: []Record{rec}}
	bus := broker.NewMemoryBus()
	pub := NewPublisher(store, bus, 3, 100, time.Second)

	sent, err := pub.PublishPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 0, bus.Len(events.TopicAssetEvents))
}
