package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetflow/internal/broker"
	"assetflow/internal/events"
)

func TestAnalyticsCountsByEventType(t *testing.T) {
	a := NewAnalytics()
	ctx := context.Background()

	require.NoError(t, a.Handle(ctx, envelopeMessage(events.TypeAssetAssigned, 1, nil)))
	require.NoError(t, a.Handle(ctx, envelopeMessage(events.TypeAssetAssigned, 2, nil)))
	require.NoError(t, a.Handle(ctx, envelopeMessage(events.TypeAssetReturned, 1, nil)))

	counts := a.Counts()
	assert.Equal(t, int64(2), counts[events.TypeAssetAssigned])
	assert.Equal(t, int64(1), counts[events.TypeAssetReturned])
}

func TestAnalyticsAcksMalformedPayloads(t *testing.T) {
	a := NewAnalytics()

	err := a.Handle(context.Background(), broker.Message{ID: "1-0", Payload: []byte("junk")})
	assert.NoError(t, err)
	assert.Empty(t, a.Counts())
}

func TestAnalyticsDrainsTopic(t *testing.T) {
	bus := broker.NewMemoryBus()
	ctx := context.Background()

	msg := envelopeMessage(events.TypeAssetOverdue, 5, map[string]interface{}{"userId": 3})
	require.NoError(t, bus.Publish(ctx, events.TopicAssetEvents, msg.Key, msg.Payload))

	a := NewAnalytics()
	require.NoError(t, a.Run(ctx, bus))
	assert.Equal(t, int64(1), a.Counts()[events.TypeAssetOverdue])
}
