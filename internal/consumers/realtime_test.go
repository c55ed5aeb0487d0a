package consumers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetflow/internal/assets"
	"assetflow/internal/events"
	"assetflow/internal/notifications"
	"assetflow/internal/realtime"
)

func realtimeFixture() (*Realtime, *realtime.Hub) {
	hub := realtime.NewHub()
	assetDir := &fakeAssets{byID: map[int64]*assets.Asset{
		2: {ID: 2, AssetTag: "LAP-001", Name: "ThinkPad"},
	}}
	return NewRealtime(hub, assetDir), hub
}

func TestRealtimeSendsToBorrower(t *testing.T) {
	consumer, hub := realtimeFixture()
	borrower, cancelBorrower := hub.Subscribe(3, false)
	defer cancelBorrower()
	other, cancelOther := hub.Subscribe(4, false)
	defer cancelOther()

	msg := envelopeMessage(events.TypeAssetAssigned, 1, map[string]interface{}{
		"loanId": 1, "assetId": 2, "userId": 3, "dueAt": "2026-09-05T00:00:00Z",
	})
	require.NoError(t, consumer.Handle(context.Background(), msg))

	select {
	case got := <-borrower:
		assert.Equal(t, notifications.TypeLoanApproved, got.Type)
		assert.Equal(t, int64(3), got.UserID)
		assert.Contains(t, got.Message, "ThinkPad (LAP-001)")
		assert.Equal(t, realtime.SeverityInfo, got.Severity)
	default:
		t.Fatal("borrower received nothing")
	}
	assert.Empty(t, other)
}

func TestRealtimeBroadcastsRequestsToManagers(t *testing.T) {
	consumer, hub := realtimeFixture()
	manager, cancelManager := hub.Subscribe(10, true)
	defer cancelManager()
	employee, cancelEmployee := hub.Subscribe(3, false)
	defer cancelEmployee()

	msg := envelopeMessage(events.TypeAssetRequested, 1, map[string]interface{}{
		"loanId": 1, "assetId": 2, "userId": 3,
	})
	require.NoError(t, consumer.Handle(context.Background(), msg))

	select {
	case got := <-manager:
		assert.Equal(t, notifications.TypeLoanRequestReceived, got.Type)
	default:
		t.Fatal("manager received nothing")
	}
	assert.Empty(t, employee)
}

func TestRealtimeOverdueAlsoAlertsManagers(t *testing.T) {
	consumer, hub := realtimeFixture()
	borrower, cancelBorrower := hub.Subscribe(3, false)
	defer cancelBorrower()
	manager, cancelManager := hub.Subscribe(10, true)
	defer cancelManager()

	msg := envelopeMessage(events.TypeAssetOverdue, 1, map[string]interface{}{
		"loanId": 1, "assetId": 2, "userId": 3,
	})
	require.NoError(t, consumer.Handle(context.Background(), msg))

	require.Len(t, borrower, 1)
	got := <-borrower
	assert.Equal(t, realtime.SeverityError, got.Severity)
	require.Len(t, manager, 1)
}

func TestRealtimeUnknownAssetStillDelivers(t *testing.T) {
	consumer, hub := realtimeFixture()
	borrower, cancel := hub.Subscribe(3, false)
	defer cancel()

	// Asset 99 is not in the directory; the message falls back to the id.
	msg := envelopeMessage(events.TypeAssetDueSoon, 1, map[string]interface{}{
		"loanId": 1, "assetId": 99, "userId": 3,
	})
	require.NoError(t, consumer.Handle(context.Background(), msg))

	require.Len(t, borrower, 1)
	got := <-borrower
	assert.Contains(t, got.Message, "asset 99")
}

func TestRealtimeAcksUnknownEventTypes(t *testing.T) {
	consumer, hub := realtimeFixture()
	borrower, cancel := hub.Subscribe(3, false)
	defer cancel()

	require.NoError(t, consumer.Handle(context.Background(), envelopeMessage("SomethingNew", 1, map[string]interface{}{"userId": 3})))
	assert.Empty(t, borrower)
}
