package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendToUserTargetsAllOfTheirConnections(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := hub.Subscribe(1, false)
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe(1, false)
	defer cancelSecond()
	other, cancelOther := hub.Subscribe(2, false)
	defer cancelOther()

	hub.SendToUser(1, NewMessage("GENERAL", "Hello", "hi", SeverityInfo))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Empty(t, other)

	got := <-first
	assert.Equal(t, int64(1), got.UserID)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe(1, false)
	defer cancelA()
	b, cancelB := hub.Subscribe(2, true)
	defer cancelB()

	hub.Broadcast(NewMessage("GENERAL", "Notice", "maintenance window", SeverityWarning))

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

func TestBroadcastToManagersSkipsEmployees(t *testing.T) {
	hub := NewHub()
	manager, cancelManager := hub.Subscribe(1, true)
	defer cancelManager()
	employee, cancelEmployee := hub.Subscribe(2, false)
	defer cancelEmployee()

	hub.BroadcastToManagers(NewMessage("LOAN_REQUEST_RECEIVED", "New Loan Request", "pending", SeverityInfo))

	assert.Len(t, manager, 1)
	assert.Empty(t, employee)
}

func TestCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe(1, false)
	assert.Equal(t, 1, hub.ConnectionCount())
	cancel()
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestSlowClientDoesNotBlockTheHub(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1, false)
	defer cancel()

	// Overflow the buffer; sends must not block and the overflow is dropped.
	for i := 0; i < 40; i++ {
		hub.SendToUser(1, NewMessage("GENERAL", "Hello", "hi", SeverityInfo))
	}
	assert.Equal(t, 16, len(ch))
}
