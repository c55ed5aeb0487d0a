package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"assetflow/internal/assets"
	"assetflow/internal/broker"
	"assetflow/internal/events"
	"assetflow/internal/notifications"
	"assetflow/internal/users"
)

type fakeAssets struct {
	byID map[int64]*assets.Asset
}

func (f *fakeAssets) GetAsset(_ context.Context, id int64) (*assets.Asset, error) {
	if a, ok := f.byID[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("asset %d: %w", id, assets.ErrNotFound)
}

type fakeUsers struct {
	byID     map[int64]*users.User
	managers []*users.User
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*users.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, users.ErrNotFound
}

func (f *fakeUsers) ListManagers(_ context.Context) ([]*users.User, error) {
	return f.managers, nil
}

// fakeInbox stores notifications in memory with the same (user, loan, type)
// idempotency rule as the real store.
type fakeInbox struct {
	notifications.Service
	mu   sync.Mutex
	rows []*notifications.Notification
}

func (f *fakeInbox) Create(_ context.Context, n *notifications.Notification) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.rows {
		if existing.UserID == n.UserID && existing.Type == n.Type &&
			existing.RelatedLoanID != nil && n.RelatedLoanID != nil &&
			*existing.RelatedLoanID == *n.RelatedLoanID {
			return false, nil
		}
	}
	f.rows = append(f.rows, n)
	return true, nil
}

func envelopeMessage(eventType string, loanID int64, data map[string]interface{}) broker.Message {
	env := events.NewEnvelope(eventType, events.AggregateAssetLoan, loanID, data)
	raw, _ := json.Marshal(env)
	return broker.Message{ID: "1-0", Key: env.PartitionKey(), Payload: raw}
}
