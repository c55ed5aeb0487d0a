// internal/consumers/analytics.go
package consumers

import (
	"context"
	"log"
	"sync"

	"assetflow/internal/broker"
	"assetflow/internal/events"
)

// GroupAnalytics is the consumer group name for the analytics consumer.
const GroupAnalytics = "asset-analytics"

// Analytics tails the domain topic and keeps per-event-type counts. It is
// side-effect free, so processing a duplicate just bumps a counter twice.
type Analytics struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewAnalytics() *Analytics {
	return &Analytics{counts: make(map[string]int64)}
}

// Run consumes until ctx is cancelled.
func (a *Analytics) Run(ctx context.Context, bus broker.Bus) error {
	return bus.Consume(ctx, events.TopicAssetEvents, GroupAnalytics, a.Handle)
}

func (a *Analytics) Handle(ctx context.Context, msg broker.Message) error {
	env, err := events.Decode(msg.Payload)
	if err != nil {
		// A malformed payload never becomes parseable; log and ack.
		log.Printf("analytics: skipping malformed message %s: %v", msg.ID, err)
		return nil
	}

	a.mu.Lock()
	a.counts[env.EventType]++
	a.mu.Unlock()

	loanID, _ := env.Int64("loanId")
	userID, _ := env.Int64("userId")
	log.Printf("analytics: %s aggregate=%s/%d loan=%d user=%d correlation=%s",
		env.EventType, env.AggregateType, env.AggregateID, loanID, userID, env.Metadata["correlation-id"])
	return nil
}

// Counts returns a copy of the per-event-type counters.
func (a *Analytics) Counts() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int64, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
