// internal/outbox/publisher.go
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"assetflow/internal/broker"
	"assetflow/internal/events"
)

// Drainer is what the publisher needs from the outbox store.
type Drainer interface {
	Drain(ctx context.Context, limit, maxRetries int, publish func(context.Context, Record) error) (int, error)
}

// Publisher drains unsent outbox records and fans each one out to the domain
// topic and its realtime mirror. A record counts as sent only when every
// routed topic acknowledged; partial deliveries are retried whole, which is
// safe because consumers tolerate duplicates.
type Publisher struct {
	store      Drainer
	bus        broker.Publisher
	maxRetries int
	batch      int
	interval   time.Duration
	published  metric.Int64Counter
}

func NewPublisher(store Drainer, bus broker.Publisher, maxRetries, batch int, interval time.Duration) *Publisher {
	meter := otel.Meter("assetflow/outbox")
	published, err := meter.Int64Counter("outbox_records_published_total",
		metric.WithDescription("Outbox records confirmed delivered to the broker"))
	if err != nil {
		log.Printf("publisher: create counter: %v", err)
	}
	return &Publisher{
		store:      store,
		bus:        bus,
		maxRetries: maxRetries,
		batch:      batch,
		interval:   interval,
		published:  published,
	}
}

// Run drains on a fixed interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				log.Printf("publisher: drain failed: %v", err)
			}
		}
	}
}

// drainTimeout caps one drain cycle. The cycle holds row locks on the records
// it selected, so a stalled broker must not hold them indefinitely.
const drainTimeout = 30 * time.Second

// PublishPending performs one drain cycle and reports how many records were
// confirmed sent.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	sent, err := p.store.Drain(ctx, p.batch, p.maxRetries, p.publishRecord)
	if sent > 0 && p.published != nil {
		p.published.Add(ctx, int64(sent), metric.WithAttributes(attribute.String("source", "outbox")))
	}
	return sent, err
}

func (p *Publisher) publishRecord(ctx context.Context, rec Record) error {
	var data map[string]interface{}
	if err := json.Unmarshal(rec.Payload, &data); err != nil {
		return fmt.Errorf("unmarshal payload of record %d: %w", rec.ID, err)
	}

	envelope := events.NewEnvelope(rec.EventType, rec.AggregateType, rec.AggregateID, data)
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope for record %d: %w", rec.ID, err)
	}

	for _, topic := range routeTopics(rec.EventType) {
		if err := p.bus.Publish(ctx, topic, envelope.PartitionKey(), raw); err != nil {
			return fmt.Errorf("publish record %d to %s: %w", rec.ID, topic, err)
		}
	}
	return nil
}

// routeTopics maps an event type to its broker topics. Every domain event
// goes to the domain topic and is mirrored to the realtime topic; the
// per-channel notification topics are fed downstream by the notification
// router, not here.
func routeTopics(eventType string) []string {
	switch eventType {
	case events.TypeAssetRequested,
		events.TypeAssetAssigned,
		events.TypeAssetRejected,
		events.TypeAssetReturned,
		events.TypeAssetDueSoon,
		events.TypeAssetOverdue:
		return []string{events.TopicAssetEvents, events.TopicRealtimeUpdates}
	default:
		return []string{events.TopicAssetEvents}
	}
}
