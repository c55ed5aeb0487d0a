// internal/outbox/store.go
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Record is one pending or sent event in the outbox log. Records are created
// in the same transaction as the state change they describe and are only ever
// updated (sent_at, retry_count) by the publisher.
type Record struct {
	ID            int64           `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   int64           `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	RetryCount    int             `json:"retry_count"`
}

// NewRecord builds an unsent record with a marshalled payload.
func NewRecord(aggregateType string, aggregateID int64, eventType string, payload map[string]interface{}) (*Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Record{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// Store persists outbox records in Postgres.
type Store struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		tracer: otel.Tracer("assetflow/outbox"),
	}
}

// Insert appends a record inside the caller's transaction so the event and
// the state change it describes commit or roll back together.
func (s *Store) Insert(ctx context.Context, tx *sql.Tx, rec *Record) error {
	ctx, span := s.tracer.Start(ctx, "outbox.insert",
		trace.WithAttributes(
			attribute.String("aggregate.type", rec.AggregateType),
			attribute.Int64("aggregate.id", rec.AggregateID),
			attribute.String("event.type", rec.EventType),
		),
	)
	defer span.End()

	err := tx.QueryRowContext(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload_json, created_at, retry_count)
		VALUES ($1, $2, $3, $4, NOW(), 0)
		RETURNING id, created_at
	`, rec.AggregateType, rec.AggregateID, rec.EventType, []byte(rec.Payload)).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox record: %w", err)
	}
	return nil
}

// Drain selects unsent records oldest first, locks them against concurrent
// publishers (SKIP LOCKED), and hands each to publish. A nil result marks the
// record sent; an error bumps its retry count and leaves it for the next
// cycle. The marks commit together with the lock transaction.
func (s *Store) Drain(ctx context.Context, limit, maxRetries int, publish func(context.Context, Record) error) (int, error) {
	ctx, span := s.tracer.Start(ctx, "outbox.drain",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin drain transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, retry_count
		FROM outbox_events
		WHERE sent_at IS NULL AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, maxRetries, limit)
	if err != nil {
		return 0, fmt.Errorf("select unsent records: %w", err)
	}

	records, err := scanRecords(rows)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range records {
		if err := publish(ctx, rec); err != nil {
			span.AddEvent("record.failed", trace.WithAttributes(
				attribute.Int64("record.id", rec.ID),
				attribute.String("error", err.Error()),
			))
			if _, uerr := tx.ExecContext(ctx, `
				UPDATE outbox_events SET retry_count = retry_count + 1 WHERE id = $1
			`, rec.ID); uerr != nil {
				return sent, fmt.Errorf("increment retry for record %d: %w", rec.ID, uerr)
			}
			continue
		}
		if _, uerr := tx.ExecContext(ctx, `
			UPDATE outbox_events SET sent_at = NOW() WHERE id = $1
		`, rec.ID); uerr != nil {
			return sent, fmt.Errorf("mark record %d sent: %w", rec.ID, uerr)
		}
		sent++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit drain transaction: %w", err)
	}

	span.SetAttributes(
		attribute.Int("records.selected", len(records)),
		attribute.Int("records.sent", sent),
	)
	return sent, nil
}

// SelectStuck returns records that exhausted their retry budget without a
// confirmed delivery. They are never deleted automatically; an operator has
// to drain them by hand.
func (s *Store) SelectStuck(ctx context.Context, maxRetries int) ([]Record, error) {
	ctx, span := s.tracer.Start(ctx, "outbox.select_stuck")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, retry_count
		FROM outbox_events
		WHERE sent_at IS NULL AND retry_count >= $1
		ORDER BY created_at ASC
	`, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("select stuck records: %w", err)
	}

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("records.stuck", len(records)))
	return records, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &payload, &rec.CreatedAt, &rec.RetryCount); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox records: %w", err)
	}
	return records, nil
}
