// internal/events/envelope.go
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Aggregate types carried in the envelope.
const (
	AggregateAssetLoan    = "ASSET_LOAN"
	AggregateNotification = "NOTIFICATION"
)

// Domain event types emitted by the loan lifecycle engine.
const (
	TypeAssetRequested = "AssetRequested"
	TypeAssetAssigned  = "AssetAssigned"
	TypeAssetRejected  = "AssetRejected"
	TypeAssetReturned  = "AssetReturned"
	TypeAssetDueSoon   = "AssetDueSoon"
	TypeAssetOverdue   = "AssetOverdue"

	// TypeNotificationRequest is the enriched per-channel delivery request
	// produced by the notification router, not by the engine.
	TypeNotificationRequest = "NotificationRequest"
)

// Topic names are logical channels on the broker.
const (
	TopicAssetEvents        = "assets.events"
	TopicRealtimeUpdates    = "realtime.updates"
	TopicNotificationsEmail = "notifications.email"
	TopicNotificationsPush  = "notifications.push"
	TopicNotificationsSMS   = "notifications.sms"
)

const (
	source  = "asset-management-api"
	version = "1.0"
)

// Envelope is the wire format for every message on every topic.
type Envelope struct {
	EventID       string                 `json:"eventId"`
	EventType     string                 `json:"eventType"`
	Timestamp     time.Time              `json:"timestamp"`
	AggregateType string                 `json:"aggregateType"`
	AggregateID   int64                  `json:"aggregateId"`
	Data          map[string]interface{} `json:"data"`
	Metadata      map[string]string      `json:"metadata"`
	Source        string                 `json:"source"`
	Version       string                 `json:"version"`
}

// NewEnvelope wraps a payload with a fresh event id and correlation id.
func NewEnvelope(eventType, aggregateType string, aggregateID int64, data map[string]interface{}) Envelope {
	return Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          data,
		Metadata: map[string]string{
			"correlation-id": uuid.New().String(),
			"tenant-id":      "default",
		},
		Source:  source,
		Version: version,
	}
}

// PartitionKey routes all events of one aggregate to the same partition.
func (e Envelope) PartitionKey() string {
	return fmt.Sprintf("%s-%d", e.AggregateType, e.AggregateID)
}

// Decode parses an envelope from its JSON wire form.
func Decode(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

// Int64 reads an integer field out of the free-form data map, tolerating the
// float64 that encoding/json produces for numbers.
func (e Envelope) Int64(field string) (int64, bool) {
	v, ok := e.Data[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// String reads a string field out of the data map.
func (e Envelope) String(field string) string {
	if v, ok := e.Data[field].(string); ok {
		return v
	}
	return ""
}
