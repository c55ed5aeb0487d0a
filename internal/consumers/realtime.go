// internal/consumers/realtime.go
package consumers

import (
	"context"
	"fmt"
	"log"

	"assetflow/internal/broker"
	"assetflow/internal/events"
	"assetflow/internal/notifications"
	"assetflow/internal/realtime"
)

// GroupRealtime is the consumer group name for the realtime fan-out.
const GroupRealtime = "realtime-notifications"

// Realtime consumes the mirror topic and pushes live messages through the
// hub. It runs inside the API process because the hub holds the client
// connections. Delivery is best effort; the inbox written by the router is
// the durable copy, so a handler error here is logged and the message acked
// rather than redelivered.
type Realtime struct {
	hub    *realtime.Hub
	assets AssetDirectory
}

func NewRealtime(hub *realtime.Hub, assets AssetDirectory) *Realtime {
	return &Realtime{hub: hub, assets: assets}
}

// Run consumes until ctx is cancelled.
func (c *Realtime) Run(ctx context.Context, bus broker.Bus) error {
	return bus.Consume(ctx, events.TopicRealtimeUpdates, GroupRealtime, c.Handle)
}

func (c *Realtime) Handle(ctx context.Context, msg broker.Message) error {
	env, err := events.Decode(msg.Payload)
	if err != nil {
		log.Printf("realtime: skipping malformed message %s: %v", msg.ID, err)
		return nil
	}

	userID, _ := env.Int64("userId")
	assetName := c.assetName(ctx, env)
	data := map[string]interface{}{
		"loanId":  env.AggregateID,
		"assetId": env.Data["assetId"],
	}

	switch env.EventType {
	case events.TypeAssetRequested:
		m := realtime.NewMessage(notifications.TypeLoanRequestReceived, "New Loan Request",
			fmt.Sprintf("A loan for %s is waiting for approval.", assetName), realtime.SeverityInfo)
		m.Data = data
		c.hub.BroadcastToManagers(m)

	case events.TypeAssetAssigned:
		m := realtime.NewMessage(notifications.TypeLoanApproved, "Asset Assigned",
			fmt.Sprintf("%s has been assigned to you. Due back %s.", assetName, env.String("dueAt")), realtime.SeverityInfo)
		m.Data = data
		c.hub.SendToUser(userID, m)

	case events.TypeAssetRejected:
		m := realtime.NewMessage(notifications.TypeLoanRejected, "Loan Request Rejected",
			fmt.Sprintf("Your request for %s was rejected.", assetName), realtime.SeverityWarning)
		m.Data = data
		c.hub.SendToUser(userID, m)

	case events.TypeAssetReturned:
		m := realtime.NewMessage(notifications.TypeGeneral, "Asset Returned",
			fmt.Sprintf("%s has been checked back in.", assetName), realtime.SeverityInfo)
		m.Data = data
		c.hub.SendToUser(userID, m)

	case events.TypeAssetDueSoon:
		m := realtime.NewMessage(notifications.TypeAssetDueSoon, "Asset Due Soon",
			fmt.Sprintf("%s is due back on %s.", assetName, env.String("dueAt")), realtime.SeverityWarning)
		m.Data = data
		c.hub.SendToUser(userID, m)

	case events.TypeAssetOverdue:
		m := realtime.NewMessage(notifications.TypeAssetOverdue, "Asset Overdue",
			fmt.Sprintf("%s is overdue. Please return it.", assetName), realtime.SeverityError)
		m.Data = data
		c.hub.SendToUser(userID, m)
		c.hub.BroadcastToManagers(m)

	default:
		log.Printf("realtime: ignoring unknown event type %q (message %s)", env.EventType, msg.ID)
	}
	return nil
}

func (c *Realtime) assetName(ctx context.Context, env events.Envelope) string {
	assetID, ok := env.Int64("assetId")
	if !ok {
		return "an asset"
	}
	asset, err := c.assets.GetAsset(ctx, assetID)
	if err != nil {
		log.Printf("realtime: look up asset %d: %v", assetID, err)
		return fmt.Sprintf("asset %d", assetID)
	}
	return fmt.Sprintf("%s (%s)", asset.Name, asset.AssetTag)
}
