// internal/consumers/router.go
package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"assetflow/internal/broker"
	"assetflow/internal/events"
	"assetflow/internal/notifications"
)

// GroupRouter is the consumer group name for the notification router.
const GroupRouter = "notification-router"

// Router turns domain events into inbox rows and per-channel delivery
// requests. The inbox insert is idempotent on (user, loan, type), so a
// redelivered event writes nothing new; the channel topics are at-least-once
// and their processors tolerate duplicates.
type Router struct {
	inbox  notifications.Service
	users  UserDirectory
	assets AssetDirectory
	bus    broker.Publisher
}

func NewRouter(inbox notifications.Service, users UserDirectory, assets AssetDirectory, bus broker.Publisher) *Router {
	return &Router{inbox: inbox, users: users, assets: assets, bus: bus}
}

// Run consumes until ctx is cancelled.
func (r *Router) Run(ctx context.Context, bus broker.Bus) error {
	return bus.Consume(ctx, events.TopicAssetEvents, GroupRouter, r.Handle)
}

func (r *Router) Handle(ctx context.Context, msg broker.Message) error {
	env, err := events.Decode(msg.Payload)
	if err != nil {
		log.Printf("router: skipping malformed message %s: %v", msg.ID, err)
		return nil
	}

	rows, err := r.buildNotifications(ctx, env)
	if err != nil {
		// Directory unreachable or insert failed: leave unacked for redelivery.
		return fmt.Errorf("route %s for loan %d: %w", env.EventType, env.AggregateID, err)
	}

	for _, n := range rows {
		inserted, err := r.inbox.Create(ctx, n)
		if err != nil {
			return fmt.Errorf("persist %s notification for user %d: %w", n.Type, n.UserID, err)
		}
		if !inserted {
			log.Printf("router: duplicate %s for user %d loan %d, inbox unchanged", n.Type, n.UserID, env.AggregateID)
		}
		// Delivery is requested whether or not the row was new: a redelivered
		// event may have failed partway through the channel topics, and the
		// channel processors tolerate duplicates.
		if err := r.requestDelivery(ctx, env, n); err != nil {
			return err
		}
	}
	return nil
}

// buildNotifications maps one domain event to its inbox rows. Returned rows
// carry RelatedLoanID so the unique index can collapse redeliveries.
func (r *Router) buildNotifications(ctx context.Context, env events.Envelope) ([]*notifications.Notification, error) {
	loanID := env.AggregateID
	userID, _ := env.Int64("userId")
	assetName := r.assetName(ctx, env)

	switch env.EventType {
	case events.TypeAssetRequested:
		managers, err := r.users.ListManagers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list managers: %w", err)
		}
		var rows []*notifications.Notification
		for _, m := range managers {
			rows = append(rows, &notifications.Notification{
				UserID:        m.ID,
				Title:         "New Loan Request",
				Message:       fmt.Sprintf("A loan for %s is waiting for approval.", assetName),
				Type:          notifications.TypeLoanRequestReceived,
				RelatedLoanID: &loanID,
			})
		}
		return rows, nil

	case events.TypeAssetAssigned:
		return []*notifications.Notification{{
			UserID:        userID,
			Title:         "Loan Approved",
			Message:       fmt.Sprintf("%s has been assigned to you. Due back %s.", assetName, env.String("dueAt")),
			Type:          notifications.TypeLoanApproved,
			RelatedLoanID: &loanID,
		}}, nil

	case events.TypeAssetRejected:
		return []*notifications.Notification{{
			UserID:        userID,
			Title:         "Loan Request Rejected",
			Message:       fmt.Sprintf("Your request for %s was rejected.", assetName),
			Type:          notifications.TypeLoanRejected,
			RelatedLoanID: &loanID,
		}}, nil

	case events.TypeAssetDueSoon:
		return []*notifications.Notification{{
			UserID:        userID,
			Title:         "Asset Due Soon",
			Message:       fmt.Sprintf("%s is due back on %s.", assetName, env.String("dueAt")),
			Type:          notifications.TypeAssetDueSoon,
			RelatedLoanID: &loanID,
		}}, nil

	case events.TypeAssetOverdue:
		return []*notifications.Notification{{
			UserID:        userID,
			Title:         "Asset Overdue",
			Message:       fmt.Sprintf("%s is overdue. Please return it.", assetName),
			Type:          notifications.TypeAssetOverdue,
			RelatedLoanID: &loanID,
		}}, nil

	case events.TypeAssetReturned:
		// Returns close the loop without an inbox row.
		return nil, nil

	default:
		log.Printf("router: ignoring unknown event type %q", env.EventType)
		return nil, nil
	}
}

// requestDelivery republishes an enriched NotificationRequest to the channel
// topics. Rendering and actual delivery belong to the channel processors.
func (r *Router) requestDelivery(ctx context.Context, env events.Envelope, n *notifications.Notification) error {
	recipient, err := r.users.GetUser(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("look up recipient %d: %w", n.UserID, err)
	}

	request := events.NewEnvelope(events.TypeNotificationRequest, events.AggregateNotification, env.AggregateID,
		map[string]interface{}{
			"recipientEmail": recipient.Email,
			"recipientName":  recipient.FullName,
			"title":          n.Title,
			"message":        n.Message,
			"type":           n.Type,
			"loanId":         env.AggregateID,
			"userId":         n.UserID,
			"sourceEvent":    env.EventType,
		})
	raw, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal delivery request: %w", err)
	}

	for _, topic := range []string{events.TopicNotificationsEmail, events.TopicNotificationsPush, events.TopicNotificationsSMS} {
		if err := r.bus.Publish(ctx, topic, request.PartitionKey(), raw); err != nil {
			return fmt.Errorf("publish delivery request to %s: %w", topic, err)
		}
	}
	return nil
}

func (r *Router) assetName(ctx context.Context, env events.Envelope) string {
	assetID, ok := env.Int64("assetId")
	if !ok {
		return "an asset"
	}
	asset, err := r.assets.GetAsset(ctx, assetID)
	if err != nil {
		log.Printf("router: look up asset %d: %v", assetID, err)
		return fmt.Sprintf("asset %d", assetID)
	}
	return fmt.Sprintf("%s (%s)", asset.Name, asset.AssetTag)
}
