// internal/notifications/service.go
package notifications

import "context"

// Service defines the interface for the notification inbox.
type Service interface {
	// Create persists a notification. When the (user, loan, type) triple was
	// already recorded it reports inserted=false and leaves the inbox alone.
	Create(ctx context.Context, n *Notification) (inserted bool, err error)
	ListByUser(ctx context.Context, userID int64) ([]*Notification, error)
	ListUnread(ctx context.Context, userID int64) ([]*Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int, error)
}
