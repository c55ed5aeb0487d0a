// internal/notifications/implementation.go
package notifications

import (
	"context"
	"database/sql"
	"fmt"
)

// service implements the Service interface.
type service struct {
	db *sql.DB
}

// NewService creates a new notification inbox instance.
func NewService(db *sql.DB) Service {
	return &service{db: db}
}

func (s *service) Create(ctx context.Context, n *Notification) (bool, error) {
	if n.UserID == 0 || n.Type == "" {
		return false, fmt.Errorf("notification needs a user and a type")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type, related_loan_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, related_loan_id, type) WHERE related_loan_id IS NOT NULL
		DO NOTHING
		RETURNING id, created_at
	`, n.UserID, n.Title, n.Message, n.Type, n.RelatedLoanID).Scan(&n.ID, &n.CreatedAt)
	if err == sql.ErrNoRows {
		// Conflict: the redelivered event already produced this row.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return true, nil
}

func (s *service) ListByUser(ctx context.Context, userID int64) ([]*Notification, error) {
	return s.list(ctx, selectNotification+`
		WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *service) ListUnread(ctx context.Context, userID int64) ([]*Notification, error) {
	return s.list(ctx, selectNotification+`
		WHERE user_id = $1 AND NOT is_read ORDER BY created_at DESC`, userID)
}

func (s *service) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead is scoped by user so one user cannot read another's inbox row.
func (s *service) MarkRead(ctx context.Context, userID, notificationID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID int64) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const selectNotification = `
	SELECT id, user_id, title, message, type, is_read, related_loan_id, created_at
	FROM notifications`

func (s *service) list(ctx context.Context, query string, args ...interface{}) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var result []*Notification
	for rows.Next() {
		n := &Notification{}
		var loanID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &loanID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if loanID.Valid {
			n.RelatedLoanID = &loanID.Int64
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}
