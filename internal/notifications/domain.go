// internal/notifications/domain.go
package notifications

import (
	"errors"
	"time"
)

// Notification types stored in the inbox.
const (
	TypeLoanApproved        = "LOAN_APPROVED"
	TypeLoanRejected        = "LOAN_REJECTED"
	TypeLoanRequestReceived = "LOAN_REQUEST_RECEIVED"
	TypeAssetDueSoon        = "ASSET_DUE_SOON"
	TypeAssetOverdue        = "ASSET_OVERDUE"
	TypeGeneral             = "GENERAL"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one row of a user's inbox. Rows tied to a loan carry
// RelatedLoanID, which the unique index uses to drop duplicates when the
// broker redelivers an event.
type Notification struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Type          string    `json:"type"`
	Read          bool      `json:"read"`
	RelatedLoanID *int64    `json:"related_loan_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
