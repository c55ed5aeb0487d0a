// internal/loans/service.go
package loans

import (
	"context"
	"time"
)

// Service is the loan lifecycle engine. Every state-changing operation writes
// the loan, the asset status and the outbox record in one transaction.
type Service interface {
	RequestLoan(ctx context.Context, assetID, borrowerID int64, dueAt time.Time) (*Loan, error)
	ApproveLoan(ctx context.Context, loanID, approverID int64) (*Loan, error)
	RejectLoan(ctx context.Context, loanID, rejectorID int64) (*Loan, error)
	ReturnAsset(ctx context.Context, assetID, callerID int64, damageNote string) (*Loan, error)

	// AdvanceOverdue is driven by the due-date sweeper. Calling it on a loan
	// that is already overdue is a no-op.
	AdvanceOverdue(ctx context.Context, loanID int64) error
	// RecordDueSoon enqueues a reminder event without changing loan state.
	RecordDueSoon(ctx context.Context, loanID int64) error

	GetLoan(ctx context.Context, loanID int64) (*Loan, error)
	ListByUser(ctx context.Context, userID int64) ([]*Loan, error)
	ListPendingApprovals(ctx context.Context, callerID int64) ([]*Loan, error)
	ListDueSoon(ctx context.Context, within time.Duration) ([]*Loan, error)
	ListOverdue(ctx context.Context) ([]*Loan, error)
	GetStatistics(ctx context.Context, userID int64) (*Statistics, error)
}
