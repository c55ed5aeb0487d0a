// internal/loans/domain.go
package loans

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the loan lifecycle state. The stored value is the lowercase form.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusLoaned          Status = "loaned"
	StatusReturned        Status = "returned"
	StatusRejected        Status = "rejected"
	StatusOverdue         Status = "overdue"
)

// transitions is the full set of legal lifecycle edges. The empty Status is
// the pre-creation state.
var transitions = map[Status][]Status{
	"":                    {StatusPendingApproval, StatusLoaned},
	StatusPendingApproval: {StatusLoaned, StatusRejected},
	StatusLoaned:          {StatusReturned, StatusOverdue},
	StatusOverdue:         {StatusReturned},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active reports whether the loan still holds its asset.
func (s Status) Active() bool {
	return s == StatusPendingApproval || s == StatusLoaned || s == StatusOverdue
}

// Loan is one assignment of an asset to a user. Rows are never deleted;
// rejected and returned loans are kept for audit.
type Loan struct {
	ID           int64      `json:"id"`
	AssetID      int64      `json:"asset_id"`
	UserID       int64      `json:"user_id"`
	AssignedByID int64      `json:"assigned_by_id"`
	Status       Status     `json:"status"`
	RequestedAt  time.Time  `json:"requested_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	DueAt        time.Time  `json:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	DamageNote   string     `json:"damage_note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Statistics summarizes a user's loans.
type Statistics struct {
	TotalLoans       int `json:"total_loans"`
	PendingApprovals int `json:"pending_approvals"`
	ActiveLoans      int `json:"active_loans"`
	OverdueLoans     int `json:"overdue_loans"`
	AvailableAssets  int `json:"available_assets"`
}

// Error kinds. Specific failures wrap one of these so callers can classify
// with errors.Is.
var (
	ErrValidation    = errors.New("validation failure")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
)

var (
	ErrAssetUnavailable   = fmt.Errorf("%w: asset is not available", ErrStateConflict)
	ErrNotPendingApproval = fmt.Errorf("%w: loan is not pending approval", ErrStateConflict)
	ErrNoActiveLoan       = fmt.Errorf("%w: no active loan for asset", ErrNotFound)
)

// Capability is a permission resolved per call against the user directory,
// not a hard-coded role comparison inside the engine.
type Capability string

const (
	CapabilityBorrower Capability = "borrower"
	CapabilityApprover Capability = "approver"
)

// CapabilityChecker answers whether a user currently holds a capability.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, userID int64, capability Capability) (bool, error)
}
