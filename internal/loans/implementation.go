// internal/loans/implementation.go
package loans

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"assetflow/internal/config"
	"assetflow/internal/events"
	"assetflow/internal/outbox"
)

// service implements the Service interface.
type service struct {
	db      *sql.DB
	outbox  *outbox.Store
	checker CapabilityChecker
	cfg     config.Config
}

// NewService creates the lifecycle engine.
func NewService(db *sql.DB, outboxStore *outbox.Store, checker CapabilityChecker, cfg config.Config) Service {
	return &service{
		db:      db,
		outbox:  outboxStore,
		checker: checker,
		cfg:     cfg,
	}
}

// RequestLoan creates a loan for an available asset. Short loans are granted
// immediately; loans longer than the approval threshold wait for a manager,
// and the asset stays available until approval (soft reservation).
func (s *service) RequestLoan(ctx context.Context, assetID, borrowerID int64, dueAt time.Time) (*Loan, error) {
	now := time.Now().UTC()
	if !dueAt.After(now) {
		return nil, fmt.Errorf("%w: due date must be in the future", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the asset row so two concurrent requests serialize here.
	var assetStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM assets WHERE id = $1 FOR UPDATE
	`, assetID).Scan(&assetStatus)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: asset %d", ErrNotFound, assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("lock asset: %w", err)
	}
	if assetStatus != "available" {
		return nil, ErrAssetUnavailable
	}

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM asset_loans
		WHERE asset_id = $1 AND status IN ('pending_approval', 'loaned', 'overdue')
	`, assetID).Scan(&existing)
	if err == nil {
		return nil, ErrAssetUnavailable
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check active loan: %w", err)
	}

	durationDays := int(dueAt.Sub(now).Hours() / 24)
	status := StatusLoaned
	var approvedAt *time.Time
	if durationDays > s.cfg.ApprovalThresholdDays {
		status = StatusPendingApproval
	} else {
		approvedAt = &now
	}

	loan := &Loan{
		AssetID:      assetID,
		UserID:       borrowerID,
		AssignedByID: borrowerID,
		Status:       status,
		RequestedAt:  now,
		ApprovedAt:   approvedAt,
		DueAt:        dueAt,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO asset_loans (asset_id, user_id, assigned_by_id, status, requested_at, approved_at, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, loan.AssetID, loan.UserID, loan.AssignedByID, loan.Status, loan.RequestedAt, nullTime(loan.ApprovedAt), loan.DueAt).
		Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
	if err != nil {
		// The partial unique index is the backstop for the check above.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrAssetUnavailable
		}
		return nil, fmt.Errorf("insert loan: %w", err)
	}

	if status == StatusLoaned {
		if err := s.setAssetStatus(ctx, tx, assetID, "loaned"); err != nil {
			return nil, err
		}
		if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetAssigned, assignedPayload(loan, 0)); err != nil {
			return nil, err
		}
	} else {
		if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetRequested, map[string]interface{}{
			"loanId":      loan.ID,
			"assetId":     loan.AssetID,
			"userId":      loan.UserID,
			"dueAt":       loan.DueAt,
			"requestedAt": loan.RequestedAt,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("loan %d created for asset %d, user %d, status %s", loan.ID, assetID, borrowerID, status)
	return loan, nil
}

// ApproveLoan moves a pending loan to loaned and marks the asset loaned.
func (s *service) ApproveLoan(ctx context.Context, loanID, approverID int64) (*Loan, error) {
	if err := s.requireCapability(ctx, approverID, CapabilityApprover); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.getLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusPendingApproval {
		return nil, ErrNotPendingApproval
	}

	now := time.Now().UTC()
	loan.Status = StatusLoaned
	loan.ApprovedAt = &now
	loan.AssignedByID = approverID

	_, err = tx.ExecContext(ctx, `
		UPDATE asset_loans
		SET status = $1, approved_at = $2, assigned_by_id = $3, updated_at = NOW()
		WHERE id = $4
	`, loan.Status, now, approverID, loanID)
	if err != nil {
		return nil, fmt.Errorf("update loan: %w", err)
	}

	if err := s.setAssetStatus(ctx, tx, loan.AssetID, "loaned"); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetAssigned, assignedPayload(loan, approverID)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("loan %d approved by user %d", loanID, approverID)
	return loan, nil
}

// RejectLoan moves a pending loan to its terminal rejected state. The row is
// kept for audit; the asset stays available.
func (s *service) RejectLoan(ctx context.Context, loanID, rejectorID int64) (*Loan, error) {
	if err := s.requireCapability(ctx, rejectorID, CapabilityApprover); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.getLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusPendingApproval {
		return nil, ErrNotPendingApproval
	}

	loan.Status = StatusRejected
	_, err = tx.ExecContext(ctx, `
		UPDATE asset_loans SET status = $1, updated_at = NOW() WHERE id = $2
	`, loan.Status, loanID)
	if err != nil {
		return nil, fmt.Errorf("update loan: %w", err)
	}

	if err := s.setAssetStatus(ctx, tx, loan.AssetID, "available"); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetRejected, map[string]interface{}{
		"loanId":     loan.ID,
		"assetId":    loan.AssetID,
		"userId":     loan.UserID,
		"rejectedAt": time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("loan %d rejected by user %d", loanID, rejectorID)
	return loan, nil
}

// ReturnAsset closes the active loan for an asset. Only the borrower or an
// approver may return it.
func (s *service) ReturnAsset(ctx context.Context, assetID, callerID int64, damageNote string) (*Loan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.getActiveLoanForUpdate(ctx, tx, assetID)
	if err != nil {
		return nil, err
	}

	if loan.UserID != callerID {
		ok, err := s.checker.HasCapability(ctx, callerID, CapabilityApprover)
		if err != nil {
			return nil, fmt.Errorf("capability check: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: only the borrower or an approver can return this asset", ErrUnauthorized)
		}
	}

	now := time.Now().UTC()
	loan.Status = StatusReturned
	loan.ReturnedAt = &now
	loan.DamageNote = damageNote

	_, err = tx.ExecContext(ctx, `
		UPDATE asset_loans
		SET status = $1, returned_at = $2, damage_note = $3, updated_at = NOW()
		WHERE id = $4
	`, loan.Status, now, nullString(damageNote), loan.ID)
	if err != nil {
		return nil, fmt.Errorf("update loan: %w", err)
	}

	if err := s.setAssetStatus(ctx, tx, assetID, "available"); err != nil {
		return nil, err
	}
	if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetReturned, map[string]interface{}{
		"loanId":     loan.ID,
		"assetId":    loan.AssetID,
		"userId":     loan.UserID,
		"returnedAt": now,
		"damageNote": damageNote,
		"status":     loan.Status,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("loan %d closed, asset %d returned by user %d", loan.ID, assetID, callerID)
	return loan, nil
}

// AdvanceOverdue moves a loaned, past-due loan to overdue. It is idempotent:
// an already-overdue loan is left alone without error so the sweeper can be
// retried freely.
func (s *service) AdvanceOverdue(ctx context.Context, loanID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.getLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return err
	}
	if loan.Status == StatusOverdue {
		return nil
	}
	if loan.Status != StatusLoaned {
		return fmt.Errorf("%w: cannot mark %s loan overdue", ErrStateConflict, loan.Status)
	}
	now := time.Now().UTC()
	if !loan.DueAt.Before(now) {
		return fmt.Errorf("%w: loan %d is not past due", ErrStateConflict, loanID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE asset_loans SET status = $1, updated_at = NOW() WHERE id = $2
	`, StatusOverdue, loanID)
	if err != nil {
		return fmt.Errorf("update loan: %w", err)
	}

	if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetOverdue, map[string]interface{}{
		"loanId":      loan.ID,
		"assetId":     loan.AssetID,
		"userId":      loan.UserID,
		"dueAt":       loan.DueAt,
		"daysPastDue": int(now.Sub(loan.DueAt).Hours() / 24),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	log.Printf("loan %d advanced to overdue", loanID)
	return nil
}

// RecordDueSoon enqueues a reminder for a loaned loan. It changes no state,
// so firing on consecutive sweeps is acceptable.
func (s *service) RecordDueSoon(ctx context.Context, loanID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.getLoanForUpdate(ctx, tx, loanID)
	if err != nil {
		return err
	}
	if loan.Status != StatusLoaned {
		return nil
	}

	now := time.Now().UTC()
	if err := s.enqueue(ctx, tx, loan.ID, events.TypeAssetDueSoon, map[string]interface{}{
		"loanId":       loan.ID,
		"assetId":      loan.AssetID,
		"userId":       loan.UserID,
		"dueAt":        loan.DueAt,
		"daysUntilDue": int(loan.DueAt.Sub(now).Hours() / 24),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *service) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	row := s.db.QueryRowContext(ctx, selectLoan+` WHERE id = $1`, loanID)
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

func (s *service) ListByUser(ctx context.Context, userID int64) ([]*Loan, error) {
	return s.list(ctx, selectLoan+` WHERE user_id = $1 ORDER BY requested_at DESC`, userID)
}

func (s *service) ListPendingApprovals(ctx context.Context, callerID int64) ([]*Loan, error) {
	if err := s.requireCapability(ctx, callerID, CapabilityApprover); err != nil {
		return nil, err
	}
	return s.list(ctx, selectLoan+` WHERE status = 'pending_approval' ORDER BY requested_at ASC`)
}

func (s *service) ListDueSoon(ctx context.Context, within time.Duration) ([]*Loan, error) {
	now := time.Now().UTC()
	return s.list(ctx, selectLoan+`
		WHERE status = 'loaned' AND due_at BETWEEN $1 AND $2
		ORDER BY due_at ASC`, now, now.Add(within))
}

func (s *service) ListOverdue(ctx context.Context) ([]*Loan, error) {
	return s.list(ctx, selectLoan+`
		WHERE status = 'loaned' AND due_at < $1
		ORDER BY due_at ASC`, time.Now().UTC())
}

func (s *service) GetStatistics(ctx context.Context, userID int64) (*Statistics, error) {
	stats := &Statistics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending_approval'),
			COUNT(*) FILTER (WHERE status = 'loaned'),
			COUNT(*) FILTER (WHERE status = 'overdue')
		FROM asset_loans WHERE user_id = $1
	`, userID).Scan(&stats.TotalLoans, &stats.PendingApprovals, &stats.ActiveLoans, &stats.OverdueLoans)
	if err != nil {
		return nil, fmt.Errorf("count loans: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assets WHERE status = 'available'
	`).Scan(&stats.AvailableAssets)
	if err != nil {
		return nil, fmt.Errorf("count available assets: %w", err)
	}
	return stats, nil
}

func (s *service) requireCapability(ctx context.Context, userID int64, capability Capability) error {
	ok, err := s.checker.HasCapability(ctx, userID, capability)
	if err != nil {
		return fmt.Errorf("capability check: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d lacks %s capability", ErrUnauthorized, userID, capability)
	}
	return nil
}

func (s *service) setAssetStatus(ctx context.Context, tx *sql.Tx, assetID int64, status string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE assets SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, assetID)
	if err != nil {
		return fmt.Errorf("update asset status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: asset %d", ErrNotFound, assetID)
	}
	return nil
}

func (s *service) enqueue(ctx context.Context, tx *sql.Tx, loanID int64, eventType string, payload map[string]interface{}) error {
	rec, err := outbox.NewRecord(events.AggregateAssetLoan, loanID, eventType, payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, rec)
}

func assignedPayload(loan *Loan, approvedByID int64) map[string]interface{} {
	assignedAt := loan.RequestedAt
	if loan.ApprovedAt != nil {
		assignedAt = *loan.ApprovedAt
	}
	payload := map[string]interface{}{
		"loanId":       loan.ID,
		"assetId":      loan.AssetID,
		"userId":       loan.UserID,
		"assignedById": loan.AssignedByID,
		"dueAt":        loan.DueAt,
		"assignedAt":   assignedAt,
		"status":       loan.Status,
	}
	if approvedByID != 0 {
		payload["approvedById"] = approvedByID
	}
	return payload
}

const selectLoan = `
	SELECT id, asset_id, user_id, assigned_by_id, status, requested_at,
		approved_at, due_at, returned_at, damage_note, created_at, updated_at
	FROM asset_loans`

func (s *service) getLoanForUpdate(ctx context.Context, tx *sql.Tx, loanID int64) (*Loan, error) {
	row := tx.QueryRowContext(ctx, selectLoan+` WHERE id = $1 FOR UPDATE`, loanID)
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

func (s *service) getActiveLoanForUpdate(ctx context.Context, tx *sql.Tx, assetID int64) (*Loan, error) {
	row := tx.QueryRowContext(ctx, selectLoan+`
		WHERE asset_id = $1 AND status IN ('loaned', 'overdue')
		FOR UPDATE`, assetID)
	loan, err := scanLoan(row)
	if err == sql.ErrNoRows {
		return nil, ErrNoActiveLoan
	}
	if err != nil {
		return nil, fmt.Errorf("get active loan: %w", err)
	}
	return loan, nil
}

func (s *service) list(ctx context.Context, query string, args ...interface{}) ([]*Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var result []*Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		result = append(result, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (*Loan, error) {
	loan := &Loan{}
	var approvedAt, returnedAt sql.NullTime
	var damageNote sql.NullString
	err := row.Scan(
		&loan.ID, &loan.AssetID, &loan.UserID, &loan.AssignedByID, &loan.Status,
		&loan.RequestedAt, &approvedAt, &loan.DueAt, &returnedAt, &damageNote,
		&loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		loan.ApprovedAt = &approvedAt.Time
	}
	if returnedAt.Valid {
		loan.ReturnedAt = &returnedAt.Time
	}
	loan.DamageNote = damageNote.String
	return loan, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
