/**
 * @description
 * This file implements the transactional reconciliation methods of the
 * `Repository` interface: payment confirmation/rejection/expiry and the
 * refund lifecycle transitions. Every method here runs its state check and
 * its writes inside one database transaction, locking the affected rows with
 * FOR UPDATE so concurrent webhook deliveries serialize instead of racing.
 *
 * The transaction-log insert rides in the same transaction as the state
 * change: a transition without its log row never commits.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transactions and row locking.
 * - internal/domain: Domain models and the status pure functions.
 */

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
)

// insertTransactionLogTx appends one transaction-log row inside an open
// transaction. A failure here aborts the caller's transaction.
func insertTransactionLogTx(ctx context.Context, tx pgx.Tx, entry *domain.TransactionLog) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal transaction log metadata: %w", err)
	}
	query := `
		INSERT INTO transaction_logs (id, payment_id, refund_id, student_id, school_id, action, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, query, entry.ID, entry.PaymentID, entry.RefundID, entry.StudentID, entry.SchoolID, entry.Action, metadata)
	return err
}

func lockPaymentTx(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	query := `
		SELECT id, student_id, school_id, fee_id, amount, provider,
		       COALESCE(provider_reference, '') AS provider_reference, provider_payload,
		       status, fraud_score, receipt_url, created_at, updated_at
		FROM payments
		WHERE id = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, paymentID).Scan(
		&p.ID, &p.StudentID, &p.SchoolID, &p.FeeID, &p.Amount, &p.Provider,
		&p.Metadata.Reference, &p.Metadata.RawPayload,
		&p.Status, &p.FraudScore, &p.ReceiptURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func lockRefundTx(ctx context.Context, tx pgx.Tx, refundID uuid.UUID) (*domain.Refund, error) {
	var (
		ref   domain.Refund
		trail []byte
	)
	query := `
		SELECT id, payment_id, student_id, school_id, amount, reason, status, fraud_score, audit_trail, created_at, updated_at
		FROM refunds
		WHERE id = $1
		FOR UPDATE
	`
	err := tx.QueryRow(ctx, query, refundID).Scan(
		&ref.ID, &ref.PaymentID, &ref.StudentID, &ref.SchoolID, &ref.Amount,
		&ref.Reason, &ref.Status, &ref.FraudScore, &trail, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &ref.AuditTrail); err != nil {
			return nil, fmt.Errorf("unmarshal refund audit trail: %w", err)
		}
	}
	return &ref, nil
}

// ConfirmPaymentAtomic applies a provider success notification exactly once.
// The payment row is locked first; a payment already confirmed returns
// applied=false with no writes. Otherwise the payment is confirmed, the
// matching fee assignment's balance is advanced under its own row lock, and
// the confirmation transaction log is appended, all in one transaction.
func (r *PostgresRepository) ConfirmPaymentAtomic(ctx context.Context, paymentID uuid.UUID, rawPayload []byte, meta domain.LogMetadata) (*domain.Payment, *domain.FeeAssignment, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	defer tx.Rollback(ctx)

	payment, err := lockPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, nil, false, err
	}
	if payment.Status == domain.PaymentStatusConfirmed {
		return payment, nil, false, nil
	}

	_, err = tx.Exec(ctx,
		`UPDATE payments SET status = 'confirmed', provider_payload = $1, updated_at = NOW() WHERE id = $2`,
		rawPayload, payment.ID,
	)
	if err != nil {
		return nil, nil, false, err
	}
	payment.Status = domain.PaymentStatusConfirmed
	payment.Metadata.RawPayload = rawPayload

	// The assignment must exist; its absence aborts the whole transaction so
	// the payment never shows confirmed against nothing.
	var a domain.FeeAssignment
	err = tx.QueryRow(ctx, `
		SELECT id, fee_id, school_id, student_id, COALESCE(department, '') AS department,
		       COALESCE(year_of_study, '') AS year_of_study, due_date, amount_due, amount_paid, status,
		       created_at, updated_at
		FROM fee_assignments
		WHERE fee_id = $1 AND student_id = $2
		FOR UPDATE
	`, payment.FeeID, payment.StudentID).Scan(
		&a.ID, &a.FeeID, &a.SchoolID, &a.StudentID, &a.Cohort.Department,
		&a.Cohort.YearOfStudy, &a.DueDate, &a.AmountDue, &a.AmountPaid, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, false, ErrAssignmentNotFound
		}
		return nil, nil, false, err
	}

	a.AmountPaid += payment.Amount
	a.Status = domain.AssignmentStatusFor(a.AmountPaid, a.AmountDue)
	_, err = tx.Exec(ctx,
		`UPDATE fee_assignments SET amount_paid = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		a.AmountPaid, a.Status, a.ID,
	)
	if err != nil {
		return nil, nil, false, err
	}

	entry := &domain.TransactionLog{
		ID:        uuid.New(),
		PaymentID: &payment.ID,
		StudentID: &payment.StudentID,
		SchoolID:  &payment.SchoolID,
		Action:    domain.ActionPaymentConfirmed,
		Metadata:  meta,
	}
	if err := insertTransactionLogTx(ctx, tx, entry); err != nil {
		return nil, nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, false, err
	}
	return payment, &a, true, nil
}

// RejectPaymentAtomic marks a non-terminal payment rejected. Payments already
// in a terminal state return applied=false with no writes.
func (r *PostgresRepository) RejectPaymentAtomic(ctx context.Context, paymentID uuid.UUID, meta domain.LogMetadata) (*domain.Payment, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	payment, err := lockPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return nil, false, err
	}
	if payment.IsTerminal() {
		return payment, false, nil
	}

	_, err = tx.Exec(ctx, `UPDATE payments SET status = 'rejected', updated_at = NOW() WHERE id = $1`, payment.ID)
	if err != nil {
		return nil, false, err
	}
	payment.Status = domain.PaymentStatusRejected

	entry := &domain.TransactionLog{
		ID:        uuid.New(),
		PaymentID: &payment.ID,
		StudentID: &payment.StudentID,
		SchoolID:  &payment.SchoolID,
		Action:    domain.ActionPaymentRejected,
		Metadata:  meta,
	}
	if err := insertTransactionLogTx(ctx, tx, entry); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return payment, true, nil
}

// ExpireStalePayments marks payments still awaiting confirmation past the
// cutoff as expired, one expiry log row per payment, in one transaction.
func (r *PostgresRepository) ExpireStalePayments(ctx context.Context, cutoff time.Time) ([]domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE payments
		SET status = 'expired', updated_at = NOW()
		WHERE status IN ('initiated', 'pending')
		  AND created_at < $1
		RETURNING id, student_id, school_id, fee_id, amount, provider,
		          COALESCE(provider_reference, '') AS provider_reference, provider_payload,
		          status, fraud_score, receipt_url, created_at, updated_at
	`, cutoff)
	if err != nil {
		return nil, err
	}

	var expired []domain.Payment
	for rows.Next() {
		var p domain.Payment
		err := rows.Scan(
			&p.ID, &p.StudentID, &p.SchoolID, &p.FeeID, &p.Amount, &p.Provider,
			&p.Metadata.Reference, &p.Metadata.RawPayload,
			&p.Status, &p.FraudScore, &p.ReceiptURL, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			rows.Close()
			return nil, err
		}
		expired = append(expired, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range expired {
		entry := &domain.TransactionLog{
			ID:        uuid.New(),
			PaymentID: &expired[i].ID,
			StudentID: &expired[i].StudentID,
			SchoolID:  &expired[i].SchoolID,
			Action:    domain.ActionPaymentExpired,
			Metadata:  domain.LogMetadata{},
		}
		if err := insertTransactionLogTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return expired, nil
}

// FindRefundByID retrieves a refund by its ID.
func (r *PostgresRepository) FindRefundByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	var (
		ref   domain.Refund
		trail []byte
	)
	query := `
		SELECT id, payment_id, student_id, school_id, amount, reason, status, fraud_score, audit_trail, created_at, updated_at
		FROM refunds
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ref.ID, &ref.PaymentID, &ref.StudentID, &ref.SchoolID, &ref.Amount,
		&ref.Reason, &ref.Status, &ref.FraudScore, &trail, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &ref.AuditTrail); err != nil {
			return nil, fmt.Errorf("unmarshal refund audit trail: %w", err)
		}
	}
	return &ref, nil
}

// FindApprovedRefundByPayment retrieves the most recently approved refund
// still awaiting settlement on a payment.
func (r *PostgresRepository) FindApprovedRefundByPayment(ctx context.Context, paymentID uuid.UUID) (*domain.Refund, error) {
	var (
		ref   domain.Refund
		trail []byte
	)
	query := `
		SELECT id, payment_id, student_id, school_id, amount, reason, status, fraud_score, audit_trail, created_at, updated_at
		FROM refunds
		WHERE payment_id = $1 AND status = 'approved'
		ORDER BY updated_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, paymentID).Scan(
		&ref.ID, &ref.PaymentID, &ref.StudentID, &ref.SchoolID, &ref.Amount,
		&ref.Reason, &ref.Status, &ref.FraudScore, &trail, &ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &ref.AuditTrail); err != nil {
			return nil, fmt.Errorf("unmarshal refund audit trail: %w", err)
		}
	}
	return &ref, nil
}

// SumActiveRefunds totals the refunds against a payment that still hold or
// will hold money, i.e. approved or processed.
func (r *PostgresRepository) SumActiveRefunds(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var total int64
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE payment_id = $1 AND status IN ('approved', 'processed')
	`
	if err := r.db.QueryRow(ctx, query, paymentID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CreateRefundAtomic inserts the refund after re-checking the refundable
// remainder under a lock on the parent payment, so two concurrent requests
// cannot both fit into the same remainder.
func (r *PostgresRepository) CreateRefundAtomic(ctx context.Context, refund *domain.Refund, meta domain.LogMetadata) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	payment, err := lockPaymentTx(ctx, tx, refund.PaymentID)
	if err != nil {
		return err
	}

	var active int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE payment_id = $1 AND status IN ('approved', 'processed')
	`, refund.PaymentID).Scan(&active)
	if err != nil {
		return err
	}
	if refund.Amount > payment.Amount-active {
		return ErrRefundExceedsRemainder
	}

	trail, err := json.Marshal(refund.AuditTrail)
	if err != nil {
		return fmt.Errorf("marshal refund audit trail: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO refunds (id, payment_id, student_id, school_id, amount, reason, status, fraud_score, audit_trail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		refund.ID, refund.PaymentID, refund.StudentID, refund.SchoolID,
		refund.Amount, refund.Reason, refund.Status, refund.FraudScore, trail,
	)
	if err != nil {
		return err
	}

	entry := &domain.TransactionLog{
		ID:        uuid.New(),
		PaymentID: &refund.PaymentID,
		RefundID:  &refund.ID,
		StudentID: &refund.StudentID,
		SchoolID:  &refund.SchoolID,
		Action:    domain.ActionRefundRequested,
		Metadata:  meta,
	}
	if err := insertTransactionLogTx(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// appendRefundTrailTx updates a refund's status and appends one trail entry to
// its JSONB audit trail in place.
func appendRefundTrailTx(ctx context.Context, tx pgx.Tx, refundID uuid.UUID, status string, entry domain.RefundTrailEntry) error {
	encoded, err := json.Marshal([]domain.RefundTrailEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal refund trail entry: %w", err)
	}
	query := `
		UPDATE refunds
		SET status = $1, audit_trail = COALESCE(audit_trail, '[]'::jsonb) || $2::jsonb, updated_at = NOW()
		WHERE id = $3
	`
	_, err = tx.Exec(ctx, query, status, encoded, refundID)
	return err
}

// ReviewRefundAtomic moves a requested refund to approved or rejected. Any
// other current state returns ErrRefundNotReviewable.
func (r *PostgresRepository) ReviewRefundAtomic(ctx context.Context, refundID uuid.UUID, decision string, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	refund, err := lockRefundTx(ctx, tx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status != domain.RefundStatusRequested {
		return nil, ErrRefundNotReviewable
	}

	status := domain.RefundStatusApproved
	action := domain.ActionRefundApproved
	if decision == domain.RefundDecisionRejected {
		status = domain.RefundStatusRejected
		action = domain.ActionRefundRejected
	}

	if err := appendRefundTrailTx(ctx, tx, refund.ID, status, entry); err != nil {
		return nil, err
	}
	refund.Status = status
	refund.AuditTrail = append(refund.AuditTrail, entry)

	logEntry := &domain.TransactionLog{
		ID:        uuid.New(),
		PaymentID: &refund.PaymentID,
		RefundID:  &refund.ID,
		StudentID: &refund.StudentID,
		SchoolID:  &refund.SchoolID,
		Action:    action,
		Metadata:  meta,
	}
	if err := insertTransactionLogTx(ctx, tx, logEntry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return refund, nil
}

// MarkRefundProcessedAtomic moves an approved refund to processed. Refunds
// already terminal return applied=false with no writes.
func (r *PostgresRepository) MarkRefundProcessedAtomic(ctx context.Context, refundID uuid.UUID, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, bool, error) {
	return r.finalizeRefund(ctx, refundID, domain.RefundStatusProcessed, domain.ActionRefundProcessed, entry, meta)
}

// MarkRefundFailedAtomic moves an approved refund to failed. Refunds already
// terminal return applied=false with no writes.
func (r *PostgresRepository) MarkRefundFailedAtomic(ctx context.Context, refundID uuid.UUID, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, bool, error) {
	return r.finalizeRefund(ctx, refundID, domain.RefundStatusFailed, domain.ActionRefundFailed, entry, meta)
}

func (r *PostgresRepository) finalizeRefund(ctx context.Context, refundID uuid.UUID, status, action string, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	refund, err := lockRefundTx(ctx, tx, refundID)
	if err != nil {
		return nil, false, err
	}
	if refund.IsTerminal() {
		return refund, false, nil
	}

	if err := appendRefundTrailTx(ctx, tx, refund.ID, status, entry); err != nil {
		return nil, false, err
	}
	refund.Status = status
	refund.AuditTrail = append(refund.AuditTrail, entry)

	logEntry := &domain.TransactionLog{
		ID:        uuid.New(),
		PaymentID: &refund.PaymentID,
		RefundID:  &refund.ID,
		StudentID: &refund.StudentID,
		SchoolID:  &refund.SchoolID,
		Action:    action,
		Metadata:  meta,
	}
	if err := insertTransactionLogTx(ctx, tx, logEntry); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return refund, true, nil
}
