/**
 * @description
 * This file defines the data persistence contract for the fee payment
 * service. The `Repository` interface abstracts all database interactions,
 * allowing the application layer to remain decoupled from the specific
 * database implementation (PostgreSQL).
 *
 * The reconciliation methods (`ConfirmPaymentAtomic`, `RejectPaymentAtomic`,
 * the refund transition methods) are transactional by contract: each one
 * runs its reads, state checks and writes inside a single database
 * transaction under row locks, so callers get exactly-once application
 * without managing transactions themselves.
 *
 * @dependencies
 * - github.com/google/uuid: For handling UUID types.
 * - internal/domain: For the domain models that are persisted.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
)

var (
	// ErrSchoolNotFound is returned when a school cannot be found.
	ErrSchoolNotFound = errors.New("school not found")
	// ErrStudentNotFound is returned when a student cannot be found.
	ErrStudentNotFound = errors.New("student not found")
	// ErrFeeNotFound is returned when a fee cannot be found.
	ErrFeeNotFound = errors.New("fee not found")
	// ErrAssignmentNotFound is returned when a fee assignment cannot be found.
	ErrAssignmentNotFound = errors.New("fee assignment not found")
	// ErrPaymentNotFound is returned when a payment cannot be found.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrRefundNotFound is returned when a refund cannot be found.
	ErrRefundNotFound = errors.New("refund not found")
	// ErrProviderNotConfigured is returned when a school has no active
	// credentials for the requested payment provider.
	ErrProviderNotConfigured = errors.New("payment provider not configured for school")
	// ErrFeeHasAssignments is returned when deleting a fee that students have
	// already been assigned.
	ErrFeeHasAssignments = errors.New("fee has existing assignments")
	// ErrRefundExceedsRemainder is returned when a refund would reverse more
	// than the payment's refundable remainder.
	ErrRefundExceedsRemainder = errors.New("refund amount exceeds refundable remainder")
	// ErrRefundNotReviewable is returned when reviewing a refund that is not
	// in the requested state.
	ErrRefundNotReviewable = errors.New("refund is not awaiting review")
)

// TransactionLogFilter narrows transaction-log counting queries. Zero-valued
// fields are ignored.
type TransactionLogFilter struct {
	Action    string
	PaymentID *uuid.UUID
	RefundID  *uuid.UUID
	StudentID *uuid.UUID
	SchoolID  *uuid.UUID
	Since     time.Time
}

// Repository defines the persistence operations for the fee payment service.
type Repository interface {
	// Directory reads. These entities are owned elsewhere; this service only
	// reads them.
	FindSchoolByID(ctx context.Context, id uuid.UUID) (*domain.School, error)
	FindStudentByID(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	FindStudentsByCohort(ctx context.Context, schoolID uuid.UUID, cohort domain.CohortSelector) ([]domain.Student, error)
	FindActiveProviderConfig(ctx context.Context, schoolID uuid.UUID, provider string) (*domain.ProviderConfig, error)

	// Fees.
	CreateFee(ctx context.Context, fee *domain.Fee) error
	FindFeeByID(ctx context.Context, id uuid.UUID) (*domain.Fee, error)
	CountAssignmentsByFee(ctx context.Context, feeID uuid.UUID) (int64, error)
	// DeleteFeeIfUnassigned deletes the fee only when no assignments reference
	// it, checked and deleted in one transaction. Returns ErrFeeHasAssignments
	// otherwise.
	DeleteFeeIfUnassigned(ctx context.Context, feeID uuid.UUID) error

	// Fee assignments.
	CreateFeeAssignments(ctx context.Context, assignments []domain.FeeAssignment) error
	FindAssignmentByFeeAndStudent(ctx context.Context, feeID, studentID uuid.UUID) (*domain.FeeAssignment, error)
	ListAssignmentsByStudent(ctx context.Context, studentID uuid.UUID) ([]domain.FeeAssignment, error)
	// MarkOverdueAssignments flips unpaid assignments past their due date to
	// overdue and returns the number of rows affected.
	MarkOverdueAssignments(ctx context.Context, now time.Time) (int64, error)

	// Payments.
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	SetPaymentProviderReference(ctx context.Context, paymentID uuid.UUID, reference string) error
	SetPaymentReceiptURL(ctx context.Context, paymentID uuid.UUID, receiptURL string) error
	FindPaymentByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindPaymentByProviderReference(ctx context.Context, reference string) (*domain.Payment, error)
	// ConfirmPaymentAtomic applies a provider success notification in one
	// transaction: it locks the payment row, no-ops if already confirmed
	// (applied=false), otherwise marks it confirmed, advances the matching fee
	// assignment's paid balance under a row lock, recomputes the assignment
	// status, and appends the confirmation transaction log. The absence of a
	// matching assignment aborts the whole transaction.
	ConfirmPaymentAtomic(ctx context.Context, paymentID uuid.UUID, rawPayload []byte, meta domain.LogMetadata) (payment *domain.Payment, assignment *domain.FeeAssignment, applied bool, err error)
	// RejectPaymentAtomic marks a non-terminal payment rejected and appends
	// the rejection transaction log in one transaction. applied=false means
	// the payment was already terminal.
	RejectPaymentAtomic(ctx context.Context, paymentID uuid.UUID, meta domain.LogMetadata) (payment *domain.Payment, applied bool, err error)
	// ExpireStalePayments marks payments still awaiting confirmation past the
	// cutoff as expired, appending an expiry transaction log per row, and
	// returns the expired payments.
	ExpireStalePayments(ctx context.Context, cutoff time.Time) ([]domain.Payment, error)

	// Refunds.
	FindRefundByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	// FindApprovedRefundByPayment returns the most recently approved refund
	// awaiting settlement on the payment.
	FindApprovedRefundByPayment(ctx context.Context, paymentID uuid.UUID) (*domain.Refund, error)
	// SumActiveRefunds returns the total amount of refunds against the payment
	// in the approved or processed states.
	SumActiveRefunds(ctx context.Context, paymentID uuid.UUID) (int64, error)
	// CreateRefundAtomic inserts the refund after re-checking the refundable
	// remainder under a lock on the parent payment, and appends the request
	// transaction log. Returns ErrRefundExceedsRemainder when a concurrent
	// refund consumed the remainder.
	CreateRefundAtomic(ctx context.Context, refund *domain.Refund, meta domain.LogMetadata) error
	// ReviewRefundAtomic moves a requested refund to approved or rejected,
	// appending the trail entry and the review transaction log in one
	// transaction. Returns ErrRefundNotReviewable if the refund is not in the
	// requested state.
	ReviewRefundAtomic(ctx context.Context, refundID uuid.UUID, decision string, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, error)
	// MarkRefundProcessedAtomic moves an approved refund to processed.
	// applied=false means the refund was already terminal.
	MarkRefundProcessedAtomic(ctx context.Context, refundID uuid.UUID, entry domain.RefundTrailEntry, meta domain.LogMetadata) (refund *domain.Refund, applied bool, err error)
	// MarkRefundFailedAtomic moves an approved refund to failed. applied=false
	// means the refund was already terminal.
	MarkRefundFailedAtomic(ctx context.Context, refundID uuid.UUID, entry domain.RefundTrailEntry, meta domain.LogMetadata) (refund *domain.Refund, applied bool, err error)

	// Invoices.
	CreateInvoice(ctx context.Context, invoice *domain.Invoice) error

	// Log streams.
	InsertTransactionLog(ctx context.Context, entry *domain.TransactionLog) error
	CountTransactionLogs(ctx context.Context, filter TransactionLogFilter) (int64, error)
	InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error
	ListAuditLogs(ctx context.Context, schoolID uuid.UUID, filter domain.AuditLogFilter) ([]domain.AuditLog, error)
}
