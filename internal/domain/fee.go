/**
 * @description
 * This file defines the fee-side domain models: the Fee charge definition a
 * school publishes for an academic session, and the FeeAssignment obligation
 * linking a fee to a specific student. Assignments are the mutable half of the
 * reconciliation core: their paid balance is only ever advanced by the balance
 * engine when a payment is confirmed.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (kobo) to
 *   avoid floating-point inaccuracies with financial data.
 * - Assignment status is a pure function of (amountPaid, amountDue); callers
 *   must never set it by hand outside AssignmentStatusFor.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Fee assignment statuses.
const (
	AssignmentStatusAssigned      = "assigned"
	AssignmentStatusPartiallyPaid = "partially_paid"
	AssignmentStatusFullyPaid     = "fully_paid"
	AssignmentStatusOverdue       = "overdue"
)

// Fee is a charge definition issued by a school for an academic session.
// It maps to the `fees` table. A fee becomes immutable once assignments
// reference it; deletion is blocked at the service layer.
type Fee struct {
	ID                  uuid.UUID `json:"id"`
	SchoolID            uuid.UUID `json:"school_id"`
	FeeType             string    `json:"fee_type"` // e.g. "Tuition", "Hostel"
	Amount              int64     `json:"amount"`   // in kobo
	DueDate             time.Time `json:"due_date"`
	AcademicSession     string    `json:"academic_session"`
	AllowPartialPayment bool      `json:"allow_partial_payment"`
	Description         string    `json:"description,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CohortSelector targets a group of students by department and/or year of
// study. Both fields are optional, but an assignment request must carry either
// a student id or a non-empty selector.
type CohortSelector struct {
	Department  string `json:"department,omitempty"`
	YearOfStudy string `json:"year_of_study,omitempty"`
}

// IsZero reports whether the selector matches nothing.
func (c CohortSelector) IsZero() bool {
	return c.Department == "" && c.YearOfStudy == ""
}

// FeeAssignment is the obligation linking one fee to one student, tracking the
// amount owed and paid. It maps to the `fee_assignments` table. Rows are never
// deleted; they are the historical record reporting depends on.
type FeeAssignment struct {
	ID         uuid.UUID      `json:"id"`
	FeeID      uuid.UUID      `json:"fee_id"`
	SchoolID   uuid.UUID      `json:"school_id"`
	StudentID  uuid.UUID      `json:"student_id"`
	Cohort     CohortSelector `json:"cohort,omitempty"`
	DueDate    time.Time      `json:"due_date"`
	AmountDue  int64          `json:"amount_due"`  // snapshot of fee.amount at assignment time
	AmountPaid int64          `json:"amount_paid"` // monotonically non-decreasing
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// AssignmentStatusFor computes the status an assignment must carry for a given
// balance. Overpayment caps at fully_paid; the overdue status is applied only
// by the scheduled sweep and is superseded by this function as soon as money
// moves.
func AssignmentStatusFor(amountPaid, amountDue int64) string {
	switch {
	case amountPaid <= 0:
		return AssignmentStatusAssigned
	case amountPaid < amountDue:
		return AssignmentStatusPartiallyPaid
	default:
		return AssignmentStatusFullyPaid
	}
}

// CreateFeePayload is the DTO for the admin fee-creation endpoint.
type CreateFeePayload struct {
	FeeType             string    `json:"fee_type"`
	Amount              int64     `json:"amount"` // in kobo
	DueDate             time.Time `json:"due_date"`
	AcademicSession     string    `json:"academic_session"`
	AllowPartialPayment *bool     `json:"allow_partial_payment,omitempty"`
	Description         string    `json:"description,omitempty"`
}

// CreateFeeAssignmentPayload is the DTO for the admin assignment endpoint.
// Either StudentID or a non-empty Cohort selector must be provided.
type CreateFeeAssignmentPayload struct {
	FeeID     uuid.UUID      `json:"fee_id"`
	StudentID *uuid.UUID     `json:"student_id,omitempty"`
	Cohort    CohortSelector `json:"cohort,omitempty"`
	DueDate   time.Time      `json:"due_date"`
}
