/**
 * @description
 * This file defines the read-only directory entities the reconciliation
 * service depends on but does not own: schools, the students enrolled in
 * them, and each school's payment-provider credentials. It also defines the
 * Invoice receipt record generated after a confirmed payment.
 *
 * @notes
 * - ProviderConfig.SecretKey is excluded from JSON serialization; credentials
 *   are resolved per-operation and never cached in memory.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// School is a read-only view of the tenant record.
type School struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Student is a read-only view of an enrolled student.
type Student struct {
	ID          uuid.UUID `json:"id"`
	SchoolID    uuid.UUID `json:"school_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Department  string    `json:"department"`
	YearOfStudy string    `json:"year_of_study"`
}

// ProviderConfig holds one school's credentials for a payment provider.
// The secret key signs webhook payloads and authorizes provider API calls.
type ProviderConfig struct {
	SchoolID  uuid.UUID `json:"school_id"`
	Provider  string    `json:"provider"`
	SecretKey string    `json:"-"`
	Priority  int       `json:"priority"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Invoice is the receipt record generated for a confirmed payment. Tax is a
// fixed-zero placeholder until a tax policy exists.
type Invoice struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	PaymentID     uuid.UUID `json:"payment_id"`
	StudentID     uuid.UUID `json:"student_id"`
	SchoolID      uuid.UUID `json:"school_id"`
	FeeID         uuid.UUID `json:"fee_id"`
	Amount        int64     `json:"amount"` // in kobo
	Tax           int64     `json:"tax"`
	TotalAmount   int64     `json:"total_amount"`
	ReceiptURL    string    `json:"receipt_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
