/**
 * @description
 * This file defines the Refund entity: one reversal request against a
 * previously confirmed payment. A refund carries its own append-only audit
 * trail in addition to the global transaction/audit logs, because dispute
 * resolution needs the full ordered history of a single refund in one place.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Refund statuses. `approved` is not terminal; it awaits provider confirmation.
const (
	RefundStatusRequested = "requested"
	RefundStatusApproved  = "approved"
	RefundStatusRejected  = "rejected"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

// Refund review decisions.
const (
	RefundDecisionApproved = "approved"
	RefundDecisionRejected = "rejected"
)

// RefundTrailEntry is one step in a refund's append-only audit trail.
type RefundTrailEntry struct {
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Refund maps to the `refunds` table. Rows are never deleted.
type Refund struct {
	ID         uuid.UUID          `json:"id"`
	PaymentID  uuid.UUID          `json:"payment_id"`
	StudentID  uuid.UUID          `json:"student_id"`
	SchoolID   uuid.UUID          `json:"school_id"`
	Amount     int64              `json:"amount"` // in kobo
	Reason     string             `json:"reason"`
	Status     string             `json:"status"`
	FraudScore int                `json:"fraud_score"` // [0,100]
	AuditTrail []RefundTrailEntry `json:"audit_trail"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// IsTerminal reports whether the refund can no longer transition.
func (r *Refund) IsTerminal() bool {
	switch r.Status {
	case RefundStatusRejected, RefundStatusProcessed, RefundStatusFailed:
		return true
	}
	return false
}

// RequestRefundPayload is the DTO for the student refund-request endpoint.
type RequestRefundPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    int64     `json:"amount"` // in kobo
	Reason    string    `json:"reason"`
}

// ReviewRefundPayload is the DTO for the admin refund-review endpoint.
type ReviewRefundPayload struct {
	RefundID uuid.UUID `json:"refund_id"`
	Decision string    `json:"decision"` // "approved" or "rejected"
}

// RefundWebhookEvent is the parsed shape of a provider refund notification.
type RefundWebhookEvent struct {
	Event string `json:"event"` // "refund.processed" or "refund.failed"
	Data  struct {
		RefundID    uuid.UUID `json:"refund_id"`
		Transaction struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
	} `json:"data"`
}
