/**
 * @description
 * This file defines the Payment entity and its provider-facing value objects.
 * A payment is one attempted collection against a fee assignment through an
 * external payment provider; the provider's opaque charge reference is the
 * idempotency key for every notification that arrives about it.
 *
 * @notes
 * - ProviderMetadata is a typed value object rather than an open string map so
 *   the idempotency lookup key stays explicit and type-checked.
 * - `confirmed`, `rejected` and `expired` are terminal; a second success
 *   notification for a confirmed payment must be a no-op.
 */

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment statuses.
const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusRejected  = "rejected"
	PaymentStatusExpired   = "expired"
)

// ProviderMetadata carries the external provider's identifiers for a charge.
// Reference is the idempotency key; RawPayload is the provider's confirmation
// body stored verbatim for dispute resolution.
type ProviderMetadata struct {
	Reference  string          `json:"reference"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// Payment represents one attempt to collect money against a fee assignment.
// It maps to the `payments` table. Rows are never deleted.
type Payment struct {
	ID         uuid.UUID        `json:"id"`
	StudentID  uuid.UUID        `json:"student_id"`
	SchoolID   uuid.UUID        `json:"school_id"`
	FeeID      uuid.UUID        `json:"fee_id"`
	Amount     int64            `json:"amount"` // in kobo
	Provider   string           `json:"provider"`
	Metadata   ProviderMetadata `json:"metadata"`
	Status     string           `json:"status"`
	FraudScore int              `json:"fraud_score"` // [0,100]
	ReceiptURL *string          `json:"receipt_url,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the payment can no longer transition.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusConfirmed, PaymentStatusRejected, PaymentStatusExpired:
		return true
	}
	return false
}

// InitializePaymentRequest is the DTO for the student payment endpoint.
type InitializePaymentRequest struct {
	FeeID  uuid.UUID `json:"fee_id"`
	Amount int64     `json:"amount"` // in kobo
}

// InitializePaymentResponse is returned to the client after the provider has
// issued an authorization handle for the charge.
type InitializePaymentResponse struct {
	Payment          *Payment `json:"payment"`
	AuthorizationURL string   `json:"authorization_url"`
	Reference        string   `json:"reference"`
}

// PaymentWebhookEvent is the parsed shape of a provider charge notification.
// Signature verification happens against the raw body, never this struct.
type PaymentWebhookEvent struct {
	Event string `json:"event"` // "charge.success" or "charge.failed"
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}
