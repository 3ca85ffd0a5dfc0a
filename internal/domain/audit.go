/**
 * @description
 * This file defines the two append-only log streams and the Actor tagged
 * union used for compliance-grade attribution.
 *
 * TransactionLog is operational telemetry: one row per state-changing event,
 * queryable by trailing time window for velocity/fraud heuristics.
 * AuditLog is the compliance record: every attributable action, with the
 * acting party expressed as a tagged union so an inconsistent (kind, id)
 * pair cannot be represented.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Actor kinds.
const (
	ActorTypeStudent = "student"
	ActorTypeAdmin   = "admin"
	ActorTypeSystem  = "system"
)

// Log action tags shared by both streams.
const (
	ActionPaymentInitiated     = "payment_initiated"
	ActionPaymentConfirmed     = "payment_confirmed"
	ActionPaymentRejected      = "payment_rejected"
	ActionPaymentExpired       = "payment_expired"
	ActionInvoiceGenerated     = "invoice_generated"
	ActionRefundRequested      = "refund_requested"
	ActionRefundApproved       = "refund_approved"
	ActionRefundRejected       = "refund_rejected"
	ActionRefundProcessed      = "refund_processed"
	ActionRefundFailed         = "refund_failed"
	ActionFeeCreated           = "fee_created"
	ActionFeeAssigned          = "fee_assigned"
	ActionFeeDeleted           = "fee_deleted"
	ActionFeeAssignmentUpdated = "fee_assignment_updated"
	ActionAuditFailure         = "audit_failure"
	ActionNotificationFailure  = "notification_failure"
)

// Audited entity types.
const (
	EntityTypePayment       = "Payment"
	EntityTypeRefund        = "Refund"
	EntityTypeInvoice       = "Invoice"
	EntityTypeFee           = "Fee"
	EntityTypeFeeAssignment = "FeeAssignment"
)

// Actor is a tagged union: a student, a school admin, or the system itself.
// ID is nil exactly when Type is system.
type Actor struct {
	Type string     `json:"type"`
	ID   *uuid.UUID `json:"id,omitempty"`
}

// StudentActor attributes an action to a student.
func StudentActor(id uuid.UUID) Actor { return Actor{Type: ActorTypeStudent, ID: &id} }

// AdminActor attributes an action to a school admin.
func AdminActor(schoolID uuid.UUID) Actor { return Actor{Type: ActorTypeAdmin, ID: &schoolID} }

// SystemActor attributes an action to the system (no actor entity).
func SystemActor() Actor { return Actor{Type: ActorTypeSystem} }

// Valid reports whether the (type, id) pair is internally consistent.
func (a Actor) Valid() bool {
	switch a.Type {
	case ActorTypeStudent, ActorTypeAdmin:
		return a.ID != nil
	case ActorTypeSystem:
		return a.ID == nil
	}
	return false
}

// LogMetadata is the request telemetry attached to log rows.
type LogMetadata struct {
	IP         string `json:"ip,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	FraudScore int    `json:"fraud_score,omitempty"`
}

// TransactionLog is one append-only operational telemetry row. Rows are never
// updated or deleted.
type TransactionLog struct {
	ID        uuid.UUID   `json:"id"`
	PaymentID *uuid.UUID  `json:"payment_id,omitempty"`
	RefundID  *uuid.UUID  `json:"refund_id,omitempty"`
	StudentID *uuid.UUID  `json:"student_id,omitempty"`
	SchoolID  *uuid.UUID  `json:"school_id,omitempty"`
	Action    string      `json:"action"`
	Metadata  LogMetadata `json:"metadata"`
	CreatedAt time.Time   `json:"created_at"`
}

// AuditLog is one append-only compliance row. Rows are never updated or
// deleted.
type AuditLog struct {
	ID         uuid.UUID         `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   uuid.UUID         `json:"entity_id"`
	Action     string            `json:"action"`
	Actor      Actor             `json:"actor"`
	Metadata   LogMetadata       `json:"metadata"`
	Extra      map[string]string `json:"extra,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// AuditLogFilter narrows audit-log listings for a school.
type AuditLogFilter struct {
	EntityType string
	Action     string
	ActorType  string
	Limit      int
}
