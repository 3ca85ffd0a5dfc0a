/**
 * @description
 * This file implements the compliance audit sink. Audit writes are
 * best-effort: the business operation has already committed by the time the
 * audit row is written, so a failing audit insert must not unwind it.
 * Instead the failure is downgraded into an `audit_failure` transaction-log
 * row, which is the stream operators alert on.
 */

package app

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
)

// recordAudit writes one audit row. On failure it logs at WARN and appends an
// audit_failure marker to the transaction log; if even that fails, CRITICAL.
func (s *Service) recordAudit(ctx context.Context, entry domain.AuditLog) {
	if !entry.Actor.Valid() {
		log.Printf("level=error component=audit msg=\"dropping audit entry with inconsistent actor\" entity_type=%s entity_id=%s action=%s actor_type=%s", entry.EntityType, entry.EntityID, entry.Action, entry.Actor.Type)
		return
	}

	err := s.repo.InsertAuditLog(ctx, &entry)
	if err == nil {
		return
	}
	log.Printf("level=warn component=audit msg=\"audit insert failed; downgrading\" entity_type=%s entity_id=%s action=%s err=%v", entry.EntityType, entry.EntityID, entry.Action, err)

	marker := &domain.TransactionLog{
		ID:       uuid.New(),
		Action:   domain.ActionAuditFailure,
		Metadata: entry.Metadata,
	}
	if entry.EntityType == domain.EntityTypePayment {
		marker.PaymentID = &entry.EntityID
	}
	if entry.EntityType == domain.EntityTypeRefund {
		marker.RefundID = &entry.EntityID
	}
	if err := s.repo.InsertTransactionLog(ctx, marker); err != nil {
		log.Printf("CRITICAL: audit_failure marker insert failed for entity %s/%s action %s: %v", entry.EntityType, entry.EntityID, entry.Action, err)
	}
}
