/**
 * @description
 * This file contains the refund lifecycle logic: student-initiated refund
 * requests, admin review, and provider webhook settlement. The refundable
 * remainder rule is enforced twice: a fast check here for a friendly error,
 * and a re-check under the payment row lock inside the repository so two
 * concurrent requests cannot both fit the same remainder.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/paystack, pkg/rabbitmq: Provider refund calls and event fan-out.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/internal/store"
	"github.com/kameyaw14/fee-payment-system/pkg/paystack"
	"github.com/kameyaw14/fee-payment-system/pkg/rabbitmq"
)

// Provider refund webhook event names.
const (
	eventRefundProcessed = "refund.processed"
	eventRefundFailed    = "refund.failed"
)

// RequestRefund files a refund request against one of the student's confirmed
// payments.
func (s *Service) RequestRefund(ctx context.Context, studentID uuid.UUID, payload domain.RequestRefundPayload, meta domain.LogMetadata) (*domain.Refund, error) {
	if payload.Amount <= 0 {
		return nil, ValidationError("refund amount must be a positive number of kobo")
	}
	if payload.Reason == "" {
		return nil, ValidationError("a refund reason is required")
	}

	payment, err := s.repo.FindPaymentByID(ctx, payload.PaymentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, NotFoundError("payment not found", err)
		}
		return nil, InternalError("failed to load payment", err)
	}
	if payment.StudentID != studentID {
		return nil, AuthorizationError("payment belongs to another student")
	}
	if payment.Status != domain.PaymentStatusConfirmed {
		return nil, ConflictError("only confirmed payments can be refunded", nil)
	}

	active, err := s.repo.SumActiveRefunds(ctx, payment.ID)
	if err != nil {
		return nil, InternalError("failed to total existing refunds", err)
	}
	remainder := payment.Amount - active
	if payload.Amount > remainder {
		return nil, ValidationError(fmt.Sprintf("refund amount exceeds the refundable remainder of %d kobo", remainder))
	}

	fraudScore, err := s.scorePaymentVelocity(ctx, studentID, time.Now())
	if err != nil {
		log.Printf("level=warn component=refund_service op=request msg=\"fraud scoring failed; defaulting to zero\" student_id=%s err=%v", studentID, err)
		fraudScore = 0
	}
	meta.FraudScore = fraudScore

	refund := &domain.Refund{
		ID:         uuid.New(),
		PaymentID:  payment.ID,
		StudentID:  payment.StudentID,
		SchoolID:   payment.SchoolID,
		Amount:     payload.Amount,
		Reason:     payload.Reason,
		Status:     domain.RefundStatusRequested,
		FraudScore: fraudScore,
		AuditTrail: []domain.RefundTrailEntry{{
			Action:    domain.ActionRefundRequested,
			Timestamp: time.Now().UTC(),
			Metadata:  map[string]string{"reason": payload.Reason},
		}},
	}
	if err := s.repo.CreateRefundAtomic(ctx, refund, meta); err != nil {
		if errors.Is(err, store.ErrRefundExceedsRemainder) {
			return nil, ValidationError("refund amount exceeds the refundable remainder")
		}
		return nil, InternalError("failed to create refund", err)
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypeRefund,
		EntityID:   refund.ID,
		Action:     domain.ActionRefundRequested,
		Actor:      domain.StudentActor(studentID),
		Metadata:   meta,
	})

	return refund, nil
}

// ReviewRefund applies an admin's approve/reject decision to a requested
// refund. Approval also initiates the refund at the provider; a provider
// failure after approval leaves the refund approved for settlement retry.
func (s *Service) ReviewRefund(ctx context.Context, schoolID uuid.UUID, payload domain.ReviewRefundPayload, meta domain.LogMetadata) (*domain.Refund, error) {
	if payload.Decision != domain.RefundDecisionApproved && payload.Decision != domain.RefundDecisionRejected {
		return nil, ValidationError("decision must be approved or rejected")
	}

	refund, err := s.repo.FindRefundByID(ctx, payload.RefundID)
	if err != nil {
		if errors.Is(err, store.ErrRefundNotFound) {
			return nil, NotFoundError("refund not found", err)
		}
		return nil, InternalError("failed to load refund", err)
	}
	if refund.SchoolID != schoolID {
		return nil, AuthorizationError("refund belongs to another school")
	}

	entry := domain.RefundTrailEntry{
		Action:    domain.ActionRefundApproved,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"reviewed_by": schoolID.String()},
	}
	action := domain.ActionRefundApproved
	if payload.Decision == domain.RefundDecisionRejected {
		entry.Action = domain.ActionRefundRejected
		action = domain.ActionRefundRejected
	}

	refund, err = s.repo.ReviewRefundAtomic(ctx, refund.ID, payload.Decision, entry, meta)
	if err != nil {
		if errors.Is(err, store.ErrRefundNotReviewable) {
			return nil, ConflictError("refund is not awaiting review", err)
		}
		return nil, InternalError("failed to review refund", err)
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypeRefund,
		EntityID:   refund.ID,
		Action:     action,
		Actor:      domain.AdminActor(schoolID),
		Metadata:   meta,
	})

	if refund.Status == domain.RefundStatusApproved {
		resp, err := s.initiateProviderRefund(ctx, refund)
		switch {
		case err != nil:
			// The refund stays approved; the provider call is retried out of
			// band or settled by a later webhook.
			log.Printf("level=warn component=refund_service op=review msg=\"provider refund initiation failed\" refund_id=%s err=%v", refund.ID, err)
		case resp.Data.Status == "processed":
			// Some reversals settle synchronously; a later webhook for the
			// same refund becomes a no-op.
			refund = s.settleImmediateRefund(ctx, refund, meta)
		}
	}

	return refund, nil
}

// initiateProviderRefund asks Paystack to move the approved amount back.
func (s *Service) initiateProviderRefund(ctx context.Context, refund *domain.Refund) (*paystack.RefundResponse, error) {
	payment, err := s.repo.FindPaymentByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("load payment for refund: %w", err)
	}
	if payment.Metadata.Reference == "" {
		return nil, fmt.Errorf("payment %s has no provider reference", payment.ID)
	}

	provider, _, err := s.providerFor(ctx, refund.SchoolID)
	if err != nil {
		return nil, err
	}
	resp, err := provider.InitiateRefund(ctx, payment.Metadata.Reference, refund.Amount)
	if err != nil {
		return nil, fmt.Errorf("provider refund: %w", err)
	}
	return resp, nil
}

// settleImmediateRefund marks a refund processed when the provider reported
// the reversal settled in the initiation response itself. Failures leave the
// refund approved for webhook settlement.
func (s *Service) settleImmediateRefund(ctx context.Context, refund *domain.Refund, meta domain.LogMetadata) *domain.Refund {
	entry := domain.RefundTrailEntry{
		Action:    domain.ActionRefundProcessed,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"source": "initiation_response"},
	}
	settled, applied, err := s.repo.MarkRefundProcessedAtomic(ctx, refund.ID, entry, meta)
	if err != nil {
		log.Printf("level=warn component=refund_service op=review msg=\"immediate settlement failed; awaiting webhook\" refund_id=%s err=%v", refund.ID, err)
		return refund
	}
	if !applied {
		return settled
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypeRefund,
		EntityID:   settled.ID,
		Action:     domain.ActionRefundProcessed,
		Actor:      domain.SystemActor(),
		Metadata:   meta,
	})
	s.publishRefundEvent(ctx, rabbitmq.RoutingKeyRefundProcessed, settled)
	return settled
}

// HandleRefundWebhook applies one provider refund notification. The raw body
// is verified against the owning school's secret before any state changes.
func (s *Service) HandleRefundWebhook(ctx context.Context, rawBody []byte, signature string, meta domain.LogMetadata) error {
	var event domain.RefundWebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return ValidationError("malformed webhook payload")
	}

	refund, err := s.resolveWebhookRefund(ctx, event)
	if err != nil {
		return err
	}

	_, cfg, err := s.providerFor(ctx, refund.SchoolID)
	if err != nil {
		return err
	}
	if !paystack.VerifySignature(cfg.SecretKey, rawBody, signature) {
		return AuthenticationError("webhook signature verification failed")
	}

	entry := domain.RefundTrailEntry{
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"source": "webhook"},
	}

	switch event.Event {
	case eventRefundProcessed:
		entry.Action = domain.ActionRefundProcessed
		refund, applied, err := s.repo.MarkRefundProcessedAtomic(ctx, refund.ID, entry, meta)
		if err != nil {
			return InternalError("failed to mark refund processed", err)
		}
		if !applied {
			log.Printf("level=info component=refund_service op=webhook msg=\"refund already terminal; settlement ignored\" refund_id=%s status=%s", refund.ID, refund.Status)
			return nil
		}
		s.recordAudit(ctx, domain.AuditLog{
			ID:         uuid.New(),
			EntityType: domain.EntityTypeRefund,
			EntityID:   refund.ID,
			Action:     domain.ActionRefundProcessed,
			Actor:      domain.SystemActor(),
			Metadata:   meta,
		})
		s.publishRefundEvent(ctx, rabbitmq.RoutingKeyRefundProcessed, refund)
		return nil
	case eventRefundFailed:
		entry.Action = domain.ActionRefundFailed
		refund, applied, err := s.repo.MarkRefundFailedAtomic(ctx, refund.ID, entry, meta)
		if err != nil {
			return InternalError("failed to mark refund failed", err)
		}
		if !applied {
			log.Printf("level=info component=refund_service op=webhook msg=\"refund already terminal; failure ignored\" refund_id=%s status=%s", refund.ID, refund.Status)
			return nil
		}
		s.recordAudit(ctx, domain.AuditLog{
			ID:         uuid.New(),
			EntityType: domain.EntityTypeRefund,
			EntityID:   refund.ID,
			Action:     domain.ActionRefundFailed,
			Actor:      domain.SystemActor(),
			Metadata:   meta,
		})
		s.publishRefundEvent(ctx, rabbitmq.RoutingKeyRefundFailed, refund)
		return nil
	default:
		log.Printf("level=info component=refund_service op=webhook msg=\"ignoring unhandled event\" event=%s", event.Event)
		return nil
	}
}

// resolveWebhookRefund locates the refund a notification refers to, by refund
// id when present, otherwise through the parent charge reference.
func (s *Service) resolveWebhookRefund(ctx context.Context, event domain.RefundWebhookEvent) (*domain.Refund, error) {
	if event.Data.RefundID != uuid.Nil {
		refund, err := s.repo.FindRefundByID(ctx, event.Data.RefundID)
		if err != nil {
			if errors.Is(err, store.ErrRefundNotFound) {
				return nil, NotFoundError("no refund matches the notification", err)
			}
			return nil, InternalError("failed to load refund", err)
		}
		return refund, nil
	}

	if event.Data.Transaction.Reference == "" {
		return nil, ValidationError("webhook payload identifies no refund")
	}
	payment, err := s.repo.FindPaymentByProviderReference(ctx, event.Data.Transaction.Reference)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, NotFoundError("no payment matches the charge reference", err)
		}
		return nil, InternalError("failed to load payment", err)
	}
	refund, err := s.repo.FindApprovedRefundByPayment(ctx, payment.ID)
	if err != nil {
		if errors.Is(err, store.ErrRefundNotFound) {
			return nil, NotFoundError("no approved refund matches the notification", err)
		}
		return nil, InternalError("failed to load refund", err)
	}
	return refund, nil
}

// publishRefundEvent fans out a terminal refund to the events exchange.
// Delivery is best-effort; a failure is logged, never propagated.
func (s *Service) publishRefundEvent(ctx context.Context, routingKey string, refund *domain.Refund) {
	if s.eventProducer == nil {
		return
	}
	err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, rabbitmq.RefundEvent{
		RefundID:  refund.ID,
		PaymentID: refund.PaymentID,
		StudentID: refund.StudentID,
		SchoolID:  refund.SchoolID,
		Amount:    refund.Amount,
		Status:    refund.Status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=refund_service op=publish msg=\"event publish failed\" routing_key=%s refund_id=%s err=%v", routingKey, refund.ID, err)
		s.recordAudit(ctx, domain.AuditLog{
			ID:         uuid.New(),
			EntityType: domain.EntityTypeRefund,
			EntityID:   refund.ID,
			Action:     domain.ActionNotificationFailure,
			Actor:      domain.SystemActor(),
			Extra:      map[string]string{"routing_key": routingKey},
		})
	}
}
