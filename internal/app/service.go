/**
 * @description
 * This file contains the core business logic for the fee-payment-service. The
 * `Service` struct orchestrates the payment lifecycle, coordinating between
 * the database repository, the Paystack API client, and the message broker.
 *
 * Key features:
 * - Implements payment initialization, webhook reconciliation, and verification.
 * - Applies provider notifications exactly once: the repository serializes
 *   concurrent deliveries under row locks and reports whether the transition
 *   was applied, so duplicate webhooks become observable no-ops.
 * - Publishes lifecycle events to RabbitMQ for asynchronous processing by
 *   notification and reporting services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/paystack, pkg/rabbitmq: For external service communication.
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

// Provider webhook event names.
const (
	eventChargeSuccess = "charge.success"
	eventChargeFailed  = "charge.failed"
)

// ProviderClient is the slice of the Paystack client the service depends on.
type ProviderClient interface {
	InitializeCharge(ctx context.Context, req paystack.InitializeChargeRequest) (*paystack.InitializeChargeResponse, error)
	VerifyCharge(ctx context.Context, reference string) (*paystack.VerifyChargeResponse, error)
	InitiateRefund(ctx context.Context, reference string, amount int64) (*paystack.RefundResponse, error)
}

// RateLimiter is the distributed limiter consulted before creating a payment.
type RateLimiter interface {
	ConsumePaymentInitiation(ctx context.Context, studentID uuid.UUID, limit int) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for fee payments.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	rateLimiter   RateLimiter

	// newProviderClient builds a provider client from one school's secret key.
	newProviderClient func(secretKey string) ProviderClient

	callbackURL      string
	receiptBaseURL   string
	paymentRateLimit int
	paymentExpiryTTL time.Duration
}

// NewService creates a new fee payment service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, limiter RateLimiter, paystackBaseURL, callbackURL, receiptBaseURL string, paymentRateLimit int, paymentExpiryTTL time.Duration) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		rateLimiter:   limiter,
		newProviderClient: func(secretKey string) ProviderClient {
			return paystack.NewClient(paystackBaseURL, secretKey)
		},
		callbackURL:      callbackURL,
		receiptBaseURL:   receiptBaseURL,
		paymentRateLimit: paymentRateLimit,
		paymentExpiryTTL: paymentExpiryTTL,
	}
}

// providerFor resolves a school's active Paystack credentials and builds a
// client for them. Credentials are read per operation, never cached.
func (s *Service) providerFor(ctx context.Context, schoolID uuid.UUID) (ProviderClient, *domain.ProviderConfig, error) {
	cfg, err := s.repo.FindActiveProviderConfig(ctx, schoolID, "paystack")
	if err != nil {
		if errors.Is(err, store.ErrProviderNotConfigured) {
			return nil, nil, ConfigurationError("payment provider is not configured for this school", err)
		}
		return nil, nil, InternalError("failed to resolve provider configuration", err)
	}
	return s.newProviderClient(cfg.SecretKey), cfg, nil
}

// InitializePayment creates a payment record for a student's fee assignment
// and asks the provider for an authorization URL.
func (s *Service) InitializePayment(ctx context.Context, studentID uuid.UUID, req domain.InitializePaymentRequest, meta domain.LogMetadata) (*domain.InitializePaymentResponse, error) {
	if req.Amount <= 0 {
		return nil, ValidationError("amount must be a positive number of kobo")
	}

	if err := s.consumePaymentRateLimit(ctx, studentID); err != nil {
		return nil, err
	}

	student, err := s.repo.FindStudentByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, store.ErrStudentNotFound) {
			return nil, NotFoundError("student not found", err)
		}
		return nil, InternalError("failed to load student", err)
	}

	fee, err := s.repo.FindFeeByID(ctx, req.FeeID)
	if err != nil {
		if errors.Is(err, store.ErrFeeNotFound) {
			return nil, NotFoundError("fee not found", err)
		}
		return nil, InternalError("failed to load fee", err)
	}
	if fee.SchoolID != student.SchoolID {
		return nil, AuthorizationError("fee does not belong to the student's school")
	}

	assignment, err := s.repo.FindAssignmentByFeeAndStudent(ctx, fee.ID, student.ID)
	if err != nil {
		if errors.Is(err, store.ErrAssignmentNotFound) {
			return nil, NotFoundError("fee is not assigned to this student", err)
		}
		return nil, InternalError("failed to load fee assignment", err)
	}

	remaining := assignment.AmountDue - assignment.AmountPaid
	if !fee.AllowPartialPayment && req.Amount < remaining {
		return nil, ValidationError("this fee does not allow partial payment")
	}

	fraudScore, err := s.scorePaymentVelocity(ctx, student.ID, time.Now())
	if err != nil {
		log.Printf("level=warn component=payment_service op=initialize msg=\"fraud scoring failed; defaulting to zero\" student_id=%s err=%v", student.ID, err)
		fraudScore = 0
	}
	meta.FraudScore = fraudScore

	provider, _, err := s.providerFor(ctx, student.SchoolID)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:         uuid.New(),
		StudentID:  student.ID,
		SchoolID:   student.SchoolID,
		FeeID:      fee.ID,
		Amount:     req.Amount,
		Provider:   "paystack",
		Status:     domain.PaymentStatusInitiated,
		FraudScore: fraudScore,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, InternalError("failed to create payment record", err)
	}

	charge, err := provider.InitializeCharge(ctx, paystack.InitializeChargeRequest{
		Email:       student.Email,
		Amount:      req.Amount,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, ProviderError("payment provider rejected the charge", err)
	}
	if err := s.repo.SetPaymentProviderReference(ctx, payment.ID, charge.Data.Reference); err != nil {
		return nil, InternalError("failed to record provider reference", err)
	}
	payment.Status = domain.PaymentStatusPending
	payment.Metadata.Reference = charge.Data.Reference

	// The initiation log is part of the operation's contract; its failure
	// fails the operation.
	if err := s.repo.InsertTransactionLog(ctx, &domain.TransactionLog{
		ID:        uuid.New(),
		PaymentID: &payment.ID,
		StudentID: &payment.StudentID,
		SchoolID:  &payment.SchoolID,
		Action:    domain.ActionPaymentInitiated,
		Metadata:  meta,
	}); err != nil {
		return nil, InternalError("failed to record payment initiation", err)
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypePayment,
		EntityID:   payment.ID,
		Action:     domain.ActionPaymentInitiated,
		Actor:      domain.StudentActor(student.ID),
		Metadata:   meta,
	})

	return &domain.InitializePaymentResponse{
		Payment:          payment,
		AuthorizationURL: charge.Data.AuthorizationURL,
		Reference:        charge.Data.Reference,
	}, nil
}

// HandlePaymentWebhook applies one provider charge notification. The raw body
// is verified against the signing school's secret before any state changes.
func (s *Service) HandlePaymentWebhook(ctx context.Context, rawBody []byte, signature string, meta domain.LogMetadata) error {
	var event domain.PaymentWebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return ValidationError("malformed webhook payload")
	}
	if event.Data.Reference == "" {
		return ValidationError("webhook payload is missing a charge reference")
	}

	payment, err := s.repo.FindPaymentByProviderReference(ctx, event.Data.Reference)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return NotFoundError("no payment matches the charge reference", err)
		}
		return InternalError("failed to load payment", err)
	}

	_, cfg, err := s.providerFor(ctx, payment.SchoolID)
	if err != nil {
		return err
	}
	if !paystack.VerifySignature(cfg.SecretKey, rawBody, signature) {
		return AuthenticationError("webhook signature verification failed")
	}

	switch event.Event {
	case eventChargeSuccess:
		return s.ConfirmPayment(ctx, payment.ID, rawBody, meta)
	case eventChargeFailed:
		return s.RejectPayment(ctx, payment.ID, meta)
	default:
		log.Printf("level=info component=payment_service op=webhook msg=\"ignoring unhandled event\" event=%s reference=%s", event.Event, event.Data.Reference)
		return nil
	}
}

// ConfirmPayment applies a provider success notification. A payment already
// confirmed is a clean no-op; any other terminal state is a conflict.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID uuid.UUID, rawPayload []byte, meta domain.LogMetadata) error {
	payment, assignment, applied, err := s.repo.ConfirmPaymentAtomic(ctx, paymentID, rawPayload, meta)
	if err != nil {
		if errors.Is(err, store.ErrAssignmentNotFound) {
			return ConflictError("payment has no matching fee assignment", err)
		}
		if errors.Is(err, store.ErrPaymentNotFound) {
			return NotFoundError("payment not found", err)
		}
		return InternalError("failed to confirm payment", err)
	}
	if !applied {
		log.Printf("level=info component=payment_service op=confirm msg=\"duplicate confirmation ignored\" payment_id=%s", payment.ID)
		return nil
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypePayment,
		EntityID:   payment.ID,
		Action:     domain.ActionPaymentConfirmed,
		Actor:      domain.SystemActor(),
		Metadata:   meta,
		Extra: map[string]string{
			"assignment_status": assignment.Status,
		},
	})

	if _, err := s.GenerateInvoice(ctx, payment, meta); err != nil {
		log.Printf("level=warn component=payment_service op=confirm msg=\"invoice generation failed\" payment_id=%s err=%v", payment.ID, err)
	}

	s.publishPaymentEvent(ctx, rabbitmq.RoutingKeyPaymentConfirmed, payment)
	return nil
}

// RejectPayment applies a provider failure notification. Terminal payments are
// a clean no-op.
func (s *Service) RejectPayment(ctx context.Context, paymentID uuid.UUID, meta domain.LogMetadata) error {
	payment, applied, err := s.repo.RejectPaymentAtomic(ctx, paymentID, meta)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return NotFoundError("payment not found", err)
		}
		return InternalError("failed to reject payment", err)
	}
	if !applied {
		log.Printf("level=info component=payment_service op=reject msg=\"payment already terminal; rejection ignored\" payment_id=%s status=%s", payment.ID, payment.Status)
		return nil
	}

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypePayment,
		EntityID:   payment.ID,
		Action:     domain.ActionPaymentRejected,
		Actor:      domain.SystemActor(),
		Metadata:   meta,
	})

	s.publishPaymentEvent(ctx, rabbitmq.RoutingKeyPaymentRejected, payment)
	return nil
}

// VerifyPayment re-queries the provider for a payment still awaiting its
// webhook and reconciles from the verify response. Terminal payments are
// returned as-is.
func (s *Service) VerifyPayment(ctx context.Context, studentID, paymentID uuid.UUID, meta domain.LogMetadata) (*domain.Payment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			return nil, NotFoundError("payment not found", err)
		}
		return nil, InternalError("failed to load payment", err)
	}
	if payment.StudentID != studentID {
		return nil, AuthorizationError("payment belongs to another student")
	}
	if payment.IsTerminal() {
		return payment, nil
	}
	if payment.Metadata.Reference == "" {
		return nil, ConflictError("payment has no provider reference to verify", nil)
	}

	provider, _, err := s.providerFor(ctx, payment.SchoolID)
	if err != nil {
		return nil, err
	}
	verified, err := provider.VerifyCharge(ctx, payment.Metadata.Reference)
	if err != nil {
		return nil, ProviderError("provider verification failed", err)
	}

	switch verified.Data.Status {
	case "success":
		rawPayload, marshalErr := json.Marshal(verified)
		if marshalErr != nil {
			rawPayload = nil
		}
		if err := s.ConfirmPayment(ctx, payment.ID, rawPayload, meta); err != nil {
			return nil, err
		}
	case "failed", "abandoned":
		if err := s.RejectPayment(ctx, payment.ID, meta); err != nil {
			return nil, err
		}
	default:
		// Still pending at the provider; nothing to reconcile yet.
		return payment, nil
	}

	return s.repo.FindPaymentByID(ctx, payment.ID)
}

// ExpireStalePayments marks payments that never received a provider verdict
// within the expiry window as expired, and returns how many were flipped.
func (s *Service) ExpireStalePayments(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.paymentExpiryTTL)
	expired, err := s.repo.ExpireStalePayments(ctx, cutoff)
	if err != nil {
		return 0, InternalError("failed to expire stale payments", err)
	}
	for i := range expired {
		s.recordAudit(ctx, domain.AuditLog{
			ID:         uuid.New(),
			EntityType: domain.EntityTypePayment,
			EntityID:   expired[i].ID,
			Action:     domain.ActionPaymentExpired,
			Actor:      domain.SystemActor(),
		})
	}
	return len(expired), nil
}

// consumePaymentRateLimit enforces the per-student initiation ceiling. A
// limiter outage fails open.
func (s *Service) consumePaymentRateLimit(ctx context.Context, studentID uuid.UUID) error {
	if s.rateLimiter == nil || s.paymentRateLimit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumePaymentInitiation(ctx, studentID, s.paymentRateLimit)
	if err != nil {
		log.Printf("level=warn component=payment_service op=rate_limit msg=\"limiter unavailable; allowing request\" student_id=%s err=%v", studentID, err)
		return nil
	}
	if count > s.paymentRateLimit {
		return &RateLimitedError{
			Message:           fmt.Sprintf("too many payment attempts; retry in %d seconds", retryAfter),
			RetryAfterSeconds: retryAfter,
		}
	}
	return nil
}

// publishPaymentEvent fans out a terminal payment to the events exchange.
// Delivery is best-effort; a failure is logged, never propagated.
func (s *Service) publishPaymentEvent(ctx context.Context, routingKey string, payment *domain.Payment) {
	if s.eventProducer == nil {
		return
	}
	err := s.eventProducer.Publish(ctx, rabbitmq.EventsExchange, routingKey, rabbitmq.PaymentEvent{
		PaymentID: payment.ID,
		StudentID: payment.StudentID,
		SchoolID:  payment.SchoolID,
		FeeID:     payment.FeeID,
		Amount:    payment.Amount,
		Status:    payment.Status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=payment_service op=publish msg=\"event publish failed\" routing_key=%s payment_id=%s err=%v", routingKey, payment.ID, err)
		s.recordAudit(ctx, domain.AuditLog{
			ID:         uuid.New(),
			EntityType: domain.EntityTypePayment,
			EntityID:   payment.ID,
			Action:     domain.ActionNotificationFailure,
			Actor:      domain.SystemActor(),
			Extra:      map[string]string{"routing_key": routingKey},
		})
	}
}
