package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/internal/store"
	"github.com/kameyaw14/fee-payment-system/pkg/paystack"
)

type webhookRepoStub struct {
	store.Repository

	payment *domain.Payment
	refund  *domain.Refund
	config  *domain.ProviderConfig

	confirmCalled   bool
	rejectCalled    bool
	processedCalled bool
	failedCalled    bool
	applied         bool
}

func (s *webhookRepoStub) FindPaymentByProviderReference(ctx context.Context, reference string) (*domain.Payment, error) {
	if s.payment == nil || s.payment.Metadata.Reference != reference {
		return nil, store.ErrPaymentNotFound
	}
	return s.payment, nil
}

func (s *webhookRepoStub) FindActiveProviderConfig(ctx context.Context, schoolID uuid.UUID, provider string) (*domain.ProviderConfig, error) {
	if s.config == nil {
		return nil, store.ErrProviderNotConfigured
	}
	return s.config, nil
}

func (s *webhookRepoStub) FindRefundByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	if s.refund == nil {
		return nil, store.ErrRefundNotFound
	}
	return s.refund, nil
}

func (s *webhookRepoStub) FindApprovedRefundByPayment(ctx context.Context, paymentID uuid.UUID) (*domain.Refund, error) {
	if s.refund == nil || s.refund.Status != domain.RefundStatusApproved {
		return nil, store.ErrRefundNotFound
	}
	return s.refund, nil
}

func (s *webhookRepoStub) ConfirmPaymentAtomic(ctx context.Context, paymentID uuid.UUID, rawPayload []byte, meta domain.LogMetadata) (*domain.Payment, *domain.FeeAssignment, bool, error) {
	s.confirmCalled = true
	return s.payment, &domain.FeeAssignment{Status: domain.AssignmentStatusFullyPaid}, s.applied, nil
}

func (s *webhookRepoStub) RejectPaymentAtomic(ctx context.Context, paymentID uuid.UUID, meta domain.LogMetadata) (*domain.Payment, bool, error) {
	s.rejectCalled = true
	return s.payment, s.applied, nil
}

func (s *webhookRepoStub) MarkRefundProcessedAtomic(ctx context.Context, refundID uuid.UUID, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, bool, error) {
	s.processedCalled = true
	processed := *s.refund
	if s.applied {
		processed.Status = domain.RefundStatusProcessed
	}
	return &processed, s.applied, nil
}

func (s *webhookRepoStub) MarkRefundFailedAtomic(ctx context.Context, refundID uuid.UUID, entry domain.RefundTrailEntry, meta domain.LogMetadata) (*domain.Refund, bool, error) {
	s.failedCalled = true
	failed := *s.refund
	if s.applied {
		failed.Status = domain.RefundStatusFailed
	}
	return &failed, s.applied, nil
}

func (s *webhookRepoStub) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	return nil
}

func (s *webhookRepoStub) SetPaymentReceiptURL(ctx context.Context, paymentID uuid.UUID, receiptURL string) error {
	return nil
}

func (s *webhookRepoStub) InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	return nil
}

func (s *webhookRepoStub) InsertTransactionLog(ctx context.Context, entry *domain.TransactionLog) error {
	return nil
}

const webhookTestSecret = "sk_test_webhook"

func newWebhookFixture() *webhookRepoStub {
	schoolID := uuid.New()
	paymentID := uuid.New()
	return &webhookRepoStub{
		payment: &domain.Payment{
			ID:       paymentID,
			SchoolID: schoolID,
			Status:   domain.PaymentStatusPending,
			Metadata: domain.ProviderMetadata{Reference: "ps_ref_hook"},
		},
		refund: &domain.Refund{
			ID:        uuid.New(),
			PaymentID: paymentID,
			SchoolID:  schoolID,
			Amount:    100000,
			Status:    domain.RefundStatusApproved,
		},
		config:  &domain.ProviderConfig{SchoolID: schoolID, Provider: "paystack", SecretKey: webhookTestSecret, Active: true},
		applied: true,
	}
}

func newWebhookService(repo store.Repository, publisher *publisherStub) *Service {
	return NewService(repo, publisher, nil, "https://api.paystack.co", "https://app.example.com/callback", "https://receipts.example.com", 0, time.Hour)
}

func TestHandlePaymentWebhook_RejectsBadSignature(t *testing.T) {
	repo := newWebhookFixture()
	svc := newWebhookService(repo, &publisherStub{})

	body := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_hook"}}`)
	err := svc.HandlePaymentWebhook(context.Background(), body, "deadbeef", domain.LogMetadata{})
	if err == nil {
		t.Fatal("expected a signature verification error")
	}
	if kind := KindOf(err); kind != KindAuthentication {
		t.Fatalf("expected kind=%q, got %q", KindAuthentication, kind)
	}
	if repo.confirmCalled || repo.rejectCalled {
		t.Fatal("did not expect state changes for an unverified notification")
	}
}

func TestHandlePaymentWebhook_ConfirmsOnChargeSuccess(t *testing.T) {
	repo := newWebhookFixture()
	publisher := &publisherStub{}
	svc := newWebhookService(repo, publisher)

	body := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_hook"}}`)
	signature := paystack.ComputeSignature(webhookTestSecret, body)
	if err := svc.HandlePaymentWebhook(context.Background(), body, signature, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.confirmCalled {
		t.Fatal("expected the confirmation path to run")
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "payment.confirmed" {
		t.Fatalf("expected one payment.confirmed event, got %v", publisher.routingKeys)
	}
}

func TestHandlePaymentWebhook_RejectsOnChargeFailed(t *testing.T) {
	repo := newWebhookFixture()
	svc := newWebhookService(repo, &publisherStub{})

	body := []byte(`{"event":"charge.failed","data":{"reference":"ps_ref_hook"}}`)
	signature := paystack.ComputeSignature(webhookTestSecret, body)
	if err := svc.HandlePaymentWebhook(context.Background(), body, signature, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.rejectCalled {
		t.Fatal("expected the rejection path to run")
	}
}

func TestHandlePaymentWebhook_IgnoresUnknownEvent(t *testing.T) {
	repo := newWebhookFixture()
	svc := newWebhookService(repo, &publisherStub{})

	body := []byte(`{"event":"transfer.success","data":{"reference":"ps_ref_hook"}}`)
	signature := paystack.ComputeSignature(webhookTestSecret, body)
	if err := svc.HandlePaymentWebhook(context.Background(), body, signature, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected unknown events to be acknowledged, got %v", err)
	}
	if repo.confirmCalled || repo.rejectCalled {
		t.Fatal("did not expect state changes for an unhandled event")
	}
}

func TestHandlePaymentWebhook_UnknownReferenceIsNotFound(t *testing.T) {
	repo := newWebhookFixture()
	svc := newWebhookService(repo, &publisherStub{})

	body := []byte(`{"event":"charge.success","data":{"reference":"ps_ref_stranger"}}`)
	err := svc.HandlePaymentWebhook(context.Background(), body, "irrelevant", domain.LogMetadata{})
	if err == nil {
		t.Fatal("expected an error for an unknown charge reference")
	}
	if kind := KindOf(err); kind != KindNotFound {
		t.Fatalf("expected kind=%q, got %q", KindNotFound, kind)
	}
}

func TestHandleRefundWebhook_RejectsBadSignature(t *testing.T) {
	repo := newWebhookFixture()
	svc := newWebhookService(repo, &publisherStub{})

	body := []byte(fmt.Sprintf(`{"event":"refund.processed","data":{"refund_id":"%s"}}`, repo.refund.ID))
	err := svc.HandleRefundWebhook(context.Background(), body, "deadbeef", domain.LogMetadata{})
	if err == nil {
		t.Fatal("expected a signature verification error")
	}
	if kind := KindOf(err); kind != KindAuthentication {
		t.Fatalf("expected kind=%q, got %q", KindAuthentication, kind)
	}
	if repo.processedCalled || repo.failedCalled {
		t.Fatal("did not expect state changes for an unverified notification")
	}
}

func TestHandleRefundWebhook_ProcessedSettlesAndPublishes(t *testing.T) {
	repo := newWebhookFixture()
	publisher := &publisherStub{}
	svc := newWebhookService(repo, publisher)

	body := []byte(fmt.Sprintf(`{"event":"refund.processed","data":{"refund_id":"%s"}}`, repo.refund.ID))
	signature := paystack.ComputeSignature(webhookTestSecret, body)
	if err := svc.HandleRefundWebhook(context.Background(), body, signature, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.processedCalled {
		t.Fatal("expected the settlement path to run")
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "refund.processed" {
		t.Fatalf("expected one refund.processed event, got %v", publisher.routingKeys)
	}
}

func TestHandleRefundWebhook_ResolvesByChargeReference(t *testing.T) {
	repo := newWebhookFixture()
	publisher := &publisherStub{}
	svc := newWebhookService(repo, publisher)

	body := []byte(`{"event":"refund.failed","data":{"transaction":{"reference":"ps_ref_hook"}}}`)
	signature := paystack.ComputeSignature(webhookTestSecret, body)
	if err := svc.HandleRefundWebhook(context.Background(), body, signature, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.failedCalled {
		t.Fatal("expected the failure path to run for the resolved refund")
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "refund.failed" {
		t.Fatalf("expected one refund.failed event, got %v", publisher.routingKeys)
	}
}

func TestHandleRefundWebhook_TerminalRefundIsNoOp(t *testing.T) {
	repo := newWebhookFixture()
	repo.applied = false
	repo.refund.Status = domain.RefundStatusProcessed
	publisher := &publisherStub{}
	svc := newWebhookService(repo, publisher)

	body := []byte(fmt.Sprintf(`{"event":"refund.processed","data":{"refund_id":"%s"}}`, repo.refund.ID))
	signature := paystack.ComputeSignature(webhookTestSecret, body)
	if err := svc.HandleRefundWebhook(context.Background(), body, signature, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected a duplicate settlement to be a clean no-op, got %v", err)
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("did not expect events for a duplicate settlement, got %v", publisher.routingKeys)
	}
}
