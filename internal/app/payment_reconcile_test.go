package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/internal/store"
)

type reconcileRepoStub struct {
	store.Repository

	payment    *domain.Payment
	assignment *domain.FeeAssignment
	applied    bool
	confirmErr error

	confirmCalled   bool
	invoiceCreated  bool
	receiptStamped  bool
	auditEntries    []domain.AuditLog
	transactionLogs []domain.TransactionLog
}

func (s *reconcileRepoStub) ConfirmPaymentAtomic(ctx context.Context, paymentID uuid.UUID, rawPayload []byte, meta domain.LogMetadata) (*domain.Payment, *domain.FeeAssignment, bool, error) {
	s.confirmCalled = true
	if s.confirmErr != nil {
		return nil, nil, false, s.confirmErr
	}
	return s.payment, s.assignment, s.applied, nil
}

func (s *reconcileRepoStub) RejectPaymentAtomic(ctx context.Context, paymentID uuid.UUID, meta domain.LogMetadata) (*domain.Payment, bool, error) {
	return s.payment, s.applied, nil
}

func (s *reconcileRepoStub) CreateInvoice(ctx context.Context, invoice *domain.Invoice) error {
	s.invoiceCreated = true
	return nil
}

func (s *reconcileRepoStub) SetPaymentReceiptURL(ctx context.Context, paymentID uuid.UUID, receiptURL string) error {
	s.receiptStamped = true
	return nil
}

func (s *reconcileRepoStub) InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	s.auditEntries = append(s.auditEntries, *entry)
	return nil
}

func (s *reconcileRepoStub) InsertTransactionLog(ctx context.Context, entry *domain.TransactionLog) error {
	s.transactionLogs = append(s.transactionLogs, *entry)
	return nil
}

type publisherStub struct {
	routingKeys []string
	publishErr  error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *publisherStub) Close() {}

func newReconcileService(repo store.Repository, publisher *publisherStub) *Service {
	return NewService(repo, publisher, nil, "https://api.paystack.co", "https://app.example.com/callback", "https://receipts.example.com", 0, time.Hour)
}

func TestConfirmPayment_AppliesBalanceAndPublishes(t *testing.T) {
	paymentID := uuid.New()
	repo := &reconcileRepoStub{
		payment: &domain.Payment{
			ID:        paymentID,
			StudentID: uuid.New(),
			SchoolID:  uuid.New(),
			FeeID:     uuid.New(),
			Amount:    250000,
			Status:    domain.PaymentStatusConfirmed,
		},
		assignment: &domain.FeeAssignment{
			AmountDue:  500000,
			AmountPaid: 250000,
			Status:     domain.AssignmentStatusPartiallyPaid,
		},
		applied: true,
	}
	publisher := &publisherStub{}
	svc := newReconcileService(repo, publisher)

	if err := svc.ConfirmPayment(context.Background(), paymentID, []byte(`{"event":"charge.success"}`), domain.LogMetadata{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.confirmCalled {
		t.Fatal("expected the atomic confirmation to run")
	}
	if !repo.invoiceCreated || !repo.receiptStamped {
		t.Fatal("expected an invoice to be generated for the confirmed payment")
	}
	if len(publisher.routingKeys) != 1 || publisher.routingKeys[0] != "payment.confirmed" {
		t.Fatalf("expected one payment.confirmed event, got %v", publisher.routingKeys)
	}

	var confirmedAudit *domain.AuditLog
	for i := range repo.auditEntries {
		if repo.auditEntries[i].Action == domain.ActionPaymentConfirmed {
			confirmedAudit = &repo.auditEntries[i]
		}
	}
	if confirmedAudit == nil {
		t.Fatal("expected a payment_confirmed audit entry")
	}
	if confirmedAudit.Actor.Type != domain.ActorTypeSystem {
		t.Fatalf("expected system actor, got %q", confirmedAudit.Actor.Type)
	}
	if got := confirmedAudit.Extra["assignment_status"]; got != domain.AssignmentStatusPartiallyPaid {
		t.Fatalf("expected assignment_status=%q in audit extra, got %q", domain.AssignmentStatusPartiallyPaid, got)
	}
}

func TestConfirmPayment_DuplicateNotificationIsNoOp(t *testing.T) {
	paymentID := uuid.New()
	repo := &reconcileRepoStub{
		payment: &domain.Payment{
			ID:     paymentID,
			Status: domain.PaymentStatusConfirmed,
		},
		applied: false,
	}
	publisher := &publisherStub{}
	svc := newReconcileService(repo, publisher)

	if err := svc.ConfirmPayment(context.Background(), paymentID, nil, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected duplicate confirmation to be a clean no-op, got %v", err)
	}
	if repo.invoiceCreated {
		t.Fatal("did not expect a second invoice for a duplicate notification")
	}
	if len(repo.auditEntries) != 0 {
		t.Fatalf("did not expect audit entries for a duplicate notification, got %d", len(repo.auditEntries))
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("did not expect events for a duplicate notification, got %v", publisher.routingKeys)
	}
}

func TestConfirmPayment_MissingAssignmentIsConflict(t *testing.T) {
	repo := &reconcileRepoStub{confirmErr: store.ErrAssignmentNotFound}
	svc := newReconcileService(repo, &publisherStub{})

	err := svc.ConfirmPayment(context.Background(), uuid.New(), nil, domain.LogMetadata{})
	if err == nil {
		t.Fatal("expected an error when the fee assignment is missing")
	}
	if kind := KindOf(err); kind != KindConflict {
		t.Fatalf("expected kind=%q, got %q", KindConflict, kind)
	}
}

func TestRejectPayment_TerminalPaymentIsNoOp(t *testing.T) {
	paymentID := uuid.New()
	repo := &reconcileRepoStub{
		payment: &domain.Payment{ID: paymentID, Status: domain.PaymentStatusConfirmed},
		applied: false,
	}
	publisher := &publisherStub{}
	svc := newReconcileService(repo, publisher)

	if err := svc.RejectPayment(context.Background(), paymentID, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected rejection of a terminal payment to be a clean no-op, got %v", err)
	}
	if len(publisher.routingKeys) != 0 {
		t.Fatalf("did not expect events for an ignored rejection, got %v", publisher.routingKeys)
	}
}

func TestConfirmPayment_PublishFailureRecordsNotificationFailure(t *testing.T) {
	paymentID := uuid.New()
	repo := &reconcileRepoStub{
		payment:    &domain.Payment{ID: paymentID, Status: domain.PaymentStatusConfirmed},
		assignment: &domain.FeeAssignment{Status: domain.AssignmentStatusFullyPaid},
		applied:    true,
	}
	publisher := &publisherStub{publishErr: context.DeadlineExceeded}
	svc := newReconcileService(repo, publisher)

	if err := svc.ConfirmPayment(context.Background(), paymentID, nil, domain.LogMetadata{}); err != nil {
		t.Fatalf("expected a publish failure to stay best-effort, got %v", err)
	}

	found := false
	for _, entry := range repo.auditEntries {
		if entry.Action == domain.ActionNotificationFailure {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a notification_failure audit entry after a failed publish")
	}
}
