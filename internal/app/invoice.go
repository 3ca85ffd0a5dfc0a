/**
 * @description
 * This file generates the invoice record for a confirmed payment and stamps
 * the receipt link back onto the payment. Invoice generation is best-effort
 * from the caller's perspective: the payment has already been reconciled.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/domain"
)

// GenerateInvoice creates the receipt record for a confirmed payment.
func (s *Service) GenerateInvoice(ctx context.Context, payment *domain.Payment, meta domain.LogMetadata) (*domain.Invoice, error) {
	invoiceID := uuid.New()
	invoice := &domain.Invoice{
		ID:            invoiceID,
		InvoiceNumber: invoiceNumber(invoiceID, time.Now().UTC()),
		PaymentID:     payment.ID,
		StudentID:     payment.StudentID,
		SchoolID:      payment.SchoolID,
		FeeID:         payment.FeeID,
		Amount:        payment.Amount,
		Tax:           0,
		TotalAmount:   payment.Amount,
		ReceiptURL:    fmt.Sprintf("%s/receipts/%s.pdf", s.receiptBaseURL, invoiceID),
	}
	if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	if err := s.repo.SetPaymentReceiptURL(ctx, payment.ID, invoice.ReceiptURL); err != nil {
		return nil, fmt.Errorf("stamp receipt url: %w", err)
	}
	payment.ReceiptURL = &invoice.ReceiptURL

	s.recordAudit(ctx, domain.AuditLog{
		ID:         uuid.New(),
		EntityType: domain.EntityTypeInvoice,
		EntityID:   invoice.ID,
		Action:     domain.ActionInvoiceGenerated,
		Actor:      domain.SystemActor(),
		Metadata:   meta,
		Extra:      map[string]string{"invoice_number": invoice.InvoiceNumber},
	})
	return invoice, nil
}

// invoiceNumber builds a human-readable invoice identifier.
func invoiceNumber(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), id.String()[:8])
}
