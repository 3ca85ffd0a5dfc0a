/**
 * @description
 * This file contains the HTTP handlers for the fee-payment-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Every response uses the envelope {success, message, data}. In production
 * mode internal error detail is suppressed; the full chain still lands in
 * the server log.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kameyaw14/fee-payment-system/internal/app"
	"github.com/kameyaw14/fee-payment-system/internal/domain"
	"github.com/kameyaw14/fee-payment-system/pkg/paystack"
)

// webhookBodyLimit bounds provider notification payloads.
const webhookBodyLimit = 1 << 20

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service    *app.Service
	production bool
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service, production bool) *PaymentHandlers {
	return &PaymentHandlers{service: service, production: production}
}

type responseEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(responseEnvelope{Success: status < 400, Message: message, Data: data}); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}

// writeServiceError maps a service-layer error kind to an HTTP status.
func (h *PaymentHandlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	log.Printf("level=warn component=api endpoint=%s outcome=failed err=%v", endpoint, err)

	var limited *app.RateLimitedError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		h.writeJSON(w, http.StatusTooManyRequests, limited.Message, nil)
		return
	}

	status := http.StatusInternalServerError
	switch app.KindOf(err) {
	case app.KindValidation:
		status = http.StatusBadRequest
	case app.KindNotFound:
		status = http.StatusNotFound
	case app.KindAuthentication:
		status = http.StatusUnauthorized
	case app.KindAuthorization:
		status = http.StatusForbidden
	case app.KindConflict:
		status = http.StatusConflict
	case app.KindConfiguration:
		status = http.StatusBadRequest
	case app.KindProvider:
		status = http.StatusBadGateway
	}

	message := err.Error()
	if h.production && status >= 500 {
		message = "Internal server error"
	}
	var appErr *app.Error
	if h.production && errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, status, message, nil)
}

func logMetadataFrom(r *http.Request) domain.LogMetadata {
	return domain.LogMetadata{
		IP:         clientIP(r),
		DeviceInfo: r.UserAgent(),
		DeviceID:   r.Header.Get("X-Device-Id"),
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// InitializePaymentHandler handles student requests to start a fee payment.
func (h *PaymentHandlers) InitializePaymentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	var req domain.InitializePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	resp, err := h.service.InitializePayment(r.Context(), claims.SubjectID, req, logMetadataFrom(r))
	if err != nil {
		h.writeServiceError(w, "initialize_payment", err)
		return
	}

	log.Printf("level=info component=api endpoint=initialize_payment outcome=accepted student_id=%s payment_id=%s amount=%d", claims.SubjectID, resp.Payment.ID, resp.Payment.Amount)
	h.writeJSON(w, http.StatusCreated, "Payment initialized", resp)
}

// VerifyPaymentHandler re-queries the provider for a payment still pending.
func (h *PaymentHandlers) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid payment id", nil)
		return
	}

	payment, err := h.service.VerifyPayment(r.Context(), claims.SubjectID, paymentID, logMetadataFrom(r))
	if err != nil {
		h.writeServiceError(w, "verify_payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Payment verified", payment)
}

// PaymentWebhookHandler receives provider charge notifications. Always
// acknowledged with 200 on success so the provider stops retrying; signature
// failures get 401.
func (h *PaymentHandlers) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Unable to read request body", nil)
		return
	}

	signature := r.Header.Get(paystack.SignatureHeader)
	if err := h.service.HandlePaymentWebhook(r.Context(), rawBody, signature, logMetadataFrom(r)); err != nil {
		h.writeServiceError(w, "payment_webhook", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Webhook processed", nil)
}

// RefundWebhookHandler receives provider refund notifications.
func (h *PaymentHandlers) RefundWebhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Unable to read request body", nil)
		return
	}

	signature := r.Header.Get(paystack.SignatureHeader)
	if err := h.service.HandleRefundWebhook(r.Context(), rawBody, signature, logMetadataFrom(r)); err != nil {
		h.writeServiceError(w, "refund_webhook", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Webhook processed", nil)
}

// RequestRefundHandler handles student refund requests.
func (h *PaymentHandlers) RequestRefundHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	var payload domain.RequestRefundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	refund, err := h.service.RequestRefund(r.Context(), claims.SubjectID, payload, logMetadataFrom(r))
	if err != nil {
		h.writeServiceError(w, "request_refund", err)
		return
	}

	log.Printf("level=info component=api endpoint=request_refund outcome=accepted student_id=%s refund_id=%s amount=%d", claims.SubjectID, refund.ID, refund.Amount)
	h.writeJSON(w, http.StatusCreated, "Refund requested", refund)
}

// ReviewRefundHandler handles admin approve/reject decisions.
func (h *PaymentHandlers) ReviewRefundHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	var payload domain.ReviewRefundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	refund, err := h.service.ReviewRefund(r.Context(), claims.SubjectID, payload, logMetadataFrom(r))
	if err != nil {
		h.writeServiceError(w, "review_refund", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Refund reviewed", refund)
}

// CreateFeeHandler handles admin fee creation.
func (h *PaymentHandlers) CreateFeeHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	var payload domain.CreateFeePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	fee, err := h.service.CreateFee(r.Context(), claims.SubjectID, payload, logMetadataFrom(r))
	if err != nil {
		h.writeServiceError(w, "create_fee", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, "Fee created", fee)
}

// DeleteFeeHandler handles admin fee deletion.
func (h *PaymentHandlers) DeleteFeeHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	feeID, err := uuid.Parse(chi.URLParam(r, "feeID"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid fee id", nil)
		return
	}

	if err := h.service.DeleteFee(r.Context(), claims.SubjectID, feeID, logMetadataFrom(r)); err != nil {
		h.writeServiceError(w, "delete_fee", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Fee deleted", nil)
}

// CreateFeeAssignmentHandler handles admin fee assignment (single student or cohort).
func (h *PaymentHandlers) CreateFeeAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	var payload domain.CreateFeeAssignmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeJSON(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	assignments, err := h.service.CreateFeeAssignment(r.Context(), claims.SubjectID, payload, logMetadataFrom(r))
	if err != nil {
		h.writeServiceError(w, "create_fee_assignment", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_fee_assignment outcome=accepted school_id=%s fee_id=%s assignments=%d", claims.SubjectID, payload.FeeID, len(assignments))
	h.writeJSON(w, http.StatusCreated, "Fee assigned", assignments)
}

// ListFeeAssignmentsHandler returns the calling student's fee obligations.
func (h *PaymentHandlers) ListFeeAssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	assignments, err := h.service.ListStudentFeeAssignments(r.Context(), claims.SubjectID)
	if err != nil {
		h.writeServiceError(w, "list_fee_assignments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Fee assignments", assignments)
}

// ListAuditLogsHandler returns the calling school's audit history.
func (h *PaymentHandlers) ListAuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetAuthClaims(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusInternalServerError, "Could not get caller from context", nil)
		return
	}

	filter := domain.AuditLogFilter{
		EntityType: r.URL.Query().Get("entity_type"),
		Action:     r.URL.Query().Get("action"),
		ActorType:  r.URL.Query().Get("actor_type"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	logs, err := h.service.ListAuditLogs(r.Context(), claims.SubjectID, filter)
	if err != nil {
		h.writeServiceError(w, "list_audit_logs", err)
		return
	}
	h.writeJSON(w, http.StatusOK, "Audit logs", logs)
}
