/**
 * @description
 * This file sets up the HTTP router for the fee-payment-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware. Webhook endpoints are unauthenticated at the transport
 * level; they authenticate by payload signature inside the service.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PaymentRoutes creates and returns a new router for the fee payment service.
func PaymentRoutes(h *PaymentHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Provider webhooks authenticate by signature, not bearer token.
	r.Post("/webhooks/paystack/payments", h.PaymentWebhookHandler)
	r.Post("/webhooks/paystack/refunds", h.RefundWebhookHandler)

	// Student endpoints.
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))
		r.Use(RequireRole(RoleStudent))

		r.Post("/payments/initialize", h.InitializePaymentHandler)
		r.Get("/payments/{paymentID}/verify", h.VerifyPaymentHandler)
		r.Post("/refunds", h.RequestRefundHandler)
		r.Get("/fees/assignments", h.ListFeeAssignmentsHandler)
	})

	// School admin endpoints.
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))
		r.Use(RequireRole(RoleSchool))

		r.Post("/fees", h.CreateFeeHandler)
		r.Delete("/fees/{feeID}", h.DeleteFeeHandler)
		r.Post("/fees/assignments", h.CreateFeeAssignmentHandler)
		r.Post("/refunds/review", h.ReviewRefundHandler)
		r.Get("/audit-logs", h.ListAuditLogsHandler)
	})

	return r
}
