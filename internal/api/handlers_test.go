package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kameyaw14/fee-payment-system/internal/app"
)

func TestWriteServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation maps to 400", err: app.ValidationError("bad input"), wantStatus: http.StatusBadRequest},
		{name: "not found maps to 404", err: app.NotFoundError("missing", nil), wantStatus: http.StatusNotFound},
		{name: "authentication maps to 401", err: app.AuthenticationError("bad signature"), wantStatus: http.StatusUnauthorized},
		{name: "authorization maps to 403", err: app.AuthorizationError("not yours"), wantStatus: http.StatusForbidden},
		{name: "conflict maps to 409", err: app.ConflictError("already terminal", nil), wantStatus: http.StatusConflict},
		{name: "configuration maps to 400", err: app.ConfigurationError("no provider", nil), wantStatus: http.StatusBadRequest},
		{name: "provider maps to 502", err: app.ProviderError("upstream down", nil), wantStatus: http.StatusBadGateway},
		{name: "internal maps to 500", err: app.InternalError("boom", errors.New("pq: broken")), wantStatus: http.StatusInternalServerError},
		{name: "unknown error maps to 500", err: errors.New("stray"), wantStatus: http.StatusInternalServerError},
	}

	h := NewPaymentHandlers(nil, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, "test", tt.err)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var envelope responseEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
				t.Fatalf("failed to decode response envelope: %v", err)
			}
			if envelope.Success {
				t.Fatal("expected success=false on an error response")
			}
		})
	}
}

func TestWriteServiceError_RateLimitedSetsRetryAfter(t *testing.T) {
	h := NewPaymentHandlers(nil, false)
	rec := httptest.NewRecorder()

	h.writeServiceError(rec, "test", &app.RateLimitedError{Message: "slow down", RetryAfterSeconds: 30})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After=30, got %q", got)
	}
}

func TestWriteServiceError_ProductionHidesInternalDetail(t *testing.T) {
	h := NewPaymentHandlers(nil, true)
	rec := httptest.NewRecorder()

	h.writeServiceError(rec, "test", errors.New("pq: connection reset by peer"))
	var envelope responseEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	if envelope.Message != "Internal server error" {
		t.Fatalf("expected the internal detail to be hidden, got %q", envelope.Message)
	}
}

func TestWriteServiceError_ProductionKeepsClientSafeMessage(t *testing.T) {
	h := NewPaymentHandlers(nil, true)
	rec := httptest.NewRecorder()

	h.writeServiceError(rec, "test", app.NotFoundError("payment not found", errors.New("pq: no rows")))
	var envelope responseEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	if envelope.Message != "payment not found" {
		t.Fatalf("expected the client-safe message without the cause, got %q", envelope.Message)
	}
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:52412"
	req.Header.Set("X-Forwarded-For", "196.11.240.5")

	if got := clientIP(req); got != "196.11.240.5" {
		t.Fatalf("expected the forwarded address, got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req); got != "10.0.0.1:52412" {
		t.Fatalf("expected the remote address fallback, got %q", got)
	}
}
