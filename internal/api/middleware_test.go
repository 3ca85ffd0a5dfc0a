package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testJWTSecret = "test-secret"

func signedToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func authProbe(t *testing.T, claims *AuthClaims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetAuthClaims(r.Context())
		if !ok {
			t.Fatal("expected auth claims in the request context")
		}
		*claims = got
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuthMiddleware_AcceptsValidToken(t *testing.T) {
	subjectID := uuid.New()
	var claims AuthClaims
	handler := JWTAuthMiddleware(testJWTSecret)(authProbe(t, &claims))

	req := httptest.NewRequest(http.MethodGet, "/fees/assignments", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testJWTSecret, subjectID.String(), RoleStudent))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if claims.SubjectID != subjectID {
		t.Fatalf("expected subject %s, got %s", subjectID, claims.SubjectID)
	}
	if claims.Role != RoleStudent {
		t.Fatalf("expected role %q, got %q", RoleStudent, claims.Role)
	}
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
	}{
		{name: "missing header", authHeader: ""},
		{name: "malformed header", authHeader: "Token abc"},
		{name: "wrong secret", authHeader: "Bearer " + signedTokenStatic("other-secret", uuid.New().String(), RoleStudent)},
		{name: "non-uuid subject", authHeader: "Bearer " + signedTokenStatic(testJWTSecret, "not-a-uuid", RoleStudent)},
		{name: "unknown role", authHeader: "Bearer " + signedTokenStatic(testJWTSecret, uuid.New().String(), "auditor")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := JWTAuthMiddleware(testJWTSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("expected the request to be rejected before the handler")
			}))

			req := httptest.NewRequest(http.MethodGet, "/fees/assignments", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rec.Code)
			}
		})
	}
}

func TestRequireRole_RejectsOtherRole(t *testing.T) {
	var claims AuthClaims
	handler := JWTAuthMiddleware(testJWTSecret)(RequireRole(RoleSchool)(authProbe(t, &claims)))

	req := httptest.NewRequest(http.MethodPost, "/fees", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, testJWTSecret, uuid.New().String(), RoleStudent))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestRequireRole_RejectsMissingClaims(t *testing.T) {
	handler := RequireRole(RoleSchool)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("expected the request to be rejected before the handler")
	}))

	req := httptest.NewRequest(http.MethodPost, "/fees", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

// signedTokenStatic mirrors signedToken for table entries built outside a
// subtest body.
func signedTokenStatic(secret, sub, role string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
	})
	signed, _ := token.SignedString([]byte(secret))
	return signed
}
