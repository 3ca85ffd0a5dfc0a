/**
 * @description
 * This file contains custom middleware for the HTTP router. Authentication is
 * a shared-secret HS256 JWT issued by the identity service: the `sub` claim
 * carries the caller's UUID (a student id or a school id) and the `role`
 * claim says which one it is. Webhook endpoints bypass this middleware; they
 * authenticate by payload signature instead.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Caller roles recognized by the API.
const (
	RoleStudent = "student"
	RoleSchool  = "school"
)

// AuthClaims is the authenticated caller identity extracted from the JWT.
type AuthClaims struct {
	SubjectID uuid.UUID
	Role      string
}

// authClaimsContextKey is a custom type for the context key to avoid collisions.
type authClaimsContextKey string

const authClaimsKey authClaimsContextKey = "authClaims"

// JWTAuthMiddleware creates a middleware that validates HS256 bearer tokens.
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			sub, ok := claims["sub"].(string)
			if !ok {
				http.Error(w, "Subject not found in token", http.StatusUnauthorized)
				return
			}
			subjectID, err := uuid.Parse(sub)
			if err != nil {
				http.Error(w, "Invalid subject in token", http.StatusUnauthorized)
				return
			}

			role, ok := claims["role"].(string)
			if !ok || (role != RoleStudent && role != RoleSchool) {
				http.Error(w, "Invalid role in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authClaimsKey, AuthClaims{SubjectID: subjectID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose token carries a different role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetAuthClaims(r.Context())
			if !ok || claims.Role != role {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetAuthClaims retrieves the authenticated caller from the request context.
func GetAuthClaims(ctx context.Context) (AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsKey).(AuthClaims)
	return claims, ok
}
