/**
 * @description
 * This file defines the service-layer error type. Handlers map an error's
 * kind to an HTTP status without inspecting store sentinels, and the message
 * carries what is safe to show a client. Wrapped causes stay available
 * through errors.Unwrap for logging.
 */

package app

import "errors"

// Error kinds recognized by the API layer.
const (
	KindValidation     = "validation"
	KindNotFound       = "not_found"
	KindAuthentication = "authentication"
	KindAuthorization  = "authorization"
	KindConflict       = "conflict"
	KindRateLimited    = "rate_limited"
	KindConfiguration  = "configuration"
	KindProvider       = "provider"
	KindInternal       = "internal"
)

// Error is a service-layer error with a classification kind and a
// client-safe message.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimitedError carries the retry window so handlers can emit a
// Retry-After header.
type RateLimitedError struct {
	Message           string
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string { return e.Message }

func newError(kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// ValidationError reports invalid client input.
func ValidationError(message string) *Error { return newError(KindValidation, message, nil) }

// NotFoundError reports a missing entity.
func NotFoundError(message string, cause error) *Error {
	return newError(KindNotFound, message, cause)
}

// AuthorizationError reports an actor acting outside their scope.
func AuthorizationError(message string) *Error { return newError(KindAuthorization, message, nil) }

// AuthenticationError reports a failed identity or signature check.
func AuthenticationError(message string) *Error { return newError(KindAuthentication, message, nil) }

// ConflictError reports a state-machine violation.
func ConflictError(message string, cause error) *Error {
	return newError(KindConflict, message, cause)
}

// ConfigurationError reports missing tenant configuration.
func ConfigurationError(message string, cause error) *Error {
	return newError(KindConfiguration, message, cause)
}

// ProviderError reports an upstream payment-provider failure.
func ProviderError(message string, cause error) *Error {
	return newError(KindProvider, message, cause)
}

// InternalError reports an unexpected failure.
func InternalError(message string, cause error) *Error {
	return newError(KindInternal, message, cause)
}

// KindOf classifies any error into one of the kinds above.
func KindOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		return KindRateLimited
	}
	return KindInternal
}
