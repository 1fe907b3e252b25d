package router

import "net/http"

// Error codes
const (
	ErrInternalCode           = "INTERNAL_ERROR"
	ErrBadRequestCode         = "BAD_REQUEST"
	ErrNotFoundCode           = "NOT_FOUND"
	ErrConflictCode           = "CONFLICT"
	ErrValidationCode         = "VALIDATION_FAILED"
	ErrRequestTimeoutCode     = "REQUEST_TIMEOUT"
	ErrServiceUnavailableCode = "SERVICE_UNAVAILABLE"
	ErrNeedsReauthCode        = "NEEDS_REAUTH"
	ErrRateLimitedCode        = "RATE_LIMITED"
	ErrNotImplementedCode     = "NOT_IMPLEMENTED"
)

// StatusForCode returns the HTTP status paired with an error code.
func StatusForCode(code string) int {
	switch code {
	case ErrBadRequestCode:
		return http.StatusBadRequest
	case ErrNotFoundCode:
		return http.StatusNotFound
	case ErrConflictCode, ErrNeedsReauthCode:
		return http.StatusConflict
	case ErrValidationCode:
		return http.StatusUnprocessableEntity
	case ErrRequestTimeoutCode:
		return http.StatusRequestTimeout
	case ErrServiceUnavailableCode:
		return http.StatusServiceUnavailable
	case ErrRateLimitedCode:
		return http.StatusTooManyRequests
	case ErrNotImplementedCode:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
