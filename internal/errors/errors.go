// Package errors provides structured error types for impactlens.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common failure modes.
var (
	ErrConfigurationInvalid  = errors.New("configuration invalid")
	ErrUpstreamUnreachable   = errors.New("upstream unreachable")
	ErrUpstreamNonSuccess    = errors.New("upstream returned non-success status")
	ErrUnexpectedContentType = errors.New("upstream returned unexpected content type")
	ErrDecodeFailure         = errors.New("response does not match expected shape")
	ErrAuthFailure           = errors.New("authentication failed")
	ErrDenied                = errors.New("access denied")
	ErrNotFound              = errors.New("resource not found")
	ErrRateLimit             = errors.New("rate limit exceeded")
	ErrUnavailable           = errors.New("service unavailable")
	ErrTimeout               = errors.New("operation timed out")
)

// APIError represents a non-success response from an external API call.
// The status code, not the message text, decides which sentinel it matches.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap exposes both the wrapped cause and the status classification.
func (e *APIError) Unwrap() []error {
	errs := []error{Classify(e.StatusCode)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// Classify maps an HTTP status code to a sentinel error kind.
func Classify(statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized:
		return ErrAuthFailure
	case statusCode == http.StatusForbidden:
		return ErrDenied
	case statusCode == http.StatusNotFound:
		return ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		return ErrRateLimit
	case statusCode >= 500:
		return ErrUnavailable
	default:
		return ErrUpstreamNonSuccess
	}
}

// IsUpstream reports whether err came from talking to an external service
// (transport failure, non-2xx status, or wrong content type).
func IsUpstream(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return true
	}
	return errors.Is(err, ErrUpstreamUnreachable) || errors.Is(err, ErrUnexpectedContentType)
}

// StatusCode returns the upstream status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrUpstreamUnreachable)
}
