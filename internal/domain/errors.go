package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Contract-violation sentinels. These mark programming errors or expected
// absences that callers branch on, not conditions to report to the user.
var (
	// ErrEmptySessionID is returned by Save when the record carries no
	// session identifier.
	ErrEmptySessionID = errors.New("conversation state has no session id")

	// ErrSessionNotFound is returned by operations that require an existing
	// record (delete, explicit fetch), never by Load.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorType is the category of a canonical error.
type ErrorType string

const (
	// ErrorTypeConfiguration indicates a startup configuration problem.
	// Configuration errors are the only kind allowed to terminate the process.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeInference indicates the completion service failed or returned
	// a payload that does not satisfy the response contract. Recoverable
	// per-turn via the degraded result path.
	ErrorTypeInference ErrorType = "inference"

	// ErrorTypeCorruption indicates a persisted record that is malformed or
	// does not match its lookup key. Treated as "not found", never fatal.
	ErrorTypeCorruption ErrorType = "corruption"

	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeAuthentication indicates an authentication failure.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeNotFound indicates a resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting was triggered.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeOverloaded indicates the upstream service is overloaded.
	ErrorTypeOverloaded ErrorType = "overloaded"

	// ErrorTypeServer indicates an internal server error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeMissingCredential ErrorCode = "missing_credential"
	ErrorCodeInvalidAPIKey     ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound     ErrorCode = "model_not_found"
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrorCodeSchemaValidation  ErrorCode = "schema_validation_failed"
	ErrorCodeSessionMismatch   ErrorCode = "session_id_mismatch"
)

// Error is the canonical error shape providers and handlers translate into.
type Error struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`

	// Provider names the upstream the error originated from (for debugging)
	Provider string `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	case ErrorTypeInference:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new canonical error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithProvider sets the originating provider.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// Convenience constructors for common errors

// ErrConfiguration creates a fatal startup configuration error.
func ErrConfiguration(message string) *Error {
	return NewError(ErrorTypeConfiguration, message)
}

// ErrInference creates a recoverable inference error.
func ErrInference(message string) *Error {
	return NewError(ErrorTypeInference, message)
}

// ErrSchemaValidation creates an inference error for an off-contract payload.
func ErrSchemaValidation(message string) *Error {
	return NewError(ErrorTypeInference, message).
		WithCode(ErrorCodeSchemaValidation)
}

// ErrCorruption creates a corrupted-record error.
func ErrCorruption(message string) *Error {
	return NewError(ErrorTypeCorruption, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	return NewError(ErrorTypeInvalidRequest, message)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *Error {
	return NewError(ErrorTypeAuthentication, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *Error {
	return NewError(ErrorTypeNotFound, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *Error {
	return NewError(ErrorTypeRateLimit, message).
		WithCode(ErrorCodeRateLimitExceeded)
}

// ErrOverloaded creates an overloaded error.
func ErrOverloaded(message string) *Error {
	return NewError(ErrorTypeOverloaded, message)
}

// ErrServer creates a server error.
func ErrServer(message string) *Error {
	return NewError(ErrorTypeServer, message)
}

// IsInference reports whether err is an inference-category canonical error.
// Transport failures wrapped by provider clients also count.
func IsInference(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Type == ErrorTypeInference || de.Type == ErrorTypeOverloaded ||
			de.Type == ErrorTypeRateLimit || de.Type == ErrorTypeServer
	}
	return false
}
