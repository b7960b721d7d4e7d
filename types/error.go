package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Request and pipeline error codes
const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrSecurityViolation     ErrorCode = "SECURITY_VIOLATION"
	ErrCapabilityRejected    ErrorCode = "CAPABILITY_REJECTED"
	ErrEncodingError         ErrorCode = "ENCODING_ERROR"
	ErrRuntimeFault          ErrorCode = "RUNTIME_FAULT"
	ErrTimeout               ErrorCode = "TIMEOUT"
	ErrCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
)

// Store and identity error codes
const (
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrReportTimeout    ErrorCode = "REPORT_TIMEOUT"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Retryable   bool      `json:"retryable"`
	Cause       error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRemediation attaches a human-readable fix suggestion.
func (e *Error) WithRemediation(hint string) *Error {
	e.Remediation = hint
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// AsError converts any error into a structured *Error, wrapping
// unknown errors under ErrInternalError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewError(ErrInternalError, err.Error()).WithCause(err)
}
