package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context
const (
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUpstreamAuthExpired = "UPSTREAM_AUTH_EXPIRED"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeValidation          = "VALIDATION_ERROR"
	CodeRetryExhausted      = "RETRY_EXHAUSTED"
	CodeInvalidState        = "INVALID_STATE"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
// This lets callers match on the sentinel values below regardless of message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error that keeps its cause
func WrapDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrConflict            = NewDomainError(CodeConflict, "Resource is in a conflicting state")
	ErrUpstreamAuthExpired = NewDomainError(CodeUpstreamAuthExpired, "Upstream credential expired")
	ErrUpstreamUnavailable = NewDomainError(CodeUpstreamUnavailable, "Upstream service unavailable")
	ErrValidation          = NewDomainError(CodeValidation, "Validation failed")
	ErrRetryExhausted      = NewDomainError(CodeRetryExhausted, "Retries exhausted")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
)

// NotFound returns a NOT_FOUND error with a specific message
func NotFound(format string, args ...any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns a CONFLICT error with a specific message
func Conflict(format string, args ...any) *DomainError {
	return NewDomainError(CodeConflict, fmt.Sprintf(format, args...))
}

// Validation returns a VALIDATION_ERROR with a specific message
func Validation(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// InvalidState returns an INVALID_STATE error with a specific message
func InvalidState(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidState, fmt.Sprintf(format, args...))
}

// ErrorCode extracts the domain code of err, or "" when err is not a DomainError
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code
func IsNotFound(err error) bool { return ErrorCode(err) == CodeNotFound }

// IsConflict reports whether err carries the CONFLICT code
func IsConflict(err error) bool { return ErrorCode(err) == CodeConflict }

// IsAuthExpired reports whether err carries the UPSTREAM_AUTH_EXPIRED code
func IsAuthExpired(err error) bool { return ErrorCode(err) == CodeUpstreamAuthExpired }
