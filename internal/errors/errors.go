package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Capsule error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrAccessDenied    ErrorCode = "ACCESS_DENIED"    // 403
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrUpstreamFailure ErrorCode = "UPSTREAM_FAILURE" // 502
	ErrInternal        ErrorCode = "INTERNAL"         // 500
)

// CapsuleError represents a structured error with code, status, and details.
type CapsuleError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *CapsuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CapsuleError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *CapsuleError {
	return &CapsuleError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewAccessDenied creates a 403 error when the backend refuses a customer.
// redirect is the page the backend suggests instead; it may be empty.
func NewAccessDenied(msg, redirect string) *CapsuleError {
	if msg == "" {
		msg = "access denied"
	}
	e := &CapsuleError{
		Code:    ErrAccessDenied,
		Status:  403,
		Message: msg,
	}
	if redirect != "" {
		e.Details = map[string]any{"redirect": redirect}
	}
	return e
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(what string) *CapsuleError {
	return &CapsuleError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", what),
		Details: map[string]any{"identifier": what},
	}
}

// NewUpstreamFailure creates a 502 error when a remote service fails or returns
// an unusable reply.
func NewUpstreamFailure(service string, err error) *CapsuleError {
	msg := service + " request failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %s", msg, err.Error())
	}
	return &CapsuleError{
		Code:    ErrUpstreamFailure,
		Status:  502,
		Message: msg,
		Details: map[string]any{"service": service},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *CapsuleError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &CapsuleError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// As returns the CapsuleError in err's chain, if any.
func As(err error) (*CapsuleError, bool) {
	var cErr *CapsuleError
	if stderrors.As(err, &cErr) {
		return cErr, true
	}
	return nil, false
}

// Is checks if err is, or wraps, a CapsuleError with the given code.
func Is(err error, code ErrorCode) bool {
	if cErr, ok := As(err); ok {
		return cErr.Code == code
	}
	return false
}
