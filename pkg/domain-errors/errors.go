// Package domainerrors defines the stable error vocabulary shared between
// services and transports.
//
// Services construct these errors (usually by translating store sentinels)
// and handlers map the code to an HTTP status via pkg/platform/httputil.
// Codes are part of the API contract; messages are human-readable detail
// and may be suppressed for internal errors.
//
// Usage:
//
//	if errors.Is(err, sentinel.ErrNotFound) {
//	    return dErrors.New(dErrors.CodeNotFound, "feedback not found")
//	}
//	return dErrors.Wrap(err, dErrors.CodeInternal, "load feedback")
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. Transports map codes to status codes;
// services and tests branch on them via HasCode.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeConflict           Code = "conflict"
	CodeExpired            Code = "expired"
	CodeForbidden          Code = "forbidden"
	CodeInternal           Code = "internal_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvariantViolation Code = "invariant_violation"
	CodeMissingConsent     Code = "missing_consent"
	CodeNotFound           Code = "not_found"
	CodeTimeout            Code = "timeout"
	CodeUnauthorized       Code = "unauthorized"
	CodeUnavailable        Code = "unavailable"
	CodeValidation         Code = "validation_error"
)

// Error is a coded domain error. It optionally wraps a cause so that
// errors.Is/As keep working across layers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message while preserving the cause.
// Returns nil when err is nil so it can be used in straight-line returns.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match two domain errors by code and message, so tests
// can assert against a constructed target. A target with an empty message
// matches on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// HasCode reports whether err (or anything it wraps) is a domain error
// carrying the given code.
func HasCode(err error, code Code) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// Is is a readable alias for HasCode used in tests and handler branches.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unclassified errors so transports never leak raw failure detail.
func CodeOf(err error) Code {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code
	}
	return CodeInternal
}

// MessageOf extracts the safe human-readable message from err.
// Unclassified errors yield an empty message.
func MessageOf(err error) string {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Message
	}
	return ""
}
