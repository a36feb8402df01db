// Package apperr defines the error type shared by all domain services.
// Every rejected operation carries a stable machine code, a human-readable
// message, and an HTTP-equivalent status so handlers, logs, and tests all
// key off the same taxonomy.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a coded domain error. Two Errors match under errors.Is when
// their codes are equal, so packages can export sentinel values and
// callers can test against them regardless of the message.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMessagef returns a copy of e with a formatted message. Sentinels
// stay immutable; call sites attach the specifics.
func (e *Error) WithMessagef(format string, args ...interface{}) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...), Status: e.Status, Err: e.Err}
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Status: e.Status, Err: cause}
}

// Validation is a 400-equivalent input error. Never retried automatically.
func Validation(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusBadRequest}
}

// NotFound is a 404-equivalent lookup failure.
func NotFound(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusNotFound}
}

// Conflict is a 409-equivalent business-rule rejection. Retrying with the
// same input will fail again.
func Conflict(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusConflict}
}

// IllegalTransition is a 422-equivalent state machine rejection.
func IllegalTransition(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusUnprocessableEntity}
}

// Transient is a lost race surfaced to the caller after the transparent
// retry was also beaten. Safe to retry.
func Transient(code, message string) *Error {
	return &Error{Code: code, Message: message, Status: http.StatusServiceUnavailable}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Err: cause}
}

// Codes shared across domains. Domain packages define their own codes next
// to their sentinels; these are the ones no single domain owns.
const (
	CodeInternal   = "INTERNAL_ERROR"
	CodeValidation = "VALIDATION_FAILED"
)

// CodeOf extracts the machine code, or CodeInternal for uncoded errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP-equivalent status, or 500 for uncoded errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// MessageOf extracts the human-readable message, or the raw error text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
