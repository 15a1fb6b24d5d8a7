// Package errors provides the tagged error taxonomy shared by the catalog stores.
//
// Every failure that crosses a component boundary carries a Code. The fallback
// router, the sync engine and the migration processor branch on the Code, never on
// message text:
//
//	switch errors.CodeOf(err) {
//	case errors.CodeIndexRequired:
//	    // reroute to the secondary store
//	case errors.CodeNotFound:
//	    // propagate
//	}
//
// Sentinels match by code with errors.Is:
//
//	if errors.Is(err, errors.ErrConflict) {
//	    // render "already exists"
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code is the discriminant of an Error.
type Code string

// Error codes.
const (
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeIndexRequired   Code = "INDEX_REQUIRED"
	CodeTransientSync   Code = "TRANSIENT_SYNC"
	CodeMigrationRecord Code = "MIGRATION_RECORD"
	CodeValidation      Code = "VALIDATION"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

// Codes lists every code, in declaration order.
var Codes = []Code{
	CodeNotFound,
	CodeConflict,
	CodeIndexRequired,
	CodeTransientSync,
	CodeMigrationRecord,
	CodeValidation,
	CodeUnavailable,
	CodeInternal,
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// CodeOf returns the code of the outermost *Error in err's chain.
// Errors without a code are reported as CodeInternal; nil reports "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "already exists"}
	ErrIndexRequired   = &Error{Code: CodeIndexRequired, Message: "query requires an index"}
	ErrTransientSync   = &Error{Code: CodeTransientSync, Message: "secondary sync failed"}
	ErrMigrationRecord = &Error{Code: CodeMigrationRecord, Message: "migration record failed"}
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation error"}
	ErrUnavailable     = &Error{Code: CodeUnavailable, Message: "store unavailable"}
	ErrInternal        = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// IndexRequired creates an index required error. The message should name the
// index the query needs so that it can be created from deployment notes.
func IndexRequired(msg string) *Error {
	return &Error{Code: CodeIndexRequired, Message: msg}
}

// IndexRequiredf creates an index required error with formatted message.
func IndexRequiredf(format string, args ...any) *Error {
	return &Error{Code: CodeIndexRequired, Message: fmt.Sprintf(format, args...)}
}

// TransientSync wraps a secondary write failure.
func TransientSync(err error, msg string) *Error {
	return &Error{Code: CodeTransientSync, Message: msg, cause: err}
}

// MigrationRecord wraps a per-record migration failure.
func MigrationRecord(err error, msg string) *Error {
	return &Error{Code: CodeMigrationRecord, Message: msg, cause: err}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Unavailable wraps a store connectivity failure.
func Unavailable(err error, msg string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg, cause: err}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
