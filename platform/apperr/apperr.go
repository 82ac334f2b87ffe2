// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the HTTP layer middleware
// automatically maps them to appropriate HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a pipeline, stage or lead id does not resolve.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., deleting a non-empty stage).
	KindConflict
	// KindForbidden indicates the action is not allowed for the user.
	KindForbidden
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindBadRequest indicates a malformed or invalid request.
	KindBadRequest
	// KindInternal indicates an unexpected internal error.
	KindInternal
	// KindInvalidPipeline indicates a stage does not belong to the lead's pipeline.
	KindInvalidPipeline
	// KindInvalidTransition indicates an operation on a lead whose status forbids it.
	KindInvalidTransition
	// KindBusy indicates a lock scope could not be acquired in time. Safe to retry.
	KindBusy
	// KindIntegrity indicates an internal ordering invariant would be violated.
	KindIntegrity
)

var kindCodes = map[Kind]string{
	KindUnknown:           "UNKNOWN",
	KindNotFound:          "NOT_FOUND",
	KindValidation:        "VALIDATION_ERROR",
	KindConflict:          "CONFLICT",
	KindForbidden:         "FORBIDDEN",
	KindUnauthorized:      "UNAUTHORIZED",
	KindBadRequest:        "BAD_REQUEST",
	KindInternal:          "INTERNAL",
	KindInvalidPipeline:   "INVALID_PIPELINE",
	KindInvalidTransition: "INVALID_TRANSITION",
	KindBusy:              "BUSY",
	KindIntegrity:         "INTEGRITY_ERROR",
}

// String returns the stable machine-readable code for the kind.
func (k Kind) String() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindUnknown]
}

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindInvalidPipeline:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBusy:
		return http.StatusServiceUnavailable
	case KindInternal, KindIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Retryable reports whether the caller may safely repeat the request.
func (e *Error) Retryable() bool {
	return e.Kind == KindBusy
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns a copy of the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// InvalidPipeline creates an error for a stage outside the lead's pipeline.
func InvalidPipeline(message string) *Error {
	return New(KindInvalidPipeline, message)
}

// InvalidTransition creates an error for a status-forbidden operation.
func InvalidTransition(message string) *Error {
	return New(KindInvalidTransition, message)
}

// Busy creates a retryable lock-timeout error.
func Busy(message string) *Error {
	return New(KindBusy, message)
}

// Integrity creates an ordering invariant error.
func Integrity(message string, err error) *Error {
	return Wrap(KindIntegrity, message, err)
}

// GetKind extracts the error kind from an error chain.
// Returns KindUnknown if no *Error is found.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
