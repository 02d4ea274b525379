// Package domainerrors defines the error taxonomy shared by every service in
// this module. Services return *Error values carrying a Code; transports map
// codes onto their own status vocabulary without inspecting messages.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a failure for callers.
type Code string

const (
	// CodeValidation covers empty or out-of-range input, bad date ordering,
	// oversized batches and oversized evidence.
	CodeValidation Code = "validation_error"
	// CodeConflict covers duplicate business keys, duplicate actors and rule id collisions.
	CodeConflict Code = "conflict"
	// CodeForbidden is returned when an actor is not allowed to perform a mutation.
	CodeForbidden Code = "forbidden"
	// CodeNotFound covers unknown entities, rules, checkpoints and checks.
	CodeNotFound Code = "not_found"
	// CodeInvalidState covers mutations on inactive entities and no-op transitions.
	CodeInvalidState Code = "invalid_state"
	// CodeConfidenceThreshold is returned when a critical rule check lacks confidence.
	CodeConfidenceThreshold Code = "confidence_threshold"
	// CodeInvariantViolation is raised by model constructors; services convert it
	// to CodeValidation before it leaves the domain.
	CodeInvariantViolation Code = "invariant_violation"

	CodeUnauthorized Code = "unauthorized"
	CodeBadRequest   Code = "bad_request"
	CodeInternal     Code = "internal_error"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost domain code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain has the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is shorthand for HasCode, kept for test readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// ToHTTPStatus maps a code to the HTTP status used by the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeConflict, CodeInvalidState:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConfidenceThreshold:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
