// Package apperr carries typed errors with an HTTP status across package
// boundaries so transports can render them without string matching.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class.
type Code string

const (
	CodeInvalidRequest Code = "INVALID_REQUEST" // 400
	CodeNotFound       Code = "NOT_FOUND"       // 404
	CodeUpstream       Code = "UPSTREAM"        // 502
	CodeUnavailable    Code = "UNAVAILABLE"     // 503
	CodeInternal       Code = "INTERNAL"        // 500
)

// Error is a structured error with code, status and optional details.
type Error struct {
	Code    Code           `json:"code"`
	Status  int            `json:"-"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// InvalidRequest creates a 400 error for bad input.
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Status: http.StatusBadRequest, Message: msg}
}

// NotFound creates a 404 error for a missing resource.
func NotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// Upstream wraps a failure of the completion or embedding service.
func Upstream(err error) *Error {
	msg := "upstream error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: CodeUpstream, Status: http.StatusBadGateway, Message: msg, cause: err}
}

// Unavailable reports a feature that is not configured.
func Unavailable(msg string) *Error {
	return &Error{Code: CodeUnavailable, Status: http.StatusServiceUnavailable, Message: msg}
}

// Internal creates a 500 error for unexpected failures.
func Internal(err error) *Error {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: msg, cause: err}
}

// Is reports whether err wraps an *Error with the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// From converts any error into an *Error, treating unknown errors as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
