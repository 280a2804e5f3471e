// Package errors carries the structured error type shared by every sandtable component.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig     = "CONFIG"
	ErrConnection = "CONNECTION"
	ErrProtocol   = "PROTOCOL"
	ErrConflict   = "CONFLICT"
	ErrNotFound   = "NOT_FOUND"
	ErrParse      = "PARSE"
	ErrShutdown   = "SHUTDOWN"
	ErrStore      = "STORE"
)

// Error is a structured error with a code, a message, an optional suggestion and cause.
//
//	✗ <What failed>
//
//	  <Why it failed>
//
//	  <How to fix it>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrConnection.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrConnection,
		Message: message,
		Cause:   err,
	}
}

func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Conflict reports that a job is already active.
func Conflict(message string) *Error {
	return New(ErrConflict, message, "Stop the running pattern first or wait for it to finish")
}

// NotFound reports a missing pattern, playlist or port.
func NotFound(what, name string) *Error {
	return New(ErrNotFound, fmt.Sprintf("%s not found: %s", what, name), "")
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var tErr *Error
	if errors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}
