// Package errors provides structured error types for optisource.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the transport, expander and runner
//   - Machine-readable error codes for programmatic handling
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Codes map onto the failure taxonomy of a sourcing run:
//   - AUTHENTICATION_FAILED: no usable bearer token, fatal to the run
//   - TIMEOUT, NETWORK_ERROR: transient transport failures (retried)
//   - HTTP_ERROR: the CMS answered with a 4xx/5xx status (see [HTTPError])
//   - UNSUPPORTED_METHOD: the request method is not GET or POST
//   - EXPANSION_FAILED: a content link could not be resolved (see [ExpansionError])
//   - CANCELLED: the run context was cancelled
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidConfig, "the `auth.site_url` is required")
//	if errors.Is(err, errors.ErrCodeInvalidConfig) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Configuration errors
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Authentication errors
	ErrCodeAuthenticationFailed Code = "AUTHENTICATION_FAILED"

	// Transport errors
	ErrCodeTimeout           Code = "TIMEOUT"
	ErrCodeHTTP              Code = "HTTP_ERROR"
	ErrCodeNetwork           Code = "NETWORK_ERROR"
	ErrCodeUnsupportedMethod Code = "UNSUPPORTED_METHOD"
	ErrCodeDecode            Code = "DECODE_ERROR"
	ErrCodeCancelled         Code = "CANCELLED"

	// Expansion and orchestration errors
	ErrCodeExpansionFailed Code = "EXPANSION_FAILED"
	ErrCodeEndpointFailed  Code = "ENDPOINT_FAILED"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// coder is implemented by error types that carry their own code.
type coder interface {
	Code() Code
}

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any error in err's tree has the given code.
// Both *Error values and typed errors with a Code method are considered,
// and joined errors are searched branch by branch.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	if c, ok := codeOf(err); ok && c == code {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if Is(e, code) {
				return true
			}
		}
		return false
	}
	return Is(errors.Unwrap(err), code)
}

// GetCode extracts the outermost error code from err. For joined errors
// the first branch carrying a code wins.
// Returns empty string if no error in the tree carries a code.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := codeOf(err); ok {
		return c
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if c := GetCode(e); c != "" {
				return c
			}
		}
		return ""
	}
	return GetCode(errors.Unwrap(err))
}

func codeOf(err error) (Code, bool) {
	switch e := err.(type) {
	case *Error:
		return e.Code, true
	case coder:
		return e.Code(), true
	}
	return "", false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPError reports a non-success response from the CMS.
// It is never retried: the response body is kept for diagnostics.
type HTTPError struct {
	Status     int
	StatusText string
	URL        string
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.StatusText != "" {
		return fmt.Sprintf("%s: %s (%d %s)", ErrCodeHTTP, e.URL, e.Status, e.StatusText)
	}
	return fmt.Sprintf("%s: %s (%d)", ErrCodeHTTP, e.URL, e.Status)
}

// Code returns the error code for this error type.
func (e *HTTPError) Code() Code {
	return ErrCodeHTTP
}

// ExpansionError records a content link that could not be resolved.
type ExpansionError struct {
	Field  string // Expandable field the link was found in ("" for top-level items)
	LinkID int    // contentLink.id of the unresolved link
	Err    error
}

// Error implements the error interface.
func (e *ExpansionError) Error() string {
	field := e.Field
	if field == "" {
		field = "<root>"
	}
	return fmt.Sprintf("%s: %s[%d]: %v", ErrCodeExpansionFailed, field, e.LinkID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExpansionError) Unwrap() error { return e.Err }

// Code returns the error code for this error type.
func (e *ExpansionError) Code() Code {
	return ErrCodeExpansionFailed
}
