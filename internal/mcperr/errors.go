// ABOUTME: JSON-RPC error codes and the Error type used across the server.
// ABOUTME: FromError classifies arbitrary errors into stable protocol codes.

package mcperr

import (
	"context"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server-specific error codes in the implementation-defined range.
const (
	CodeAuthenticationError = -32001
	CodeAuthorizationError  = -32002
	CodeResourceNotFound    = -32003
	CodeResourceUnavailable = -32004
	CodeRateLimitExceeded   = -32005
	CodeToolExecutionError  = -32006
)

// Error is a JSON-RPC error object that also implements the error interface.
// Packages that know their protocol code construct it directly; everything
// else is classified by FromError at the dispatch boundary.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// New creates an Error with the given code and message.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData returns a copy of the error carrying additional detail.
func (e *Error) WithData(data any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Data: data}
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// CodeName returns the canonical name for a protocol error code.
func CodeName(code int) string {
	switch code {
	case CodeParseError:
		return "PARSE_ERROR"
	case CodeInvalidRequest:
		return "INVALID_REQUEST"
	case CodeMethodNotFound:
		return "METHOD_NOT_FOUND"
	case CodeInvalidParams:
		return "INVALID_PARAMS"
	case CodeInternalError:
		return "INTERNAL_ERROR"
	case CodeAuthenticationError:
		return "AUTHENTICATION_ERROR"
	case CodeAuthorizationError:
		return "AUTHORIZATION_ERROR"
	case CodeResourceNotFound:
		return "RESOURCE_NOT_FOUND"
	case CodeResourceUnavailable:
		return "RESOURCE_UNAVAILABLE"
	case CodeRateLimitExceeded:
		return "RATE_LIMIT_EXCEEDED"
	case CodeToolExecutionError:
		return "TOOL_EXECUTION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// FromError classifies an arbitrary error into a protocol Error.
// Errors that already carry a code pass through unchanged; context
// expiry maps to a tool-execution failure; everything else is internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return New(CodeToolExecutionError, "execution timed out")
	case errors.Is(err, context.Canceled):
		return New(CodeToolExecutionError, "request cancelled")
	}

	return &Error{Code: CodeInternalError, Message: "internal error", Data: err.Error()}
}
