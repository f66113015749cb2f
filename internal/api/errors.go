package api

import (
	"errors"
	"fmt"

	"github.com/thevtm/baker-news/internal/commands"
)

// Application error codes carried in-band by JSON-RPC responses
const (
	ErrServerError = -32000
	ErrNotFound    = -32004
	ErrConflict    = -32009
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// toRPCError maps a handler error to the code and message sent to the
// caller. It reports false for unexpected failures, whose details are only
// logged.
func toRPCError(err error) (*JSONRPCError, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return &JSONRPCError{Code: apiErr.Code, Message: apiErr.Message}, true
	}

	if cerr, ok := commands.AsError(err); ok {
		switch cerr.Code {
		case commands.CodeInvalidInput:
			return &JSONRPCError{Code: ErrInvalidParams, Message: cerr.Message}, true
		case commands.CodeNotFound:
			return &JSONRPCError{Code: ErrNotFound, Message: cerr.Message}, true
		case commands.CodeConflict:
			return &JSONRPCError{Code: ErrConflict, Message: cerr.Message}, true
		}
	}

	return &JSONRPCError{Code: ErrServerError, Message: "Server error"}, false
}
