package commands

import (
	"errors"
	"fmt"

	"github.com/thevtm/baker-news/internal/store"
)

// Code classifies a command failure reported to the caller
type Code int

const (
	CodeInvalidInput Code = iota + 1
	CodeNotFound
	CodeConflict
	CodeInternal
)

// String returns the name of the code
func (c Code) String() string {
	switch c {
	case CodeInvalidInput:
		return "invalid_input"
	case CodeNotFound:
		return "not_found"
	case CodeConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a typed command failure. It is returned instead of mutating
// anything, and the transport carries it in-band.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("command error %s: %s", e.Code, e.Message)
}

// ErrCycle reports a reply chain whose parent links loop back on themselves
var ErrCycle = errors.New("commands: cycle in parent comment chain")

// AsError extracts a command failure from err
func AsError(err error) (*Error, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

func invalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message}
}

func notFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// lookup translates a missing row into a not-found failure
func lookup(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(message)
	}
	return err
}
