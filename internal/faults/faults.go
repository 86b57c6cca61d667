// Package faults provides categorized errors for sandboxsync and maps them
// to process exit codes.
package faults

import (
	"errors"
	"fmt"
)

// Category classifies a failure by where it originated.
type Category string

const (
	Config     Category = "config"
	Validation Category = "validation"
	Transport  Category = "transport"
	Remote     Category = "remote"
	Malformed  Category = "malformed"
	IO         Category = "io"
)

// Exit codes for the sandboxsync CLI
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConfigError  = 2
	ExitTransport    = 3
	ExitRemote       = 4
	ExitIO           = 5
	ExitMalformed    = 6
)

// TypedError wraps a cause with a category and a user-facing message.
type TypedError struct {
	Category Category
	Message  string
	Cause    error
}

func (e *TypedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" && e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Category)
}

func (e *TypedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New creates a TypedError without a cause.
func New(category Category, format string, args ...any) *TypedError {
	return &TypedError{Category: category, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a category and message to cause.
func Wrap(category Category, cause error, format string, args ...any) *TypedError {
	return &TypedError{Category: category, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsCategory reports whether any error in err's chain is a TypedError of the
// given category.
func IsCategory(err error, category Category) bool {
	if err == nil {
		return false
	}
	var typed *TypedError
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Category == category
}

// ExitCode extracts the exit code for err. Untyped errors map to
// ExitGeneralError.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var typed *TypedError
	if !errors.As(err, &typed) {
		return ExitGeneralError
	}
	switch typed.Category {
	case Config, Validation:
		return ExitConfigError
	case Transport:
		return ExitTransport
	case Remote:
		return ExitRemote
	case IO:
		return ExitIO
	case Malformed:
		return ExitMalformed
	default:
		return ExitGeneralError
	}
}
