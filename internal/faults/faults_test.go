package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsCategory(t *testing.T) {
	err := New(Malformed, "record %d missing field", 3)
	if !IsCategory(err, Malformed) {
		t.Fatal("expected malformed category match")
	}
	if IsCategory(err, Remote) {
		t.Fatal("expected remote category mismatch")
	}

	wrapped := fmt.Errorf("scan: %w", err)
	if !IsCategory(wrapped, Malformed) {
		t.Error("expected category match through fmt.Errorf wrapping")
	}

	flattened := errors.New("scan: " + err.Error())
	if IsCategory(flattened, Malformed) {
		t.Error("plain string error must not match a typed category")
	}

	if IsCategory(nil, Malformed) {
		t.Error("nil error must not match")
	}
}

func TestTypedErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	tests := []struct {
		name string
		err  *TypedError
		want string
	}{
		{name: "message and cause", err: Wrap(Transport, cause, "ping failed"), want: "ping failed: connection refused"},
		{name: "message only", err: New(Config, "hostname is required"), want: "hostname is required"},
		{name: "cause only", err: &TypedError{Category: IO, Cause: cause}, want: "connection refused"},
		{name: "category only", err: &TypedError{Category: Remote}, want: "remote"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(Wrap(IO, cause, "write"), cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitGeneralError},
		{New(Config, "x"), ExitConfigError},
		{New(Validation, "x"), ExitConfigError},
		{New(Transport, "x"), ExitTransport},
		{fmt.Errorf("outer: %w", New(Remote, "x")), ExitRemote},
		{New(IO, "x"), ExitIO},
		{New(Malformed, "x"), ExitMalformed},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
