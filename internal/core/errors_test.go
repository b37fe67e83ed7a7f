package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mikey-austin/nowplaying/internal/ports"
)

func TestErrorForReplyCode(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{"INVALID", ExitUsage},
		{"UNAVAILABLE", ExitUnavailable},
		{"INTERNAL", ExitRuntime},
		{"UNKNOWN", ExitRuntime},
	}

	for _, test := range tests {
		err := ErrorForReplyCode(test.code, "message")
		if err.Code != test.expected {
			t.Fatalf("code %s expected %d got %d", test.code, test.expected, err.Code)
		}
	}
}

func TestRoundTripError(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{ports.ErrTimeout, ExitTimeout},
		{fmt.Errorf("wrapped: %w", ports.ErrTimeout), ExitTimeout},
		{&ports.TransportError{Op: "publish", Err: errors.New("closed")}, ExitUnavailable},
		{errors.New("boom"), ExitRuntime},
	}
	for _, test := range tests {
		if got := roundTripError("query", test.err).Code; got != test.expected {
			t.Fatalf("%v: expected %d got %d", test.err, test.expected, got)
		}
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitOK {
		t.Fatalf("nil should be ok")
	}
	wrapped := fmt.Errorf("outer: %w", &CLIError{Code: ExitNotFound, Msg: "missing"})
	if ExitCode(wrapped) != ExitNotFound {
		t.Fatalf("expected wrapped CLIError code")
	}
	if ExitCode(errors.New("plain")) != ExitRuntime {
		t.Fatalf("expected runtime for plain errors")
	}
}
