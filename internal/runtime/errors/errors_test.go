package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrCredentialRequired", ErrCredentialRequired, "livebridge: credential is required"},
		{"ErrRecordCallbackRequired", ErrRecordCallbackRequired, "livebridge: record callback is required"},
		{"ErrAlreadyStarted", ErrAlreadyStarted, "livebridge: session already started"},
		{"ErrNoSubscriptions", ErrNoSubscriptions, "livebridge: session has no subscriptions"},
		{"ErrSessionDestroyed", ErrSessionDestroyed, "livebridge: session is destroyed"},
		{"ErrBufferTooSmall", ErrBufferTooSmall, "livebridge: buffer too small"},
		{"ErrTimeout", ErrTimeout, "livebridge: timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestInvalidArgumentMatchesSentinel(t *testing.T) {
	err := InvalidArgument("dataset", "cannot be empty")
	if err.Error() != "dataset cannot be empty" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	wrapped := fmt.Errorf("subscribe: %w", err)
	if !errors.Is(wrapped, ErrInvalidArgument) {
		t.Fatal("expected errors.Is to match ErrInvalidArgument")
	}
	var iae *InvalidArgumentError
	if !errors.As(wrapped, &iae) || iae.Param != "dataset" {
		t.Fatalf("expected errors.As to expose param, got %#v", iae)
	}
}

func TestCallbackErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := &CallbackError{Code: CodeRecordCallbackFailed, Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected CallbackError to unwrap")
	}
	if (&CallbackError{Code: -5}).Error() != "callback failed (code -5)" {
		t.Fatal("unexpected message for empty callback error")
	}
}

func TestFromPanic(t *testing.T) {
	if FromPanic(nil) != nil {
		t.Fatal("nil panic must map to nil")
	}
	if FromPanic("bad").Error() != "bad" {
		t.Fatal("string panic must keep its text")
	}
	inner := errors.New("x")
	if FromPanic(inner) != inner {
		t.Fatal("error panic must be returned as-is")
	}
	if FromPanic(42).Error() != "42" {
		t.Fatal("other panics are formatted")
	}
}
