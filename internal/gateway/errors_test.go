package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: i/o timeout" }
func (fakeNetError) Timeout() bool   { return true }
func (fakeNetError) Temporary() bool { return true }

var _ net.Error = fakeNetError{}

func TestClassifyTransient(t *testing.T) {
	cases := []error{
		ErrOffline,
		fakeNetError{},
		&StatusError{Code: 500, Body: "internal"},
		&StatusError{Code: 503},
		&StatusError{Code: 429},
		&StatusError{Code: 408},
		fmt.Errorf("wrapped: %w", ErrOffline),
	}

	for _, err := range cases {
		if got := Classify(err); got != ClassTransient {
			t.Errorf("Classify(%v) = %v, want transient", err, got)
		}
	}
}

func TestClassifyConflict(t *testing.T) {
	err := &ConflictError{}
	if got := Classify(err); got != ClassConflict {
		t.Errorf("Classify(ConflictError) = %v, want conflict", got)
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("ConflictError should match ErrConflict")
	}
}

func TestClassifyFatal(t *testing.T) {
	cases := []error{
		&StatusError{Code: 400, Body: "title is required"},
		&StatusError{Code: 403},
		&StatusError{Code: 422},
		&StatusError{Code: 501},
		errors.New("validation failed"),
	}

	for _, err := range cases {
		if got := Classify(err); got != ClassFatal {
			t.Errorf("Classify(%v) = %v, want fatal", err, got)
		}
	}
}

func TestDevClassifier(t *testing.T) {
	dev := DevClassifier(Classify)

	// The dev heuristic rescues backend-unreachable signatures.
	err := errors.New("request to http://localhost:3000 failed: ECONNREFUSED")
	if got := dev(err); got != ClassTransient {
		t.Errorf("dev classifier should treat %v as transient, got %v", err, got)
	}

	// Real rejections stay fatal.
	fatal := &StatusError{Code: 422, Body: "bad request"}
	if got := dev(fatal); got != ClassFatal {
		t.Errorf("dev classifier should keep %v fatal, got %v", fatal, got)
	}

	// Already-transient stays transient.
	if got := dev(ErrOffline); got != ClassTransient {
		t.Errorf("dev classifier changed transient to %v", got)
	}
}

func TestClassifyTimeout(t *testing.T) {
	err := fmt.Errorf("request: %w", context.DeadlineExceeded)
	if got := Classify(err); got != ClassTransient {
		t.Errorf("timeout should be transient, got %v", got)
	}
}
