package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Common errors returned by gateway operations.
//
// These can be checked with errors.Is() for failure classification:
//
//	if errors.Is(err, gateway.ErrConflict) {
//	    // remote-wins: adopt server state, drop the mutation
//	}
var (
	// ErrOffline is returned when the client knows it has no connectivity
	// before attempting a request.
	ErrOffline = errors.New("no network connectivity")

	// ErrConflict is returned on a state-mismatch response from the
	// gateway. The wrapping ConflictError may carry the winning snapshot.
	ErrConflict = errors.New("remote state conflict")

	// ErrNotFound is returned when the target entity no longer exists
	// on the server.
	ErrNotFound = errors.New("entity not found on server")
)

// Class is the failure classification the sync engine acts on.
type Class int

const (
	// ClassTransient means a retry is expected to eventually succeed.
	// The mutation keeps its optimistic snapshot and enters the outbox.
	ClassTransient Class = iota
	// ClassConflict means the server rejected the mutation because its
	// state moved on. Resolved remote-wins, no retry.
	ClassConflict
	// ClassFatal means retrying would reproduce the same rejection
	// (validation or business rule). The optimistic mutation rolls back.
	ClassFatal
)

// String returns a human-readable name for the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassConflict:
		return "conflict"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StatusError is a non-2xx response from the gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned %d", e.Code)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Body)
}

// ConflictError is a state-mismatch response. Snapshot is the winner's
// canonical task when the server chose to include it, else nil.
type ConflictError struct {
	Snapshot *TaskSnapshot
}

func (e *ConflictError) Error() string { return "remote state conflict" }

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Classifier maps an error from a gateway call to a failure class.
// The default handles the protocol contract; dev builds may chain extra
// heuristics (see DevClassifier).
type Classifier func(err error) Class

// Classify is the default classifier.
//
// Transient: known-offline, transport failures with no response, timeouts,
// and retryable upstream statuses (408, 429, 5xx except 501).
// Conflict: the distinct conflict status (409).
// Everything else is fatal.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	if errors.Is(err, ErrConflict) {
		return ClassConflict
	}
	if errors.Is(err, ErrOffline) {
		return ClassTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 408 || statusErr.Code == 429:
			return ClassTransient
		case statusErr.Code == 501:
			return ClassFatal
		case statusErr.Code >= 500:
			return ClassTransient
		default:
			return ClassFatal
		}
	}

	// Transport-level failures (connection refused, DNS, reset) arrive as
	// *url.Error wrapping a net error and are caught above; anything still
	// unclassified here got a response and is a real rejection.
	if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") {
		return ClassTransient
	}

	return ClassFatal
}

// DevClassifier wraps a classifier with the local-development heuristic:
// ambiguous server errors that look like "backend process unreachable"
// (proxy 502s from a dev server, localhost refusals) are treated as
// transient instead of fatal.
//
// This is an environment workaround, not protocol contract. It is only
// installed when dev_mode is enabled in config.
func DevClassifier(next Classifier) Classifier {
	return func(err error) Class {
		class := next(err)
		if class != ClassFatal || err == nil {
			return class
		}

		msg := strings.ToLower(err.Error())
		for _, sig := range []string{
			"econnrefused",
			"socket hang up",
			"proxy error",
			"localhost",
			"127.0.0.1",
		} {
			if strings.Contains(msg, sig) {
				return ClassTransient
			}
		}

		return class
	}
}
