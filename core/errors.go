package core

import (
	"context"
	"errors"
)

var (
	// ErrCancelled marks a user-initiated abort. It is always silent: the
	// orchestrator never renders it as an error message.
	ErrCancelled = errors.New("cancelled by user")

	// ErrPermissionDenied is returned when the microphone permission probe
	// fails. Terminal for the session until the user re-grants access.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrUnsupported is returned at startup when a speech engine is not
	// available in the runtime. The feature is disabled, not retried.
	ErrUnsupported = errors.New("speech not supported in this runtime")

	// ErrNoActiveTurn is returned by cancel operations when no turn is in
	// flight. Callers treat it as a no-op.
	ErrNoActiveTurn = errors.New("no active turn")
)

// IsCancelled reports whether err represents a user or context initiated
// abort. Cancellation must be checked before any other error kind, since an
// aborted network call and a real failure are otherwise indistinguishable.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
