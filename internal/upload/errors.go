package upload

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify an ingest failure.
var (
	// ErrValidation means the request was rejected before any store call.
	ErrValidation = errors.New("upload validation failed")

	// ErrStorage means the object store write failed; no catalog write was
	// attempted, so nothing is left inconsistent.
	ErrStorage = errors.New("object storage write failed")

	// ErrConsistency means the object was stored but its catalog record was
	// not. The object is an orphan until reconciled.
	ErrConsistency = errors.New("object stored without catalog record")
)

// Client-facing messages. They never include backend detail.
const (
	msgStorageFailed = "Failed to store the uploaded file."
	msgOrphaned      = "File was stored but its metadata could not be saved; it has been flagged for reconciliation."
)

// Error is returned by Coordinator.Ingest for every failed ingest.
type Error struct {
	// Kind is one of ErrValidation, ErrStorage or ErrConsistency.
	Kind error
	// State is the terminal state the ingest stopped in.
	State State
	// StorageKey and Locator are set once a key was assigned; for an orphan
	// they identify the object that needs reconciling.
	StorageKey string
	Locator    string
	// Reason is a safe description of a validation failure.
	Reason string
	// Err is the underlying cause. It is logged, never returned to clients.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	case e.StorageKey != "" && e.Err != nil:
		return fmt.Sprintf("%v (key %s): %v", e.Kind, e.StorageKey, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Message returns the description that is safe to send to a client.
func (e *Error) Message() string {
	switch e.Kind {
	case ErrValidation:
		return e.Reason
	case ErrConsistency:
		return msgOrphaned
	default:
		return msgStorageFailed
	}
}

func validationError(reason string) *Error {
	return &Error{Kind: ErrValidation, State: StateRejected, Reason: reason}
}
