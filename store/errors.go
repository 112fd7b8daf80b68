package store

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned by every write attempted without an active
// user session.
var ErrUnauthenticated = errors.New("no active user session")

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an update target missing from the user's collection.
// Deletes never produce it; deleting an absent document is treated as
// already-absent.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// SyncError wraps a subscription or write failure against the external
// document store.
type SyncError struct {
	Op  string
	Err error
}

func (e SyncError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Op, e.Err)
}

func (e SyncError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
