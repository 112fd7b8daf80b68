package api

import (
	"context"

	"taskflow-api/store"
)

// Sessions hands out the per-user live session used by handlers.
type Sessions interface {
	Session(userID string) *store.Session
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper suppresses duplicate submissions of the same mutation.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails.
	Remove(ctx context.Context, userID, key string) error
}
