package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// Keys used by authnotify in the local key-value store.
const (
	// KeyNotifications holds the JSON array of the notification feed.
	KeyNotifications = "notifications"

	// KeyToken holds the current bearer token.
	KeyToken = "token"

	// KeySessionChanged is touched whenever a token kept outside the
	// database changes, so watchers of the database file notice.
	KeySessionChanged = "session_changed"
)

// KV is a durable string key-value store. Implementations must be safe for
// concurrent use.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
