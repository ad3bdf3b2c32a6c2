// ABOUTME: Backend interface for graphrag settings persistence
// ABOUTME: A flat key/value store with string values and prefix listing

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// Backend is the key/value store the settings layer persists through.
// Values are opaque strings; callers own their encoding.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put creates or overwrites the value stored under key.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// Compile-time interface checks
var (
	_ Backend = (*SQLiteStore)(nil)
	_ Backend = (*MockStore)(nil)
)
