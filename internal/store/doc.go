// Package store provides the key/value persistence backing graphrag settings.
//
// # Architecture
//
// Backend is a flat string key/value interface. SQLiteStore implements it on
// a single table:
//
//	settings(key TEXT PRIMARY KEY, value TEXT, updated_at TEXT)
//
// Two drivers are supported. "sqlite" (modernc.org/sqlite, pure Go) is the
// default; "sqlite3" (github.com/mattn/go-sqlite3) is available for cgo builds.
// WAL mode is enabled and the schema is created on open.
//
// MockStore is the in-memory implementation used by tests.
//
// # Errors
//
// Get returns ErrNotFound for missing keys.
package store
