// Package storage provides the durable key-value capability the session
// engine persists through. It defines the Store interface for flat
// key-to-string persistence and the fixed logical keys the engine writes
// under, plus in-memory and file-backed implementations. A PostgreSQL
// implementation lives in the postgres subpackage.
package storage

import "context"

// Fixed logical keys owned by the session engine. No other component
// writes under these keys.
const (
	// KeyLastActivity holds the last activity timestamp in unix
	// milliseconds, as a decimal string.
	KeyLastActivity = "session.last_activity"

	// KeySessionConfig holds the session configuration as JSON.
	KeySessionConfig = "session.config"
)

// Store is an asynchronous flat key-to-string map that survives process
// restarts. Writes must be safe to retry; a failed write must leave
// previously stored values intact.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent;
	// absence is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}
