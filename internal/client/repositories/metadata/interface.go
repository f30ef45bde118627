// Package metadata stores per-account key/value settings, such as the sync
// cursor, in the account database.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyLastSync     = "last_sync"
	KeySyncCursor   = "sync_cursor"
	KeyLastModified = "last_modified"
)

// Repository reads and writes the metadata table of the open account
// database. Every call fails with database.ErrConnectionClosed while no
// account is unlocked.
type Repository interface {
	// Get returns nil without error for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	// Clear removes every key, e.g. before a full resync.
	Clear(ctx context.Context) error
}
