// Package storage is the database engine of the client: it opens the
// per-account SQLite files, checks that the caller holds the right key,
// applies the embedded goose migrations, and exposes statement execution
// with typed result rows.
package storage

import (
	"context"
	"errors"
	"io/fs"
)

// Extension is the file extension of per-account database files.
const Extension = "sqlite"

// ErrInvalidKey is returned by Open when the file was created with a
// different key.
var ErrInvalidKey = errors.New("database key mismatch")

// Executor runs statements. Both a Connection and the connection manager
// satisfy it, so repositories do not care which one they are given.
type Executor interface {
	Execute(ctx context.Context, statement string, args ...any) error
	LoadRows(ctx context.Context, query string, args ...any) ([]Row, error)
}

// Connection is an open database. No method may be called after Close.
type Connection interface {
	Executor
	Close() error
}

// Engine opens database files.
type Engine interface {
	// Open opens (creating if needed) the database at path, verifies key
	// and applies migrations. migrations may be nil.
	Open(ctx context.Context, path string, key []byte, migrations fs.FS) (Connection, error)
}

// DatabaseFiles lists the file at path and the sidecar files SQLite may
// leave next to it.
func DatabaseFiles(path string) []string {
	return []string{path, path + "-journal", path + "-wal", path + "-shm"}
}
