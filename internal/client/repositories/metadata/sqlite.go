package metadata

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/keeper/internal/client/storage"
)

// SQLiteRepository implements Repository over a storage.Executor, usually
// the database connection manager.
type SQLiteRepository struct {
	db storage.Executor
}

func NewSQLiteRepository(db storage.Executor) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns (nil, nil) when key is absent.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	rows, err := r.db.LoadRows(ctx, `SELECT value FROM metadata WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	value, err := rows[0].Blob("value")
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	err := r.db.Execute(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.Execute(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if err := r.db.Execute(ctx, `DELETE FROM metadata`); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string][]byte, error) {
	rows, err := r.db.LoadRows(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	result := make(map[string][]byte, len(rows))
	for _, row := range rows {
		key, err := row.Text("key")
		if err != nil {
			return nil, fmt.Errorf("failed to decode metadata row: %w", err)
		}
		value, err := row.Blob("value")
		if err != nil {
			return nil, fmt.Errorf("failed to decode metadata row: %w", err)
		}
		result[key] = value
	}
	return result, nil
}
