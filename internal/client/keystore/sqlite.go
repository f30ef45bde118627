package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/keeper/internal/common"
	"github.com/dmitrijs2005/keeper/internal/cryptox"

	_ "modernc.org/sqlite"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS secure_records (
  key       TEXT    NOT NULL,
  tag       TEXT    NOT NULL,
  biometric INTEGER NOT NULL DEFAULT 0,
  nonce     BLOB    NOT NULL,
  data      BLOB    NOT NULL,
  PRIMARY KEY (key, tag)
);`

// SQLiteStore keeps records in a SQLite file, each sealed with AES-GCM
// under a device key stored next to the database (path + ".key", 0600).
// The record address is bound as additional data, so a sealed blob copied
// to another key or tag fails to open.
type SQLiteStore struct {
	db      *sql.DB
	sealKey []byte
	gate    Gate
}

// NewSQLiteStore opens (or creates) the store at path.
func NewSQLiteStore(ctx context.Context, path string, gate Gate) (*SQLiteStore, error) {
	if gate == nil {
		gate = AllowAll
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore dir: %w", err)
	}

	sealKey, err := loadOrCreateSealKey(path + ".key")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, recordsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init keystore: %w", err)
	}
	return &SQLiteStore{db: db, sealKey: sealKey, gate: gate}, nil
}

func loadOrCreateSealKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != cryptox.KeySize {
			return nil, fmt.Errorf("keystore key file %s is corrupted", path)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read keystore key: %w", err)
	}

	key = common.GenerateRandByteArray(cryptox.KeySize)
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write keystore key: %w", err)
	}
	return key, nil
}

// Close releases the database handle and wipes the sealing key.
func (s *SQLiteStore) Close() error {
	common.WipeByteArray(s.sealKey)
	return s.db.Close()
}

func address(key, tag string) []byte {
	return []byte(key + "/" + tag)
}

func (s *SQLiteStore) Save(ctx context.Context, data []byte, q Query) error {
	if q.Tag == "" {
		return ErrEmptyTag
	}
	sealed, nonce, err := cryptox.Seal(data, s.sealKey, address(q.Key, q.Tag))
	if err != nil {
		return fmt.Errorf("failed to seal %s record: %w", q.Key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secure_records (key, tag, biometric, nonce, data) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key, tag) DO UPDATE SET biometric = excluded.biometric,
			nonce = excluded.nonce, data = excluded.data
	`, q.Key, q.Tag, q.RequiresBiometric, nonce, sealed)
	if err != nil {
		return fmt.Errorf("failed to save %s record: %w", q.Key, err)
	}
	return nil
}

func (s *SQLiteStore) LoadFirst(ctx context.Context, q Query) ([]byte, bool, error) {
	all, err := s.load(ctx, q, true)
	if err != nil || len(all) == 0 {
		return nil, false, err
	}
	return all[0], true, nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context, q Query) ([][]byte, error) {
	return s.load(ctx, q, false)
}

func (s *SQLiteStore) load(ctx context.Context, q Query, first bool) ([][]byte, error) {
	query := `SELECT tag, biometric, nonce, data FROM secure_records WHERE key = ?`
	args := []any{q.Key}
	if q.Tag != "" {
		query += ` AND tag = ?`
		args = append(args, q.Tag)
	}
	query += ` ORDER BY tag`
	if first {
		query += ` LIMIT 1`
	}

	type row struct {
		tag       string
		biometric bool
		nonce     []byte
		data      []byte
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", q.Key, err)
	}
	var matched []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.tag, &r.biometric, &r.nonce, &r.data); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan %s record: %w", q.Key, err)
		}
		matched = append(matched, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate %s records: %w", q.Key, err)
	}
	_ = rows.Close()

	for _, r := range matched {
		if r.biometric {
			if err := verify(ctx, s.gate, q); err != nil {
				return nil, err
			}
			break
		}
	}

	out := make([][]byte, 0, len(matched))
	for _, r := range matched {
		plain, err := cryptox.Open(r.data, r.nonce, s.sealKey, address(q.Key, r.tag))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s record of %s: %w", q.Key, r.tag, err)
		}
		out = append(out, plain)
	}
	return out, nil
}

func (s *SQLiteStore) LoadMeta(ctx context.Context, q Query) ([]Meta, error) {
	query := `SELECT key, tag FROM secure_records WHERE key = ?`
	args := []any{q.Key}
	if q.Tag != "" {
		query += ` AND tag = ?`
		args = append(args, q.Tag)
	}
	query += ` ORDER BY tag`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", q.Key, err)
	}
	defer rows.Close()

	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.Key, &m.Tag); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", q.Key, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s records: %w", q.Key, err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, q Query) error {
	var err error
	if q.Tag == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM secure_records WHERE key = ?`, q.Key)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM secure_records WHERE key = ? AND tag = ?`, q.Key, q.Tag)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s records: %w", q.Key, err)
	}
	return nil
}
