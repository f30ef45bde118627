package storage

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/keeper/internal/cryptox"
	"github.com/dmitrijs2005/keeper/internal/dbx"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const keyCheckSchema = `
CREATE TABLE IF NOT EXISTS keeper_key (
  id       INTEGER PRIMARY KEY CHECK (id = 1),
  verifier BLOB NOT NULL
);`

// SQLiteEngine opens database files with modernc.org/sqlite.
type SQLiteEngine struct {
	log logging.Logger
}

func NewSQLiteEngine(log logging.Logger) *SQLiteEngine {
	return &SQLiteEngine{log: log.With("component", "storage")}
}

func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (e *SQLiteEngine) Open(ctx context.Context, path string, key []byte, migrations fs.FS) (Connection, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; LoadRows drains rows before returning
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := checkKey(ctx, db, key); err != nil {
		_ = db.Close()
		return nil, err
	}

	if migrations != nil {
		if err := RunMigrations(ctx, db, migrations); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	e.log.Debug(ctx, "database opened", "path", path)
	return &sqliteConnection{db: db}, nil
}

// RunMigrations applies every pending goose migration found in migrations.
func RunMigrations(ctx context.Context, db *sql.DB, migrations fs.FS) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// checkKey stores a verifier of key in a fresh database, or compares
// against the stored one.
func checkKey(ctx context.Context, db *sql.DB, key []byte) error {
	verifier := cryptox.MakeVerifier(key)

	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, keyCheckSchema); err != nil {
			return fmt.Errorf("failed to prepare key check: %w", err)
		}

		var stored []byte
		err := tx.QueryRowContext(ctx, `SELECT verifier FROM keeper_key WHERE id = 1`).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			if _, err := tx.ExecContext(ctx, `INSERT INTO keeper_key (id, verifier) VALUES (1, ?)`, verifier); err != nil {
				return fmt.Errorf("failed to store key check: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read key check: %w", err)
		}
		if subtle.ConstantTimeCompare(stored, verifier) != 1 {
			return ErrInvalidKey
		}
		return nil
	})
}

type sqliteConnection struct {
	db *sql.DB
}

func (c *sqliteConnection) Execute(ctx context.Context, statement string, args ...any) error {
	if _, err := c.db.ExecContext(ctx, statement, args...); err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

func (c *sqliteConnection) LoadRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values := make([]Value, len(cols))
		for i, v := range raw {
			values[i] = valueOf(v)
		}
		result = append(result, Row{columns: cols, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return result, nil
}

func (c *sqliteConnection) Close() error {
	return c.db.Close()
}
