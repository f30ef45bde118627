package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
)

const columns = `id, type, folder_id, name, payload, version, deleted, pending, updated_at`

// SQLiteRepository implements Repository over a storage.Executor.
type SQLiteRepository struct {
	db  storage.Executor
	now func() time.Time
}

// NewSQLiteRepository returns a repository running its statements on db.
func NewSQLiteRepository(db storage.Executor) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *SQLiteRepository) timestamp(t time.Time) string {
	if t.IsZero() {
		t = r.now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Upsert inserts or replaces a resource by id.
func (r *SQLiteRepository) Upsert(ctx context.Context, res *models.Resource) error {
	query := `INSERT INTO resources (` + columns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET type = excluded.type,
				folder_id = excluded.folder_id,
				name = excluded.name,
				payload = excluded.payload,
				version = excluded.version,
				deleted = excluded.deleted,
				pending = excluded.pending,
				updated_at = excluded.updated_at
	`
	payload := res.Payload
	if payload == nil {
		payload = []byte{}
	}
	err := r.db.Execute(ctx, query,
		res.ID, string(res.Type), nullable(res.FolderID), res.Name, payload,
		res.Version, res.Deleted, res.Pending, r.timestamp(res.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert resource: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Resource, error) {
	return r.query(ctx, "list resources",
		`SELECT `+columns+` FROM resources WHERE deleted = 0 ORDER BY name, id`)
}

func (r *SQLiteRepository) ListByFolder(ctx context.Context, folderID string) ([]models.Resource, error) {
	if folderID == "" {
		return r.query(ctx, "list resources",
			`SELECT `+columns+` FROM resources WHERE deleted = 0 AND folder_id IS NULL ORDER BY name, id`)
	}
	return r.query(ctx, "list resources",
		`SELECT `+columns+` FROM resources WHERE deleted = 0 AND folder_id = ? ORDER BY name, id`, folderID)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	list, err := r.query(ctx, "get resource",
		`SELECT `+columns+` FROM resources WHERE deleted = 0 AND id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &list[0], nil
}

// DeleteByID marks a live resource deleted and pending. It fails with
// ErrNotFound when no live resource matched.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	rows, err := r.db.LoadRows(ctx,
		`UPDATE resources SET deleted = 1, pending = 1, updated_at = ? WHERE id = ? AND deleted = 0 RETURNING id`,
		r.timestamp(time.Time{}), id)
	if err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context) ([]models.Resource, error) {
	return r.query(ctx, "list pending resources",
		`SELECT `+columns+` FROM resources WHERE pending = 1 ORDER BY updated_at, id`)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	if err := r.db.Execute(ctx, `DELETE FROM resources WHERE id = ? AND deleted = 1`, id); err != nil {
		return fmt.Errorf("failed to purge resource: %w", err)
	}
	if err := r.db.Execute(ctx, `UPDATE resources SET pending = 0, version = ? WHERE id = ?`, version, id); err != nil {
		return fmt.Errorf("failed to mark resource synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, op, query string, args ...any) ([]models.Resource, error) {
	rows, err := r.db.LoadRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	result := make([]models.Resource, 0, len(rows))
	for _, row := range rows {
		res, err := scan(row)
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", op, err)
		}
		result = append(result, res)
	}
	return result, nil
}

func scan(row storage.Row) (models.Resource, error) {
	var (
		res models.Resource
		typ string
		err error
	)
	if res.ID, err = row.Text("id"); err != nil {
		return res, err
	}
	if typ, err = row.Text("type"); err != nil {
		return res, err
	}
	res.Type = models.ResourceType(typ)
	if res.FolderID, err = row.OptionalText("folder_id"); err != nil {
		return res, err
	}
	if res.Name, err = row.Text("name"); err != nil {
		return res, err
	}
	if res.Payload, err = row.Blob("payload"); err != nil {
		return res, err
	}
	if res.Version, err = row.Int("version"); err != nil {
		return res, err
	}
	if res.Deleted, err = row.Bool("deleted"); err != nil {
		return res, err
	}
	if res.Pending, err = row.Bool("pending"); err != nil {
		return res, err
	}
	if res.UpdatedAt, err = row.Time("updated_at"); err != nil {
		return res, err
	}
	return res, nil
}
