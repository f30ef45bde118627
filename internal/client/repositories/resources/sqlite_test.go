package resources

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/keeper/internal/client/database"
	"github.com/dmitrijs2005/keeper/internal/client/migrations"
	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func setupRepo(t *testing.T) (*SQLiteRepository, storage.Connection) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "res.sqlite")
	conn, err := storage.NewSQLiteEngine(logging.Discard()).Open(context.Background(), path, []byte("k"), migrations.Migrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	r := NewSQLiteRepository(conn)
	r.now = func() time.Time { return fixed }
	return r, conn
}

func password(id, name, folder string) *models.Resource {
	return &models.Resource{
		ID:        id,
		Type:      models.ResourceTypePassword,
		FolderID:  folder,
		Name:      name,
		Payload:   []byte("enc-" + id),
		Version:   1,
		UpdatedAt: fixed,
	}
}

func TestUpsert_InsertAndUpdate(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	res := password("id1", "mail", "")
	require.NoError(t, r.Upsert(ctx, res))

	got, err := r.GetByID(ctx, "id1")
	require.NoError(t, err)
	if diff := cmp.Diff(res, got); diff != "" {
		t.Fatalf("resource mismatch (-want +got):\n%s", diff)
	}

	res.Name = "mail (work)"
	res.Payload = []byte("enc-2")
	res.Version = 2
	res.Pending = true
	require.NoError(t, r.Upsert(ctx, res))

	got, err = r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "mail (work)", got.Name)
	assert.Equal(t, []byte("enc-2"), got.Payload)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.Pending)
}

func TestUpsert_ZeroTimeUsesClock(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	res := password("id1", "mail", "")
	res.UpdatedAt = time.Time{}
	require.NoError(t, r.Upsert(ctx, res))

	got, err := r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(fixed))
}

func TestList_OrderedAndLiveOnly(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, password("3", "zeta", "")))
	require.NoError(t, r.Upsert(ctx, password("1", "alpha", "")))
	require.NoError(t, r.Upsert(ctx, password("2", "beta", "")))
	require.NoError(t, r.DeleteByID(ctx, "2"))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}

func TestListByFolder(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	folder := &models.Resource{ID: "f", Type: models.ResourceTypeFolder, Name: "work", Payload: []byte("x")}
	require.NoError(t, r.Upsert(ctx, folder))
	require.NoError(t, r.Upsert(ctx, password("a", "vpn", "f")))
	require.NoError(t, r.Upsert(ctx, password("b", "mail", "")))

	inside, err := r.ListByFolder(ctx, "f")
	require.NoError(t, err)
	require.Len(t, inside, 1)
	assert.Equal(t, "a", inside[0].ID)
	assert.Equal(t, "f", inside[0].FolderID)

	root, err := r.ListByFolder(ctx, "")
	require.NoError(t, err)
	var ids []string
	for _, res := range root {
		ids = append(ids, res.ID)
	}
	assert.Equal(t, []string{"b", "f"}, ids)
}

func TestGetByID_NotFound(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	_, err := r.GetByID(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Upsert(ctx, password("x", "x", "")))
	require.NoError(t, r.DeleteByID(ctx, "x"))
	_, err = r.GetByID(ctx, "x")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteByID_SoftDeletesOnce(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, password("x", "x", "")))
	require.NoError(t, r.DeleteByID(ctx, "x"))
	require.ErrorIs(t, r.DeleteByID(ctx, "x"), ErrNotFound)
	require.ErrorIs(t, r.DeleteByID(ctx, "missing"), ErrNotFound)

	pending, err := r.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Deleted)
	assert.True(t, pending[0].Pending)
}

func TestMarkSynced(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	live := password("live", "a", "")
	live.Pending = true
	require.NoError(t, r.Upsert(ctx, live))
	require.NoError(t, r.Upsert(ctx, password("gone", "b", "")))
	require.NoError(t, r.DeleteByID(ctx, "gone"))

	require.NoError(t, r.MarkSynced(ctx, "live", 7))
	require.NoError(t, r.MarkSynced(ctx, "gone", 8))

	pending, err := r.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := r.GetByID(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
	assert.False(t, got.Pending)

	_, err = r.GetByID(ctx, "gone")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScan_CorruptRowFails(t *testing.T) {
	r, conn := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, conn.Execute(ctx,
		`INSERT INTO resources (id, type, name, payload, updated_at) VALUES ('x', 'password', 'n', 'not a blob', 'now')`))

	_, err := r.List(ctx)
	require.ErrorIs(t, err, storage.ErrDecode)
}

func TestClosedDatabase(t *testing.T) {
	m := database.NewManager(nil, nil, nil, nil, logging.Discard())
	defer m.Unload()
	r := NewSQLiteRepository(m)
	ctx := context.Background()

	require.ErrorIs(t, r.Upsert(ctx, password("x", "x", "")), database.ErrConnectionClosed)
	_, err := r.List(ctx)
	require.ErrorIs(t, err, database.ErrConnectionClosed)
	require.ErrorIs(t, r.DeleteByID(ctx, "x"), database.ErrConnectionClosed)
	require.ErrorIs(t, r.MarkSynced(ctx, "x", 1), database.ErrConnectionClosed)
}
