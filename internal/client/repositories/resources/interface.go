package resources

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/keeper/internal/client/models"
)

// ErrNotFound is returned when no live resource has the given id.
var ErrNotFound = errors.New("resource not found")

// Repository describes CRUD and sync queries for Resource objects.
type Repository interface {
	// Upsert inserts a resource or replaces the one with the same ID.
	Upsert(ctx context.Context, r *models.Resource) error

	// List returns live resources ordered by name.
	List(ctx context.Context) ([]models.Resource, error)

	// ListByFolder returns live resources inside folderID; an empty
	// folderID selects the root.
	ListByFolder(ctx context.Context, folderID string) ([]models.Resource, error)

	// GetByID returns a live resource.
	GetByID(ctx context.Context, id string) (*models.Resource, error)

	// DeleteByID turns a resource into a pending tombstone.
	DeleteByID(ctx context.Context, id string) error

	// ListPending returns resources, tombstones included, with local
	// changes not yet pushed.
	ListPending(ctx context.Context) ([]models.Resource, error)

	// MarkSynced clears the pending flag and records the server version.
	// Synced tombstones are removed.
	MarkSynced(ctx context.Context, id string, version int64) error
}
