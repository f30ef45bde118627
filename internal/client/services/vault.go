package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/repositories/resources"
	"github.com/dmitrijs2005/keeper/internal/cryptox"
	"github.com/google/uuid"
)

// Secret is the decrypted content of a resource.
type Secret struct {
	Type     models.ResourceType `json:"type"`
	Name     string              `json:"name"`
	FolderID string              `json:"folder_id,omitempty"`
	Fields   map[string]string   `json:"fields"`
}

// KeySource yields the key that encrypts resource payloads.
// SessionService implements it.
type KeySource interface {
	PrivateKey() ([]byte, error)
}

// VaultService stores secrets of the authorized account. Payloads are
// sealed with the account's private key; names stay readable so listings
// need no key.
type VaultService struct {
	repo resources.Repository
	keys KeySource
	now  func() time.Time
}

func NewVaultService(repo resources.Repository, keys KeySource) *VaultService {
	return &VaultService{repo: repo, keys: keys, now: time.Now}
}

// Add encrypts and stores a new secret and returns its id. The resource is
// pending until the next sync.
func (s *VaultService) Add(ctx context.Context, secret Secret) (string, error) {
	key, err := s.keys.PrivateKey()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	plain, err := json.Marshal(secret)
	if err != nil {
		return "", fmt.Errorf("encoding error: %w", err)
	}
	ct, nonce, err := cryptox.Seal(plain, key, []byte(id))
	if err != nil {
		return "", fmt.Errorf("encryption error: %w", err)
	}

	res := &models.Resource{
		ID:        id,
		Type:      secret.Type,
		FolderID:  secret.FolderID,
		Name:      secret.Name,
		Payload:   append(nonce, ct...),
		Pending:   true,
		UpdatedAt: s.now(),
	}
	if err := s.repo.Upsert(ctx, res); err != nil {
		return "", fmt.Errorf("saving error: %w", err)
	}
	return id, nil
}

// List returns the live resources without decrypting them.
func (s *VaultService) List(ctx context.Context) ([]models.Resource, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing resources: %w", err)
	}
	return list, nil
}

// Get decrypts a secret.
func (s *VaultService) Get(ctx context.Context, id string) (*Secret, error) {
	key, err := s.keys.PrivateKey()
	if err != nil {
		return nil, err
	}
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error retrieving resource: %w", err)
	}

	const nonceSize = 12
	if len(res.Payload) < nonceSize {
		return nil, fmt.Errorf("error decrypting resource %s: payload too short", id)
	}
	plain, err := cryptox.Open(res.Payload[nonceSize:], res.Payload[:nonceSize], key, []byte(id))
	if err != nil {
		return nil, fmt.Errorf("error decrypting resource %s: %w", id, err)
	}

	var secret Secret
	if err := json.Unmarshal(plain, &secret); err != nil {
		return nil, fmt.Errorf("error decoding resource %s: %w", id, err)
	}
	return &secret, nil
}

func (s *VaultService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("error deleting resource: %w", err)
	}
	return nil
}
