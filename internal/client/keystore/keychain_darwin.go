//go:build darwin

package keystore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gokeychain "github.com/keybase/go-keychain"
)

// ServicePrefix namespaces every Keychain item written by keeper. The
// service attribute is ServicePrefix + record key; the account attribute
// is the record tag.
const ServicePrefix = "com.keeper."

// biometricLabel is the Keychain Access label prefix of gated items.
const biometricLabel = "keeper (protected): "

// KeychainStore keeps records as generic passwords in the macOS Keychain,
// scoped to this device and never synchronized. Reads that declare
// RequiresBiometric pass through the gate first.
type KeychainStore struct {
	gate Gate
}

// NewKeychainStore returns a Keychain-backed store.
func NewKeychainStore(gate Gate) (*KeychainStore, error) {
	if gate == nil {
		gate = AllowAll
	}
	return &KeychainStore{gate: gate}, nil
}

func service(key string) string { return ServicePrefix + key }

func (s *KeychainStore) Save(ctx context.Context, data []byte, q Query) error {
	if q.Tag == "" {
		return ErrEmptyTag
	}
	// update = delete + add
	_ = gokeychain.DeleteGenericPasswordItem(service(q.Key), q.Tag)

	label := "keeper: " + q.Key
	if q.RequiresBiometric {
		label = biometricLabel + q.Key
	}
	item := gokeychain.NewGenericPassword(service(q.Key), q.Tag, label, data, "")
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	if err := gokeychain.AddItem(item); err != nil {
		return fmt.Errorf("keychain add %s/%s: %w", q.Key, q.Tag, err)
	}
	return nil
}

func (s *KeychainStore) LoadFirst(ctx context.Context, q Query) ([]byte, bool, error) {
	tags, err := s.tags(q)
	if err != nil || len(tags) == 0 {
		return nil, false, err
	}
	data, err := s.read(ctx, q, tags[0])
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	return data, true, nil
}

func (s *KeychainStore) LoadAll(ctx context.Context, q Query) ([][]byte, error) {
	tags, err := s.tags(q)
	if err != nil {
		return nil, err
	}
	if q.RequiresBiometric && len(tags) > 0 {
		if err := verify(ctx, s.gate, q); err != nil {
			return nil, err
		}
		q.RequiresBiometric = false
	}
	out := make([][]byte, 0, len(tags))
	for _, tag := range tags {
		data, err := s.read(ctx, q, tag)
		if err != nil {
			return nil, err
		}
		if data != nil {
			out = append(out, data)
		}
	}
	return out, nil
}

func (s *KeychainStore) read(ctx context.Context, q Query, tag string) ([]byte, error) {
	if q.RequiresBiometric {
		if err := verify(ctx, s.gate, Query{Key: q.Key, Tag: tag}); err != nil {
			return nil, err
		}
	}
	data, err := gokeychain.GetGenericPassword(service(q.Key), tag, "", "")
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s/%s: %w", q.Key, tag, err)
	}
	return data, nil
}

func (s *KeychainStore) LoadMeta(ctx context.Context, q Query) ([]Meta, error) {
	tags, err := s.tags(q)
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(tags))
	for _, tag := range tags {
		out = append(out, Meta{Key: q.Key, Tag: tag})
	}
	return out, nil
}

func (s *KeychainStore) Delete(ctx context.Context, q Query) error {
	tags, err := s.tags(q)
	if err != nil {
		return err
	}
	var errs []error
	for _, tag := range tags {
		err := gokeychain.DeleteGenericPasswordItem(service(q.Key), tag)
		if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
			errs = append(errs, fmt.Errorf("keychain delete %s/%s: %w", q.Key, tag, err))
		}
	}
	return errors.Join(errs...)
}

func (s *KeychainStore) tags(q Query) ([]string, error) {
	accounts, err := gokeychain.GetGenericPasswordAccounts(service(q.Key))
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain list %s: %w", q.Key, err)
	}
	var out []string
	for _, a := range accounts {
		if strings.TrimSpace(a) == "" {
			continue
		}
		if q.Tag == "" || a == q.Tag {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out, nil
}
