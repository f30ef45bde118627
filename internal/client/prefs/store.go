// Package prefs is the plain (unencrypted) preference store of the client.
// It keeps small scalar and list values, such as the ordered list of
// registered accounts, under well-known keys.
package prefs

import "context"

// Store persists values by key. Values are encoded with YAML semantics, so
// any type yaml.v3 can marshal is accepted.
type Store interface {
	// Load decodes the value stored under key into out. It reports false
	// with a nil error when the key is absent.
	Load(ctx context.Context, key string, out any) (bool, error)
	// Save replaces the value stored under key.
	Save(ctx context.Context, key string, value any) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Load is a typed wrapper around Store.Load.
func Load[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var v T
	ok, err := s.Load(ctx, key, &v)
	if err != nil || !ok {
		var zero T
		return zero, ok, err
	}
	return v, true, nil
}
