// Package keystore is the secure credential store of the client: records
// encrypted at rest, addressed by a key (record kind) and a tag (usually an
// AccountID), some of which require a biometric or user-presence check
// before they can be read.
//
// Backends:
//
//   - SQLiteStore: records sealed with AES-GCM in a local SQLite file
//   - KeychainStore: macOS Keychain generic passwords (darwin only)
//   - MemoryStore: in-memory, for tests and throwaway sessions
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrBiometricRejected is returned when the gate protecting a biometric
	// record refuses access.
	ErrBiometricRejected = errors.New("biometric check rejected")

	// ErrEmptyTag is returned by Save when the query carries no tag.
	ErrEmptyTag = errors.New("record tag is empty")

	// ErrUnavailable is returned when a backend cannot be used on this platform.
	ErrUnavailable = errors.New("secure store unavailable")
)

// Query addresses records. An empty Tag matches every tag of Key in
// LoadFirst, LoadAll, LoadMeta and Delete. RequiresBiometric marks the
// record as gated on Save and declares the intent to pass the gate on reads.
type Query struct {
	Key               string
	Tag               string
	RequiresBiometric bool
}

// Meta describes a stored record without exposing its data.
type Meta struct {
	Key string
	Tag string
}

// Store is the capability the account store consumes.
type Store interface {
	// Save creates or replaces the record at (q.Key, q.Tag).
	Save(ctx context.Context, data []byte, q Query) error
	// LoadFirst returns the first matching record, ordered by tag. It
	// reports false with a nil error when nothing matches.
	LoadFirst(ctx context.Context, q Query) ([]byte, bool, error)
	// LoadAll returns every matching record ordered by tag.
	LoadAll(ctx context.Context, q Query) ([][]byte, error)
	// LoadMeta lists matching records without reading their data, so it
	// never triggers the biometric gate.
	LoadMeta(ctx context.Context, q Query) ([]Meta, error)
	// Delete removes matching records. Deleting nothing is not an error.
	Delete(ctx context.Context, q Query) error
}

// Save encodes v as JSON and stores it.
func Save[T any](ctx context.Context, s Store, v T, q Query) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", q.Key, err)
	}
	return s.Save(ctx, data, q)
}

// LoadFirst loads and decodes the first matching record.
func LoadFirst[T any](ctx context.Context, s Store, q Query) (T, bool, error) {
	var v T
	data, ok, err := s.LoadFirst(ctx, q)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode %s record: %w", q.Key, err)
	}
	return v, true, nil
}

// LoadAll loads and decodes every matching record.
func LoadAll[T any](ctx context.Context, s Store, q Query) ([]T, error) {
	raw, err := s.LoadAll(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", q.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Tags returns the tags of the records matching q.
func Tags(ctx context.Context, s Store, q Query) ([]string, error) {
	meta, err := s.LoadMeta(ctx, q)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(meta))
	for _, m := range meta {
		tags = append(tags, m.Tag)
	}
	return tags, nil
}

func gateReason(q Query) string {
	if q.Tag == "" {
		return q.Key
	}
	return q.Key + " of " + q.Tag
}

func verify(ctx context.Context, g Gate, q Query) error {
	if err := g.Verify(ctx, gateReason(q)); err != nil {
		if errors.Is(err, ErrBiometricRejected) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrBiometricRejected, err)
	}
	return nil
}
