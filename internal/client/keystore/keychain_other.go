//go:build !darwin

package keystore

import "fmt"

// KeychainStore is only available on macOS.
type KeychainStore struct {
	*MemoryStore
}

// NewKeychainStore reports ErrUnavailable outside macOS; callers fall back
// to SQLiteStore.
func NewKeychainStore(gate Gate) (*KeychainStore, error) {
	return nil, fmt.Errorf("%w: macOS Keychain is not available on this platform", ErrUnavailable)
}
