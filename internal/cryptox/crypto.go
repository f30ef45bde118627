// Package cryptox holds the key derivation and sealing primitives used by
// the local stores: argon2id for deriving keys, SHA-256 verifiers for key
// checks, and AES-GCM for sealing records at rest.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/argon2"
)

// KeySize is the length of every key produced by DeriveKey.
const KeySize = 32

// ErrInvalidNonce is returned by Open when the nonce has the wrong length.
var ErrInvalidNonce = errors.New("invalid nonce size")

// MakeVerifier returns a digest of key that can be stored next to data
// encrypted with it, so a later open can tell a wrong key from a broken file.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// DeriveKey stretches secret with salt into a KeySize-byte key using
// argon2id (1 pass, 64 MiB, 4 lanes).
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, KeySize)
}

// Seal encrypts plaintext with AES-GCM under key using a fresh random
// nonce. additional is authenticated but not encrypted and must be passed
// unchanged to Open.
func Seal(plaintext, key, additional []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	return aesgcm.Seal(nil, nonce, plaintext, additional), nonce, nil
}

// Open reverses Seal.
func Open(ciphertext, nonce, key, additional []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, ErrInvalidNonce
	}
	return aesgcm.Open(nil, nonce, ciphertext, additional)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
