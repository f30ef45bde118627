// Package common provides small helpers shared by the client packages:
// random byte generation for keys and salts, and wiping of secrets that
// were held in memory.
package common

import (
	"crypto/rand"
)

// GenerateRandByteArray returns size bytes read from crypto/rand.
//
// It panics if the system random source fails, which on supported
// platforms only happens when the process is in an unrecoverable state.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// WipeByteArray overwrites the contents of b with zeros. Use it on
// passphrases and derived keys once they are no longer needed.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
