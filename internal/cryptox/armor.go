package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	armorPrefix = "keeper-key-v1:"
	saltSize    = 16
	nonceSize   = 12
)

var (
	// ErrMalformedArmor is returned by Unarmor for text it did not produce.
	ErrMalformedArmor = errors.New("malformed armored key")

	// ErrWrongPassphrase is returned by Unarmor when the passphrase does not
	// open the key.
	ErrWrongPassphrase = errors.New("wrong passphrase")
)

// Armor seals key with a key derived from passphrase and returns it as
// printable text: a version prefix followed by base64(salt | nonce | ciphertext).
func Armor(key, passphrase []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	ct, nonce, err := Seal(key, DeriveKey(passphrase, salt), []byte(armorPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to seal key: %w", err)
	}

	buf := make([]byte, 0, len(salt)+len(nonce)+len(ct))
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = append(buf, ct...)
	return armorPrefix + base64.StdEncoding.EncodeToString(buf), nil
}

// Unarmor reverses Armor.
func Unarmor(armored string, passphrase []byte) ([]byte, error) {
	body, ok := strings.CutPrefix(armored, armorPrefix)
	if !ok {
		return nil, ErrMalformedArmor
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil || len(raw) <= saltSize+nonceSize {
		return nil, ErrMalformedArmor
	}

	salt, nonce, ct := raw[:saltSize], raw[saltSize:saltSize+nonceSize], raw[saltSize+nonceSize:]
	key, err := Open(ct, nonce, DeriveKey(passphrase, salt), []byte(armorPrefix))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return key, nil
}
