// Package models defines client-side data models shared by the account
// store, the database connection manager and the repositories.
package models

import "github.com/google/uuid"

// AccountID identifies a locally registered account. It is stable for the
// lifetime of the registration and is used as the tag of every secure
// record and as the base name of the account database file.
type AccountID string

// NewAccountID returns a fresh random AccountID.
func NewAccountID() AccountID {
	return AccountID(uuid.NewString())
}

func (id AccountID) String() string { return string(id) }

// Account binds a login identity to a server. It is never mutated once
// stored; changing it means deleting and storing again.
type Account struct {
	ID          AccountID `json:"id"`
	UserID      string    `json:"user_id"`
	Domain      string    `json:"domain"`
	Fingerprint string    `json:"fingerprint"`
}

// AccountProfile holds the mutable, user-facing details of an account.
type AccountProfile struct {
	AccountID         AccountID `json:"account_id"`
	Label             string    `json:"label"`
	Username          string    `json:"username"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	AvatarImageURL    string    `json:"avatar_image_url"`
	BiometricsEnabled bool      `json:"biometrics_enabled"`
}

// ArmoredPrivateKey is the encrypted private key blob of an account.
type ArmoredPrivateKey string

// Passphrase unlocks an ArmoredPrivateKey. It is only persisted when
// biometrics are enabled for the account.
type Passphrase string
