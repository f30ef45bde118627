package models

import "time"

// ResourceType classifies a synced secret.
type ResourceType string

const (
	ResourceTypePassword ResourceType = "password"
	ResourceTypeTOTP     ResourceType = "totp"
	ResourceTypeFolder   ResourceType = "folder"
	ResourceTypeShare    ResourceType = "share"
)

// Resource is a synced secret stored in an account database.
// Payload holds the encrypted content exactly as received from the server.
type Resource struct {
	// ID is the server identifier of the resource.
	ID string

	Type ResourceType

	// FolderID is empty for resources at the root.
	FolderID string

	Name string

	// Payload is the encrypted body; it is never decrypted by the store.
	Payload []byte

	// Version is the server-assigned version used for sync.
	Version int64

	// Deleted marks a tombstone kept until the next sync.
	Deleted bool

	// Pending marks local changes not yet pushed to the server.
	Pending bool

	// UpdatedAt is the last modification time in UTC.
	UpdatedAt time.Time
}
