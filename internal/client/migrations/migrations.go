// Package migrations embeds the goose SQL migrations of the per-account
// database.
package migrations

import "embed"

// Migrations holds the *.sql files at the root of the FS.
//
//go:embed *.sql
var Migrations embed.FS
