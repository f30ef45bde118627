// Package config loads runtime configuration for the keeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJSON) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d, --data-dir string    directory holding account databases and local stores
//	-k, --keystore string    secure store backend: sqlite, keychain or memory
//	-l, --log-level string   debug, info, warn or error
//
// # JSON schema
//
//	{
//	  "data_dir": "/home/me/.config/keeper",
//	  "preferences_file": "/home/me/.config/keeper/preferences.yaml",
//	  "keystore_backend": "sqlite",
//	  "keystore_file": "/home/me/.config/keeper/keystore.db",
//	  "log_level": "info"
//	}
//
// Empty JSON values keep the earlier value. PreferencesFile and KeystoreFile
// default to files inside DataDir when left empty.
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
