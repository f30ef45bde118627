package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Secure store backends.
const (
	KeystoreSQLite   = "sqlite"
	KeystoreKeychain = "keychain"
	KeystoreMemory   = "memory"
)

// Config holds runtime settings for the keeper CLI.
type Config struct {
	DataDir         string
	PreferencesFile string
	KeystoreBackend string
	KeystoreFile    string
	LogLevel        string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.PreferencesFile = ""
	c.KeystoreBackend = KeystoreSQLite
	c.KeystoreFile = ""
	c.LogLevel = "warn"
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "keeper")
	}
	return ".keeper"
}

// PreferencesPath is PreferencesFile or its default inside DataDir.
func (c *Config) PreferencesPath() string {
	if c.PreferencesFile != "" {
		return c.PreferencesFile
	}
	return filepath.Join(c.DataDir, "preferences.yaml")
}

// KeystorePath is KeystoreFile or its default inside DataDir.
func (c *Config) KeystorePath() string {
	if c.KeystoreFile != "" {
		return c.KeystoreFile
	}
	return filepath.Join(c.DataDir, "keystore.db")
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data dir is empty")
	}
	switch c.KeystoreBackend {
	case KeystoreSQLite, KeystoreKeychain, KeystoreMemory:
	default:
		return fmt.Errorf("unknown keystore backend %q", c.KeystoreBackend)
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags found in args. Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
