package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.NotEmpty(t, c.DataDir)
	assert.Equal(t, KeystoreSQLite, c.KeystoreBackend)
	assert.Equal(t, "warn", c.LogLevel)
	assert.Equal(t, filepath.Join(c.DataDir, "preferences.yaml"), c.PreferencesPath())
	assert.Equal(t, filepath.Join(c.DataDir, "keystore.db"), c.KeystorePath())
}

func TestPaths_Explicit(t *testing.T) {
	c := Config{DataDir: "/d", PreferencesFile: "/p.yaml", KeystoreFile: "/k.db"}
	assert.Equal(t, "/p.yaml", c.PreferencesPath())
	assert.Equal(t, "/k.db", c.KeystorePath())
}

func TestValidate(t *testing.T) {
	c := Config{DataDir: "/d", KeystoreBackend: KeystoreKeychain}
	require.NoError(t, c.Validate())

	c.KeystoreBackend = "vault"
	require.ErrorContains(t, c.Validate(), `unknown keystore backend "vault"`)

	c = Config{KeystoreBackend: KeystoreMemory}
	require.Error(t, c.Validate())
}

func TestLoadConfig_NoArgsUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	var want Config
	want.LoadDefaults()
	assert.Equal(t, &want, cfg)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeTempJSON(t, "", "", map[string]any{
		"data_dir":         "/from/json",
		"keystore_backend": "memory",
		"log_level":        "info",
	})

	cfg, err := LoadConfig([]string{"accounts", "list", "-c", path, "--log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, "/from/json", cfg.DataDir)
	assert.Equal(t, KeystoreMemory, cfg.KeystoreBackend)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_InvalidBackend(t *testing.T) {
	_, err := LoadConfig([]string{"-k", "nope"})
	require.Error(t, err)
}
