package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJSON_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"data_dir":         "/from/json",
		"preferences_file": "/from/json/prefs.yaml",
		"keystore_file":    "/from/json/ks.db",
	})

	t.Run("loads from flags", func(t *testing.T) {
		cfg := &Config{DataDir: "/default", LogLevel: "warn"}
		require.NoError(t, parseJSON(cfg, []string{"-config", pathFlag}))

		assert.Equal(t, "/from/json", cfg.DataDir)
		assert.Equal(t, "/from/json/prefs.yaml", cfg.PreferencesFile)
		assert.Equal(t, "/from/json/ks.db", cfg.KeystoreFile)
		assert.Equal(t, "warn", cfg.LogLevel, "absent keys keep earlier values")
	})

	t.Run("no flag → no changes", func(t *testing.T) {
		cfg := &Config{DataDir: "/default"}
		require.NoError(t, parseJSON(cfg, []string{"accounts", "list"}))
		assert.Equal(t, "/default", cfg.DataDir)
	})

	t.Run("invalid JSON → error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		err := parseJSON(&Config{}, []string{"-c", bad})
		require.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("missing file → error", func(t *testing.T) {
		err := parseJSON(&Config{}, []string{"-c", filepath.Join(dir, "absent.json")})
		require.ErrorContains(t, err, "failed to read config")
	})
}
