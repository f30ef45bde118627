package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected *Config
		name     string
		args     []string
	}{
		{
			name:     "short flags",
			args:     []string{"-d", "/data", "-k", "memory", "-l", "debug"},
			expected: &Config{DataDir: "/data", KeystoreBackend: "memory", LogLevel: "debug"},
		},
		{
			name:     "long flags with equals",
			args:     []string{"--data-dir=/data", "--keystore=keychain", "--log-level=error"},
			expected: &Config{DataDir: "/data", KeystoreBackend: "keychain", LogLevel: "error"},
		},
		{
			name:     "subcommands and foreign flags ignored",
			args:     []string{"vault", "query", "--json", "-d", "/data", "SELECT 1"},
			expected: &Config{DataDir: "/data", KeystoreBackend: "sqlite", LogLevel: "warn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{KeystoreBackend: "sqlite", LogLevel: "warn"}
			require.NoError(t, parseFlags(cfg, tt.args))
			assert.Empty(t, cmp.Diff(tt.expected, cfg))
		})
	}
}
