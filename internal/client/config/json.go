package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/keeper/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	DataDir         string `json:"data_dir"`
	PreferencesFile string `json:"preferences_file"`
	KeystoreBackend string `json:"keystore_backend"`
	KeystoreFile    string `json:"keystore_file"`
	LogLevel        string `json:"log_level"`
}

// parseJSON overlays cfg with the JSON file named by -c/-config in args.
// Without such a flag it does nothing.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	overlay(&cfg.DataDir, jc.DataDir)
	overlay(&cfg.PreferencesFile, jc.PreferencesFile)
	overlay(&cfg.KeystoreBackend, jc.KeystoreBackend)
	overlay(&cfg.KeystoreFile, jc.KeystoreFile)
	overlay(&cfg.LogLevel, jc.LogLevel)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
