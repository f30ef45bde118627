package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/keeper/internal/flagx"
)

var knownFlags = []string{
	"-d", "--d", "-data-dir", "--data-dir",
	"-k", "--k", "-keystore", "--keystore",
	"-l", "--l", "-log-level", "--log-level",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Only the flags this package owns are parsed; args is filtered with
// flagx.FilterArgs first, so subcommands and their flags are ignored.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.KeystoreBackend, "k", cfg.KeystoreBackend, "keystore backend")
	fs.StringVar(&cfg.KeystoreBackend, "keystore", cfg.KeystoreBackend, "keystore backend")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}
