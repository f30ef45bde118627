package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/dmitrijs2005/keeper/internal/client/config"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/spf13/cobra"
)

// Factory builds the App for one command invocation.
type Factory func(ctx context.Context, cfg *config.Config) (*App, error)

// DefaultFactory builds an App on the real backends, logging to errOut.
func DefaultFactory(in *os.File, out, errOut io.Writer) Factory {
	return func(ctx context.Context, cfg *config.Config) (*App, error) {
		log := logging.NewTextLogger(errOut, cfg.LogLevel)
		return NewApp(ctx, cfg, log, in, out)
	}
}

// NewRootCommand returns the keeper command tree. rawArgs are the process
// arguments; configuration is loaded from them with config.LoadConfig so
// that JSON and flags follow one precedence order.
func NewRootCommand(rawArgs []string, factory Factory) *cobra.Command {
	withApp := func(fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rawArgs)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := factory(ctx, cfg)
			if err != nil {
				return err
			}
			app.Start(ctx)
			return errors.Join(fn(ctx, app, args), app.Close())
		}
	}

	root := &cobra.Command{
		Use:           "keeper",
		Short:         "Local-first credential manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withApp(func(ctx context.Context, a *App, _ []string) error {
			return a.Shell(ctx)
		}),
	}
	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "path to JSON config file")
	pf.StringP("data-dir", "d", "", "data directory")
	pf.StringP("keystore", "k", "", "secure store backend: sqlite, keychain or memory")
	pf.StringP("log-level", "l", "", "log level: debug, info, warn or error")

	root.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *App, _ []string) error {
			return a.Shell(ctx)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the session and database state",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *App, _ []string) error {
			return a.Status(ctx)
		}),
	})

	root.AddCommand(newAccountsCommand(withApp), newVaultCommand(withApp))
	return root
}

type appRunner func(fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error

func newAccountsCommand(withApp appRunner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage local accounts",
	}

	var yes bool
	remove := &cobra.Command{
		Use:   "remove <account>",
		Short: "Remove an account and all of its local data",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *App, args []string) error {
			return a.RemoveAccount(ctx, args[0], !yes)
		}),
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered accounts",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *App, _ []string) error {
				return a.ListAccounts(ctx)
			}),
		},
		&cobra.Command{
			Use:   "add",
			Short: "Register a new account",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *App, _ []string) error {
				return a.AddAccount(ctx)
			}),
		},
		remove,
		&cobra.Command{
			Use:   "reconcile",
			Short: "Remove partially stored accounts and orphaned data",
			Args:  cobra.NoArgs,
			RunE: withApp(func(ctx context.Context, a *App, _ []string) error {
				return a.Reconcile(ctx)
			}),
		},
	)
	return cmd
}

func newVaultCommand(withApp appRunner) *cobra.Command {
	var account string

	unlocked := func(fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error {
		return withApp(func(ctx context.Context, a *App, args []string) error {
			if err := a.Unlock(ctx, account); err != nil {
				return err
			}
			return fn(ctx, a, args)
		})
	}

	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Work with the secrets of an account",
	}
	cmd.PersistentFlags().StringVarP(&account, "account", "a", "", "account id, id prefix or label (default: last used)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List secrets",
			Args:  cobra.NoArgs,
			RunE: unlocked(func(ctx context.Context, a *App, _ []string) error {
				return a.ListSecrets(ctx)
			}),
		},
		&cobra.Command{
			Use:   "add",
			Short: "Add a secret",
			Args:  cobra.NoArgs,
			RunE: unlocked(func(ctx context.Context, a *App, _ []string) error {
				return a.AddSecret(ctx)
			}),
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Decrypt and print a secret",
			Args:  cobra.ExactArgs(1),
			RunE: unlocked(func(ctx context.Context, a *App, args []string) error {
				return a.ShowSecret(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a secret",
			Args:  cobra.ExactArgs(1),
			RunE: unlocked(func(ctx context.Context, a *App, args []string) error {
				return a.DeleteSecret(ctx, args[0])
			}),
		},
	)
	return cmd
}

// Execute runs the keeper command line with args, without the program name.
func Execute(ctx context.Context, args []string, in *os.File, out, errOut io.Writer) error {
	root := NewRootCommand(args, DefaultFactory(in, out, errOut))
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.ExecuteContext(ctx)
}
