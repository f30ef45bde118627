package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the command surface the REPL needs. *App satisfies it;
// tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	ListAccounts(ctx context.Context) error
	AddAccount(ctx context.Context) error
	Unlock(ctx context.Context, ref string) error
	Lock(ctx context.Context) error
	SignOut(ctx context.Context) error
	RemoveAccount(ctx context.Context, ref string, confirm bool) error
	Reconcile(ctx context.Context) error
	EnableBiometrics(ctx context.Context) error
	DisableBiometrics(ctx context.Context) error
	Rename(ctx context.Context, label string) error
	AddSecret(ctx context.Context) error
	ListSecrets(ctx context.Context) error
	ShowSecret(ctx context.Context, id string) error
	DeleteSecret(ctx context.Context, id string) error
	Status(ctx context.Context) error
	Background(ctx context.Context) error
	Foreground(ctx context.Context) error
}

const (
	helpLocked   = "Available commands: accounts, register, unlock [account], remove <account>, reconcile, status, background, foreground, exit"
	helpUnlocked = "Available commands: (l)ist, add, show <id>, delete <id>, lock, signout, switch <account>, biometrics on|off, rename <label>, accounts, status, background, foreground, exit"
)

// runREPL reads commands from reader and dispatches them to a until EOF
// or "exit". Command errors are printed and the loop continues. Handlers
// prompt on the same reader, so it must not be wrapped in a scanner.
func runREPL(ctx context.Context, a execIface, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprint(w, "keeper> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]
		arg := strings.Join(args, " ")

		err = nil
		switch cmd {
		case "help":
			if a.isUnlocked() {
				fmt.Fprintln(w, helpUnlocked)
			} else {
				fmt.Fprintln(w, helpLocked)
			}
		case "accounts":
			err = a.ListAccounts(ctx)
		case "register":
			err = a.AddAccount(ctx)
		case "unlock", "switch":
			err = a.Unlock(ctx, arg)
		case "lock":
			err = a.Lock(ctx)
		case "signout":
			err = a.SignOut(ctx)
		case "remove":
			if arg == "" {
				fmt.Fprintln(w, "Usage: remove <account>")
				continue
			}
			err = a.RemoveAccount(ctx, arg, true)
		case "reconcile":
			err = a.Reconcile(ctx)
		case "biometrics":
			switch arg {
			case "on":
				err = a.EnableBiometrics(ctx)
			case "off":
				err = a.DisableBiometrics(ctx)
			default:
				fmt.Fprintln(w, "Usage: biometrics on|off")
			}
		case "rename":
			if arg == "" {
				fmt.Fprintln(w, "Usage: rename <label>")
				continue
			}
			err = a.Rename(ctx, arg)
		case "add":
			err = a.AddSecret(ctx)
		case "l", "list":
			err = a.ListSecrets(ctx)
		case "show", "delete":
			if len(args) != 1 {
				fmt.Fprintf(w, "Usage: %s <id>\n", cmd)
				continue
			}
			if cmd == "show" {
				err = a.ShowSecret(ctx, args[0])
			} else {
				err = a.DeleteSecret(ctx, args[0])
			}
		case "status":
			err = a.Status(ctx)
		case "background":
			err = a.Background(ctx)
		case "foreground":
			err = a.Foreground(ctx)
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
		if err != nil {
			fmt.Fprintln(w, "Error:", err)
		}
	}
}

// Shell runs the interactive REPL on the App's input.
func (a *App) Shell(ctx context.Context) error {
	fmt.Fprintln(a.out, "keeper shell (type 'help' for commands)")
	runREPL(ctx, a, a.reader, a.out)
	return nil
}

// Background reports that the shell went to the background; a locked
// account's database is closed.
func (a *App) Background(ctx context.Context) error {
	a.session.EnterBackground()
	a.printf("Backgrounded.\n")
	return nil
}

// Foreground reports that the shell is in the foreground again.
func (a *App) Foreground(ctx context.Context) error {
	a.session.EnterForeground()
	a.printf("Foregrounded.\n")
	return nil
}
