package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/keeper/internal/client/accounts"
	"github.com/dmitrijs2005/keeper/internal/client/config"
	"github.com/dmitrijs2005/keeper/internal/client/database"
	"github.com/dmitrijs2005/keeper/internal/client/keystore"
	"github.com/dmitrijs2005/keeper/internal/client/migrations"
	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/prefs"
	"github.com/dmitrijs2005/keeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/keeper/internal/client/repositories/resources"
	"github.com/dmitrijs2005/keeper/internal/client/services"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
	"github.com/dmitrijs2005/keeper/internal/filex"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"golang.org/x/term"
)

// openTimeout bounds how long a command waits for the account database.
const openTimeout = 10 * time.Second

// Backends are the platform services the App is built on.
type Backends struct {
	Prefs  prefs.Store
	Secure keystore.Store
	FS     filex.FS
	Engine storage.Engine
}

// App holds the client services for the lifetime of the process.
type App struct {
	log      logging.Logger
	accounts *accounts.Store
	manager  *database.Manager
	session  *services.SessionService
	vault    *services.VaultService
	meta     metadata.Repository

	reader   *bufio.Reader
	out      io.Writer
	terminal bool

	closers []io.Closer
	stop    context.CancelFunc
}

// NewApp builds the client from cfg: YAML preferences, the configured
// secure store and SQLite account databases under cfg.DataDir.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger, in *os.File, out io.Writer) (*App, error) {
	dataDir, err := filex.EnsureDir(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	// prompts, the REPL and the presence gate share one buffered reader
	reader := bufio.NewReader(in)
	secure, closer, err := openKeystore(ctx, cfg, keystore.NewTerminalGate(in, reader, out), log)
	if err != nil {
		return nil, err
	}

	a := newApp(Backends{
		Prefs:  prefs.NewYAMLStore(cfg.PreferencesPath()),
		Secure: secure,
		FS:     filex.NewOS(dataDir),
		Engine: storage.NewSQLiteEngine(log),
	}, log, reader, out)
	a.terminal = term.IsTerminal(int(in.Fd()))
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	return a, nil
}

var newKeychainStore = func(gate keystore.Gate) (keystore.Store, error) {
	s, err := keystore.NewKeychainStore(gate)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openKeystore(ctx context.Context, cfg *config.Config, gate keystore.Gate, log logging.Logger) (keystore.Store, io.Closer, error) {
	switch cfg.KeystoreBackend {
	case config.KeystoreMemory:
		return keystore.NewMemoryStore(gate), nil, nil
	case config.KeystoreKeychain:
		s, err := newKeychainStore(gate)
		if err == nil {
			return s, nil, nil
		}
		if !errors.Is(err, keystore.ErrUnavailable) {
			return nil, nil, err
		}
		log.Warn(ctx, "keychain unavailable, using file keystore", "error", err)
	}
	s, err := keystore.NewSQLiteStore(ctx, cfg.KeystorePath(), gate)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

func newApp(b Backends, log logging.Logger, in io.Reader, out io.Writer) *App {
	store := accounts.NewStore(b.Prefs, b.Secure, b.FS, log)
	session := services.NewSessionService(store, log, 16)
	manager := database.NewManager(store, b.Engine, b.FS, migrations.Migrations, log)
	session.SetEventSync(manager)

	return &App{
		log:      log,
		accounts: store,
		manager:  manager,
		session:  session,
		vault:    services.NewVaultService(resources.NewSQLiteRepository(manager), session),
		meta:     metadata.NewSQLiteRepository(manager),
		reader:   bufio.NewReader(in), // in itself when it already is a *bufio.Reader
		out:      out,
	}
}

// Start repairs partially stored accounts and starts the database manager.
func (a *App) Start(ctx context.Context) {
	ctx, a.stop = context.WithCancel(ctx)

	if err := a.accounts.Reconcile(ctx); err != nil {
		a.log.Warn(ctx, "startup reconciliation failed", "error", err)
	}

	updates := a.accounts.Updates(ctx)
	go func() {
		for id := range updates {
			a.log.Debug(ctx, "account changed", "account_id", id)
		}
	}()

	a.manager.Start(ctx, a.session.Events())
}

// Close ends the session, closes the open database and releases backends.
func (a *App) Close() error {
	a.session.Close()
	a.manager.Unload()
	if a.stop != nil {
		a.stop()
	}

	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// secret reads a passphrase without echo on a terminal, or as a plain
// line when input is piped.
func (a *App) secret(prompt string) ([]byte, error) {
	if a.terminal {
		return GetPassword(a.out, prompt)
	}
	line, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

// currentAccount returns the authorized account.
func (a *App) currentAccount() (models.Account, error) {
	st := a.session.State()
	switch st.Status {
	case models.SessionNone:
		return models.Account{}, services.ErrNotSignedIn
	case models.SessionAuthorizationRequired:
		return models.Account{}, services.ErrLocked
	}
	return st.Account, nil
}

// awaitDatabase waits until the manager has handled the latest session
// event and the database of the authorized account is open.
func (a *App) awaitDatabase(ctx context.Context) error {
	st, seq := a.session.Current()
	switch st.Status {
	case models.SessionNone:
		return services.ErrNotSignedIn
	case models.SessionAuthorizationRequired:
		return services.ErrLocked
	}
	ctx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	return a.manager.Await(ctx, st.Account.ID, seq)
}

func (a *App) isUnlocked() bool {
	return a.session.State().Status == models.SessionAuthorized
}
