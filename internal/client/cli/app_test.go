package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/keeper/internal/client/accounts"
	"github.com/dmitrijs2005/keeper/internal/client/config"
	"github.com/dmitrijs2005/keeper/internal/client/keystore"
	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/prefs"
	"github.com/dmitrijs2005/keeper/internal/client/services"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
	"github.com/dmitrijs2005/keeper/internal/cryptox"
	"github.com/dmitrijs2005/keeper/internal/filex"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ------------ helpers ------------

func readerFromLines(lines ...string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

type testApp struct {
	*App
	out *bytes.Buffer
	dir string
}

func (a *testApp) input(lines ...string) {
	a.reader = readerFromLines(lines...)
}

func newTestApp(t *testing.T, gate keystore.Gate) *testApp {
	t.Helper()
	dir := t.TempDir()
	out := &bytes.Buffer{}
	log := logging.Discard()

	a := newApp(Backends{
		Prefs:  prefs.NewMemoryStore(),
		Secure: keystore.NewMemoryStore(gate),
		FS:     filex.NewOS(dir),
		Engine: storage.NewSQLiteEngine(log),
	}, log, strings.NewReader(""), out)
	a.Start(context.Background())
	t.Cleanup(func() { _ = a.Close() })

	return &testApp{App: a, out: out, dir: dir}
}

func (a *testApp) register(t *testing.T, user, label, passphrase string) models.AccountID {
	t.Helper()
	a.input(user, "example.com", label, passphrase, passphrase)
	require.NoError(t, a.AddAccount(context.Background()))
	return a.session.State().Account.ID
}

func (a *testApp) databaseOpen() bool {
	open, _ := a.manager.State()
	return open
}

// ------------ tests ------------

func TestAddAccount_SignsInAndOpensDatabase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()

	id := a.register(t, "alice", "Work", "correct horse")

	st := a.session.State()
	require.Equal(t, models.SessionAuthorized, st.Status)
	assert.Equal(t, "alice", st.Account.UserID)
	assert.Len(t, st.Account.Fingerprint, 16)
	assert.True(t, a.databaseOpen())
	assert.FileExists(t, filepath.Join(a.dir, string(id)+".sqlite"))

	a.out.Reset()
	require.NoError(t, a.ListAccounts(ctx))
	assert.Contains(t, a.out.String(), string(id))
	assert.Contains(t, a.out.String(), "Work")
	assert.Contains(t, a.out.String(), "authorized")
	assert.Contains(t, a.out.String(), "*")
}

func TestAddAccount_DefaultLabelAndValidation(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()

	a.register(t, "bob", "", "pw")
	profile, err := a.accounts.LoadAccountProfile(ctx, a.session.State().Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", profile.Label)

	a.input("", "example.com", "", "pw", "pw")
	require.ErrorIs(t, a.AddAccount(ctx), accounts.ErrInvalidAccount)

	a.input("carol", "example.com", "", "one", "two")
	require.ErrorIs(t, a.AddAccount(ctx), ErrPassphraseMismatch)

	a.input("carol", "example.com", "", "", "")
	require.ErrorIs(t, a.AddAccount(ctx), ErrPassphraseMismatch)
}

func TestListAccounts_Empty(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	require.NoError(t, a.ListAccounts(context.Background()))
	assert.Equal(t, "No accounts.\n", a.out.String())
}

func TestVault_AddListShowDelete(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	a.register(t, "alice", "Work", "pw")

	a.input("GitHub", "password", "user=alice", "pass=s3cret", "")
	require.NoError(t, a.AddSecret(ctx))
	list, err := a.vault.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	a.out.Reset()
	require.NoError(t, a.ListSecrets(ctx))
	assert.Contains(t, a.out.String(), "GitHub")
	assert.NotContains(t, a.out.String(), "s3cret")

	a.out.Reset()
	require.NoError(t, a.ShowSecret(ctx, id))
	assert.Contains(t, a.out.String(), "Name: GitHub")
	assert.Contains(t, a.out.String(), "pass: s3cret")
	assert.Contains(t, a.out.String(), "user: alice")

	a.out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, a.out.String(), "Session: authorized")
	assert.Contains(t, a.out.String(), "Database: open")
	assert.Contains(t, a.out.String(), "Last modified:")

	require.NoError(t, a.DeleteSecret(ctx, id))
	a.out.Reset()
	require.NoError(t, a.ListSecrets(ctx))
	assert.Equal(t, "No secrets.\n", a.out.String())
}

func TestVault_RejectsBadInput(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	a.register(t, "alice", "Work", "pw")

	a.input("GitHub", "card", "")
	require.ErrorContains(t, a.AddSecret(ctx), `unknown secret type "card"`)

	a.input("GitHub", "", "no-equals-sign", "")
	require.ErrorContains(t, a.AddSecret(ctx), "expected name=value")
}

func TestVault_RequiresUnlockedSession(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()

	require.ErrorIs(t, a.ListSecrets(ctx), services.ErrNotSignedIn)

	a.register(t, "alice", "Work", "pw")
	require.NoError(t, a.Lock(ctx))
	require.ErrorIs(t, a.ListSecrets(ctx), services.ErrLocked)
	require.ErrorIs(t, a.AddSecret(ctx), services.ErrLocked)
}

func TestLockUnlock_Passphrase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	id := a.register(t, "alice", "Work", "pw")

	require.NoError(t, a.Lock(ctx))
	assert.Equal(t, models.SessionAuthorizationRequired, a.session.State().Status)
	assert.True(t, a.databaseOpen(), "locked in foreground keeps the database open")

	a.input("wrong")
	require.ErrorIs(t, a.Unlock(ctx, ""), cryptox.ErrWrongPassphrase)

	a.input("pw")
	require.NoError(t, a.Unlock(ctx, "Work"))
	assert.Equal(t, models.SessionAuthorized, a.session.State().Status)
	assert.Equal(t, id, a.session.State().Account.ID)
	assert.Contains(t, a.out.String(), "Unlocked Work.")
}

func TestBackground_ClosesLockedDatabase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	a.register(t, "alice", "Work", "pw")

	require.NoError(t, a.Background(ctx))
	require.NoError(t, a.Foreground(ctx))
	require.NoError(t, a.Lock(ctx))
	require.NoError(t, a.Background(ctx))

	require.Eventually(t, func() bool { return !a.databaseOpen() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Foreground(ctx))
	a.input("pw")
	require.NoError(t, a.Unlock(ctx, ""))
	assert.True(t, a.databaseOpen())
}

func TestSignOut_ClosesDatabase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	a.register(t, "alice", "Work", "pw")

	require.NoError(t, a.SignOut(ctx))
	require.Eventually(t, func() bool { return !a.databaseOpen() }, 2*time.Second, 10*time.Millisecond)

	a.out.Reset()
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, a.out.String(), "Session: none")
	assert.Contains(t, a.out.String(), "Database: closed")
}

func TestBiometrics_UnlockWithoutPassphrase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	id := a.register(t, "alice", "Work", "pw")

	a.input("wrong")
	require.ErrorIs(t, a.EnableBiometrics(ctx), cryptox.ErrWrongPassphrase)

	a.input("pw")
	require.NoError(t, a.EnableBiometrics(ctx))
	profile, err := a.accounts.LoadAccountProfile(ctx, id)
	require.NoError(t, err)
	assert.True(t, profile.BiometricsEnabled)

	require.NoError(t, a.Lock(ctx))
	a.input()
	require.NoError(t, a.Unlock(ctx, ""))
	assert.Equal(t, models.SessionAuthorized, a.session.State().Status)

	require.NoError(t, a.DisableBiometrics(ctx))
	profile, err = a.accounts.LoadAccountProfile(ctx, id)
	require.NoError(t, err)
	assert.False(t, profile.BiometricsEnabled)
}

func TestBiometrics_RejectedFallsBackToPassphrase(t *testing.T) {
	reject := keystore.GateFunc(func(context.Context, string) error { return keystore.ErrBiometricRejected })
	a := newTestApp(t, reject)
	ctx := context.Background()
	a.register(t, "alice", "Work", "pw")

	a.input("pw")
	require.NoError(t, a.EnableBiometrics(ctx))
	require.NoError(t, a.Lock(ctx))

	a.out.Reset()
	a.input("pw")
	require.NoError(t, a.Unlock(ctx, ""))
	assert.Contains(t, a.out.String(), "Biometric unlock failed")
	assert.Equal(t, models.SessionAuthorized, a.session.State().Status)
}

func TestResolveAccount(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()

	_, err := a.resolveAccount(ctx, "")
	require.ErrorIs(t, err, ErrNoAccounts)

	first := a.register(t, "alice", "Work", "pw")
	second := a.register(t, "bob", "Home", "pw")

	acc, err := a.resolveAccount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second, acc.ID, "empty ref selects the last used account")

	acc, err = a.resolveAccount(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, first, acc.ID)

	acc, err = a.resolveAccount(ctx, string(first)[:8])
	require.NoError(t, err)
	assert.Equal(t, first, acc.ID)

	_, err = a.resolveAccount(ctx, "nobody")
	require.ErrorIs(t, err, accounts.ErrInvalidAccount)

	a.register(t, "carol", "Home", "pw")
	_, err = a.resolveAccount(ctx, "Home")
	require.ErrorIs(t, err, ErrAmbiguousAccount)
}

func TestSwitchAccount_ReopensDatabase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	first := a.register(t, "alice", "Work", "pw1")
	a.register(t, "bob", "Home", "pw2")

	a.input("pw1")
	require.NoError(t, a.Unlock(ctx, "Work"))

	open, current := a.manager.State()
	assert.True(t, open)
	assert.Equal(t, first, current)
}

func TestRemoveAccount(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	id := a.register(t, "alice", "Work", "pw")
	dbPath := filepath.Join(a.dir, string(id)+".sqlite")

	a.input("n")
	require.NoError(t, a.RemoveAccount(ctx, "Work", true))
	assert.Contains(t, a.out.String(), "Cancelled.")
	assert.Len(t, a.accounts.LoadAccounts(ctx), 1)

	a.input("y")
	require.NoError(t, a.RemoveAccount(ctx, "Work", true))
	assert.Empty(t, a.accounts.LoadAccounts(ctx))
	assert.Equal(t, models.SessionNone, a.session.State().Status)

	_, err := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRename(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()
	id := a.register(t, "alice", "Work", "pw")

	require.NoError(t, a.Rename(ctx, "Office"))
	profile, err := a.accounts.LoadAccountProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Office", profile.Label)

	require.NoError(t, a.SignOut(ctx))
	require.ErrorIs(t, a.Rename(ctx, "x"), services.ErrNotSignedIn)
}

func TestReconcile_RemovesOrphanedDatabase(t *testing.T) {
	a := newTestApp(t, keystore.AllowAll)
	ctx := context.Background()

	orphan := filepath.Join(a.dir, string(models.NewAccountID())+".sqlite")
	require.NoError(t, os.WriteFile(orphan, []byte("junk"), 0o600))

	require.NoError(t, a.Reconcile(ctx))
	assert.NoFileExists(t, orphan)
	assert.Contains(t, a.out.String(), "Accounts reconciled.")
}

type presenceGate struct{ calls int }

func (g *presenceGate) Verify(context.Context, string) error {
	g.calls++
	return keystore.ErrBiometricRejected
}

func TestOpenKeystore_KeychainIsGated(t *testing.T) {
	var got keystore.Gate
	prev := newKeychainStore
	newKeychainStore = func(gate keystore.Gate) (keystore.Store, error) {
		got = gate
		return keystore.NewMemoryStore(gate), nil
	}
	t.Cleanup(func() { newKeychainStore = prev })

	ctx := context.Background()
	gate := &presenceGate{}
	cfg := &config.Config{DataDir: t.TempDir(), KeystoreBackend: config.KeystoreKeychain}

	s, closer, err := openKeystore(ctx, cfg, gate, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Same(t, gate, got)

	a := accounts.NewStore(prefs.NewMemoryStore(), s, filex.NewOS(t.TempDir()), logging.Discard())
	acc := models.Account{ID: models.NewAccountID()}
	require.NoError(t, a.StoreAccount(ctx, acc, models.AccountProfile{}, "armored"))
	require.NoError(t, a.StorePassphrase(ctx, acc.ID, "pw"))

	_, err = a.LoadPassphrase(ctx, acc.ID)
	require.Error(t, err)
	assert.Equal(t, 1, gate.calls)
}

func TestOpenKeystore_KeychainFallsBackToFile(t *testing.T) {
	prev := newKeychainStore
	newKeychainStore = func(keystore.Gate) (keystore.Store, error) { return nil, keystore.ErrUnavailable }
	t.Cleanup(func() { newKeychainStore = prev })

	cfg := &config.Config{DataDir: t.TempDir(), KeystoreBackend: config.KeystoreKeychain}
	s, closer, err := openKeystore(context.Background(), cfg, &presenceGate{}, logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.IsType(t, &keystore.SQLiteStore{}, s)
	require.NoError(t, closer.Close())
}
