package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/keeper/internal/client/config"
	"github.com/dmitrijs2005/keeper/internal/client/keystore"
	"github.com/dmitrijs2005/keeper/internal/client/prefs"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
	"github.com/dmitrijs2005/keeper/internal/filex"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryFactory builds Apps that share one set of in-memory backends, so
// state survives between command invocations.
type memoryFactory struct {
	prefs  prefs.Store
	secure keystore.Store
	input  string
	out    bytes.Buffer
	cfgs   []*config.Config
}

func newMemoryFactory() *memoryFactory {
	return &memoryFactory{prefs: prefs.NewMemoryStore(), secure: keystore.NewMemoryStore(nil)}
}

func (m *memoryFactory) build(ctx context.Context, cfg *config.Config) (*App, error) {
	m.cfgs = append(m.cfgs, cfg)
	log := logging.Discard()
	return newApp(Backends{
		Prefs:  m.prefs,
		Secure: m.secure,
		FS:     filex.NewOS(cfg.DataDir),
		Engine: storage.NewSQLiteEngine(log),
	}, log, strings.NewReader(m.input), &m.out), nil
}

func (m *memoryFactory) run(t *testing.T, input string, args ...string) error {
	t.Helper()
	m.input = input
	m.out.Reset()
	root := NewRootCommand(args, m.build)
	root.SetArgs(args)
	root.SetOut(&m.out)
	root.SetErr(&m.out)
	return root.ExecuteContext(context.Background())
}

func TestRootCommand_AccountsAndVault(t *testing.T) {
	m := newMemoryFactory()
	dir := t.TempDir()

	require.NoError(t, m.run(t, "", "accounts", "list", "-d", dir))
	assert.Equal(t, "No accounts.\n", m.out.String())
	require.NotEmpty(t, m.cfgs)
	assert.Equal(t, dir, m.cfgs[0].DataDir)

	require.NoError(t, m.run(t, "alice\nexample.com\nWork\npw\npw\n", "accounts", "add", "-d", dir))
	assert.Contains(t, m.out.String(), "added")

	require.NoError(t, m.run(t, "pw\nGitHub\npassword\nuser=alice\n\n", "vault", "add", "--data-dir", dir))
	assert.Contains(t, m.out.String(), "Unlocked Work.")

	require.NoError(t, m.run(t, "pw\n", "vault", "list", "-a", "Work", "-d", dir))
	assert.Contains(t, m.out.String(), "GitHub")

	require.NoError(t, m.run(t, "", "accounts", "list", "-d", dir))
	assert.Contains(t, m.out.String(), "Work")

	require.NoError(t, m.run(t, "", "accounts", "remove", "Work", "--yes", "-d", dir))
	assert.Contains(t, m.out.String(), "removed")

	require.NoError(t, m.run(t, "", "accounts", "list", "-d", dir))
	assert.Equal(t, "No accounts.\n", m.out.String())
}

func TestRootCommand_ShellIsDefault(t *testing.T) {
	m := newMemoryFactory()
	dir := t.TempDir()

	require.NoError(t, m.run(t, "status\nexit\n", "-d", dir))
	assert.Contains(t, m.out.String(), "keeper shell")
	assert.Contains(t, m.out.String(), "Session: none")
	assert.Contains(t, m.out.String(), "Bye!")
}

func TestRootCommand_Errors(t *testing.T) {
	m := newMemoryFactory()
	dir := t.TempDir()

	err := m.run(t, "", "accounts", "remove", "nobody", "-y", "-d", dir)
	require.ErrorIs(t, err, ErrNoAccounts)

	err = m.run(t, "", "status", "-d", dir, "-k", "vault")
	require.ErrorContains(t, err, "unknown keystore backend")

	err = m.run(t, "", "vault", "show", "-d", dir)
	require.Error(t, err, "show needs an id")
}
