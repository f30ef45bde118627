package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	want := filepath.Join(tmp, "data", "keeper")

	got, err := EnsureDir(want)
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := EnsureDir(dir)
	require.NoError(t, err)

	second, err := EnsureDir(dir)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := EnsureDir(path)
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestEnsureDir_EmptyPath(t *testing.T) {
	_, err := EnsureDir("")
	require.Error(t, err)
}

func TestOS_ListAndDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	fsys := NewOS(dir)

	got, err := fsys.ApplicationDataDirectory()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(got, "b.sqlite"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(got, "a.sqlite"), nil, 0o600))

	names, err := fsys.ContentsOfDirectory(got)
	require.NoError(t, err)
	require.Equal(t, []string{"a.sqlite", "b.sqlite"}, names)

	require.NoError(t, fsys.DeleteFile(filepath.Join(got, "a.sqlite")))
	// повторное удаление не должно падать
	require.NoError(t, fsys.DeleteFile(filepath.Join(got, "a.sqlite")))

	names, err = fsys.ContentsOfDirectory(got)
	require.NoError(t, err)
	require.Equal(t, []string{"b.sqlite"}, names)
}

func TestOS_ContentsOfMissingDirectory(t *testing.T) {
	fsys := NewOS(t.TempDir())
	_, err := fsys.ContentsOfDirectory(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
