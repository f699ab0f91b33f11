package pkgenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	out map[string]string
}

func (s stubRunner) Output(name string, args ...string) (string, error) {
	key := name
	if len(args) > 0 {
		key += " " + args[0]
	}
	return s.out[key], nil
}

func TestReadMkConfVarFindsSimpleAssignment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mk.conf")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nPKGSRCDIR=/opt/pkgsrc\nOTHER?=foo\n"), 0o644))

	v, ok := readMkConfVar(path, "PKGSRCDIR")
	require.True(t, ok)
	require.Equal(t, "/opt/pkgsrc", v)

	v2, ok2 := readMkConfVar(path, "OTHER")
	require.True(t, ok2)
	require.Equal(t, "foo", v2)

	_, ok3 := readMkConfVar(path, "MISSING")
	require.False(t, ok3)
}

func TestPackagesDirAdjustedToAllSubdir(t *testing.T) {
	dir := t.TempDir()
	pkgsrcDir := filepath.Join(dir, "pkgsrc")
	require.NoError(t, os.MkdirAll(filepath.Join(pkgsrcDir, "mk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgsrcDir, "mk", "bsd.pkg.mk"), nil, 0o644))

	packagesDir := filepath.Join(dir, "packages")
	require.NoError(t, os.MkdirAll(filepath.Join(packagesDir, "All"), 0o755))

	t.Setenv("PKGSRCDIR", pkgsrcDir)
	t.Setenv("PACKAGES", packagesDir)
	t.Setenv("MAKECONF", filepath.Join(dir, "nonexistent.conf"))
	t.Setenv("PKG_PATH", "")

	e, err := Resolve(stubRunner{out: map[string]string{
		"uname -s": "NetBSD",
		"uname -r": "9.3",
		"uname -m": "x86_64",
	}})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(packagesDir, "All"), e.Packages)
	require.Equal(t, pkgsrcDir, e.PkgsrcDir)
}

func TestSplitFieldsEmptyIsNil(t *testing.T) {
	require.Nil(t, splitFields("   "))
	require.Equal(t, []string{"a", "b"}, splitFields(" a  b "))
}
