package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFilePresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.Equal(t, dir, cfg.ConfigPath)
	require.Greater(t, cfg.MaxWorkers, 0)
}

func TestLoadAppliesDefaultSectionValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkgtool.ini"), []byte(
		"max_workers = 7\nxargs_workers = 2\nrundb_path = /tmp/custom-runs.db\n",
	), 0o644))

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.Equal(t, 7, cfg.MaxWorkers)
	require.Equal(t, 2, cfg.XargsWorkers)
	require.Equal(t, "/tmp/custom-runs.db", cfg.RunDBPath)
}

func TestLoadProfileSectionOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkgtool.ini"), []byte(
		"max_workers = 4\n\n[fast]\nmax_workers = 16\n",
	), 0o644))

	cfg, err := Load(dir, "fast")
	require.NoError(t, err)
	require.Equal(t, 16, cfg.MaxWorkers)
}
