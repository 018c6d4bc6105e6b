package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := Load("../../configs/tilecensus.yaml", false)
	require.NoError(t, err)
	assert.Equal(t, "tile_counts_", cfg.Export.Prefix)
	assert.True(t, cfg.CRLF())
	assert.True(t, cfg.Index.Enabled)
	assert.Equal(t, filepath.Join("data", "snapshots"), filepath.Clean(cfg.Snapshots.Dir))
}

func TestLoad_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Load(path, false)
	require.Error(t, err)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "exports"), filepath.Clean(cfg.Export.Dir))
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce())
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilecensus.yaml")
	body := `
data_dir: /srv/census
export:
  line_ending: LF
  compress: true
classifier:
  strict: true
watch:
  debounce_ms: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.False(t, cfg.CRLF())
	assert.True(t, cfg.Export.Compress)
	assert.True(t, cfg.Classifier.Strict)
	assert.Equal(t, filepath.Join("/srv/census", "exports"), cfg.Export.Dir)
	assert.Equal(t, filepath.Join("/srv/census", "index", "census.sqlite"), cfg.Index.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce())
}

func TestSetDataDir_KeepsExplicitPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilecensus.yaml")
	body := `
data_dir: /srv/census
export:
  dir: /mnt/share/exports
index:
  path: /var/lib/census/runs.sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	cfg.SetDataDir("/tmp/other")

	assert.Equal(t, "/tmp/other", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/other", "snapshots"), cfg.Snapshots.Dir)
	assert.Equal(t, "/mnt/share/exports", cfg.Export.Dir)
	assert.Equal(t, "/var/lib/census/runs.sqlite", cfg.Index.Path)

	defaults, err := Load("", false)
	require.NoError(t, err)
	defaults.SetDataDir("/tmp/other")
	assert.Equal(t, filepath.Join("/tmp/other", "exports"), defaults.Export.Dir)
	assert.Equal(t, filepath.Join("/tmp/other", "index", "census.sqlite"), defaults.Index.Path)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"ending.yaml": "export:\n  line_ending: cr\n",
		"prefix.yaml": "export:\n  prefix: a/b\n",
		"syntax.yaml": "export: [\n",
		"mirror.yaml": "mirror:\n  enabled: true\n  bucket: b\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path, false)
		require.Error(t, err, name)
	}
}
