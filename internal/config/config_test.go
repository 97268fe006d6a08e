package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate keeps the search paths and environment of the test host out.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, EnvPrefix+"_") {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "git@mits.densho.org:{id}.git", cfg.Git.SourceTemplate)
	assert.Equal(t, 2*time.Minute, cfg.Git.Timeout)
	assert.Equal(t, 1, cfg.Batch.Workers)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.File)
	assert.True(t, filepath.IsAbs(cfg.Ledger.Path), "ledger path %q not expanded", cfg.Ledger.Path)
	assert.Equal(t, Default().Batch, cfg.Batch)
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "ddr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
git:
  source_template: "file:///srv/git/{id}.git"
  timeout: 30s
batch:
  workers: 4
log:
  level: DEBUG
`), 0o644))
	t.Setenv("DDR_BATCH_WORKERS", "8")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "file:///srv/git/{id}.git", cfg.Git.SourceTemplate)
	assert.Equal(t, 30*time.Second, cfg.Git.Timeout)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, path, cfg.File)
}

func TestLoadSearchPath(t *testing.T) {
	isolate(t)
	home := os.Getenv("HOME")

	dir := filepath.Join(home, ".config", "ddr")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ddr.toml"), []byte("[batch]\nworkers = 3\n"), 0o644))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, filepath.Join(dir, "ddr.toml"), cfg.File)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "ddr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("git:\n  dest_template: fixed\n"), 0o644))
	_, err = Load(NewViper(), path)
	assert.ErrorContains(t, err, "git.dest_template")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"workers", func(c *Config) { c.Batch.Workers = 0 }},
		{"record timeout", func(c *Config) { c.Batch.RecordTimeout = -time.Second }},
		{"level", func(c *Config) { c.Log.Level = "loud" }},
		{"format", func(c *Config) { c.Log.Format = "xml" }},
		{"source template", func(c *Config) { c.Git.SourceTemplate = "git@host:repo.git" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRenderRoundTrips(t *testing.T) {
	cfg := Default()
	cfg.Batch.Workers = 6

	var y bytes.Buffer
	require.NoError(t, cfg.Render(&y, "yaml"))
	var fromYAML view
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &fromYAML))
	assert.Equal(t, 6, fromYAML.Batch.Workers)
	assert.Equal(t, "2m0s", fromYAML.Git.Timeout)

	var tm bytes.Buffer
	require.NoError(t, cfg.Render(&tm, "toml"))
	var fromTOML view
	_, err := toml.Decode(tm.String(), &fromTOML)
	require.NoError(t, err)
	assert.Equal(t, cfg.view(), fromTOML)

	assert.Error(t, cfg.Render(&tm, "ini"))
}
