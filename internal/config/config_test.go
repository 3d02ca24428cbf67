package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/muonrun/internal/model"
)

func TestLoadParsesResourceFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "muonrun.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
timeout_ms = 2500
iterations = 4
max_log_level = "debug"
debug = true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), cfg.DefaultTimeoutMillis)
	assert.Equal(t, 4, cfg.DefaultIterations)
	assert.True(t, cfg.Debug)
	assert.Equal(t, model.LevelDebug, cfg.LogLevel())
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLogLevelDefaultsToInfo(t *testing.T) {
	cfg := &RunConfig{}
	assert.Equal(t, model.LevelInfo, cfg.LogLevel())
}
