package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "remedy.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Engine.ObservationWindow)
	assert.Equal(t, 15*time.Second, cfg.Engine.EvaluateInterval)
	assert.Empty(t, cfg.NATS.URL, "fan-out disabled by default")
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  listen_addr: ":9090"
engine:
  observation_window: 5
  evaluate_interval: 30s
nats:
  url: "nats://localhost:4222"
log:
  level: debug
  format: console
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 5, cfg.Engine.ObservationWindow)
	assert.Equal(t, 30*time.Second, cfg.Engine.EvaluateInterval)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen_addr: \":9090\"\n"), 0o600))

	t.Setenv("REMEDY_SERVER_LISTEN_ADDR", ":7070")
	t.Setenv("REMEDY_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.ListenAddr, "env beats file")
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("REMEDY_LOG_LEVEL", "verbose")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("REMEDY_LOG_LEVEL", "info")
	t.Setenv("REMEDY_ENGINE_OBSERVATION_WINDOW", "-1")
	_, err = Load("")
	require.Error(t, err)
}
