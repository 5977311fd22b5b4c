package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
	assert.Equal(t, 3*time.Second, cfg.Engine.Window())
	assert.Equal(t, 3, cfg.Engine.TopN)
	assert.True(t, cfg.Engine.Personalization)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), SettingsFile))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFile)
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 40000
engine:
  window_seconds: 5
  personalization: false
log:
  format: json
telemetry:
  flush_interval: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind)
	assert.Equal(t, 40000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Engine.Window())
	assert.Equal(t, 3, cfg.Engine.TopN)
	assert.False(t, cfg.Engine.Personalization)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.FlushInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SAGE_BIND", "0.0.0.0")
	t.Setenv("SAGE_PORT", "41000")
	t.Setenv("SAGE_DB", "/tmp/sage-test.db")
	t.Setenv("SAGE_TOP_N", "5")
	t.Setenv("SAGE_PERSONALIZATION", "off")
	t.Setenv("SAGE_TELEMETRY", "false")
	t.Setenv("SAGE_WINDOW_SECONDS", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:41000", cfg.ListenAddr())
	assert.Equal(t, "/tmp/sage-test.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Engine.TopN)
	assert.False(t, cfg.Engine.Personalization)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 3, cfg.Engine.WindowSeconds, "unparseable value keeps the default")
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFile)
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  window_seconds: 0\nlog:\n  format: xml\n"), 0o644))

	_, err := Load(path)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, SettingsFile, cerr.File)
	assert.Contains(t, err.Error(), "window_seconds")
	assert.Contains(t, err.Error(), "log.format")
}

func TestLoadRejectsZeroTopN(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFile)
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  top_n: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.top_n must be positive, got 0")

	t.Setenv("SAGE_TOP_N", "0")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), SettingsFile)
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	var cerr *Error
	assert.True(t, errors.As(err, &cerr))
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("SAGE_CONFIG_DIR", "/etc/sage")
	assert.Equal(t, "/etc/sage", DefaultDir())

	t.Setenv("SAGE_CONFIG_DIR", "")
	assert.Equal(t, "shortcut-sage", filepath.Base(DefaultDir()))
}
