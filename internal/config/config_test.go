package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "chartsynth", cfg.Name)
	require.Equal(t, 256*1024, cfg.Executor.MaxSourceBytes)

	timeout, err := cfg.ExecTimeout()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, timeout)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "chartsynth", cfg.Name)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartsynth.yaml")
	content := `
name: dashboards
executor:
  timeout: 250ms
  max_source_bytes: 1024
logging:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "dashboards", cfg.Name)
	require.Equal(t, 1024, cfg.Executor.MaxSourceBytes)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.Development)

	timeout, err := cfg.ExecTimeout()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, timeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHARTSYNTH_EXEC_TIMEOUT", "1s")
	t.Setenv("CHARTSYNTH_MAX_SOURCE_BYTES", "2048")
	t.Setenv("CHARTSYNTH_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2048, cfg.Executor.MaxSourceBytes)
	require.Equal(t, "warn", cfg.Logging.Level)

	timeout, err := cfg.ExecTimeout()
	require.NoError(t, err)
	require.Equal(t, time.Second, timeout)
}

func TestInvalidTimeoutRejected(t *testing.T) {
	t.Setenv("CHARTSYNTH_EXEC_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
}
