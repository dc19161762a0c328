package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadloop.yaml")
	content := `
log_level: debug
sandbox:
  timeout: 5s
kernel:
  mesh_cells: 64
artifacts:
  backend: file
  dir: /tmp/renders
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 64, cfg.Kernel.MeshCells)
	assert.Equal(t, "file", cfg.Artifacts.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Display.AcquireTimeout)
	assert.Equal(t, 0.4, cfg.Printability.MinWallThickness)
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("artifacts:\n  backend: s3\n"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "artifacts.backend")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"CADLOOP_HTTP_ADDR":         ":9090",
		"CADLOOP_ARTIFACTS_BACKEND": "redis",
		"CADLOOP_REDIS_URL":         "redis://cache:6379/1",
		"CADLOOP_ARTIFACTS_KEY":     "a2V5",
	}
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.Artifacts.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Artifacts.RedisURL)
	assert.Equal(t, "a2V5", cfg.Artifacts.EncryptionKey)
	assert.Equal(t, "info", cfg.LogLevel)
}
