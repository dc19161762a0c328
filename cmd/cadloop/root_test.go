package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/cadloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "cadloop version "+strings.TrimSpace(cadloop.Version)+"\n", out.String())
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cadloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("artifacts:\n  backend: redis\n  dir: from-file\n"), 0644))

	cmd := runCmd
	require.NoError(t, cmd.ParseFlags([]string{}))
	require.NoError(t, rootCmd.PersistentFlags().Set("config", path))
	require.NoError(t, rootCmd.PersistentFlags().Set("artifacts", "file"))
	t.Cleanup(func() {
		_ = rootCmd.PersistentFlags().Set("config", "")
		_ = rootCmd.PersistentFlags().Set("artifacts", "")
	})

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Artifacts.Backend)
	assert.Equal(t, "from-file", cfg.Artifacts.Dir)
}
