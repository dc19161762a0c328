package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *cadloop.Engine {
	t.Helper()
	eng, err := cadloop.New(cadloop.WithKernel(testutils.NewKernel()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func writeScript(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(code), 0644))
	return path
}

func TestRun_Summary(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "bracket.go", "result = Box(60, 40, 30)\nprintln(\"built\")\n")
	eng := newEngine(t)

	var out bytes.Buffer
	s, err := Run(context.Background(), eng, RunOptions{Script: script, Analyze: true}, &out, nil)
	require.NoError(t, err)

	assert.Equal(t, "bracket", s.Report.Model)
	require.NotNil(t, s.Measurement)
	assert.InDelta(t, 72000, s.Measurement.Volume, 1e-6)
	require.NotNil(t, s.Printability)
	assert.True(t, s.Printability.Printable)
	assert.Contains(t, out.String(), "# bracket")
	assert.Contains(t, out.String(), "built")
}

func TestRun_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	script := writeScript(t, dir, "cube.go", "result = Box(10, 10, 10)")
	eng := newEngine(t)

	var out bytes.Buffer
	s, err := Run(context.Background(), eng, RunOptions{
		Script: script,
		Name:   "cube",
		OutDir: outDir,
		Render: true,
		Export: "STL",
	}, &out, nil)
	require.NoError(t, err)

	require.Len(t, s.Files, 7)
	assert.Equal(t, filepath.Join(outDir, "cube-3d-iso.png"), s.Files[0])
	assert.Equal(t, filepath.Join(outDir, "cube.stl"), s.Files[6])
	for _, f := range s.Files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}

func TestRun_ReplacesPreviousModel(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "part.go", "result = Box(1, 1, 1)")
	eng := newEngine(t)
	ctx := context.Background()

	_, err := Run(ctx, eng, RunOptions{Script: script}, &bytes.Buffer{}, nil)
	require.NoError(t, err)

	writeScript(t, dir, "part.go", "result = Box(2, 2, 2)")
	s, err := Run(ctx, eng, RunOptions{Script: script}, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 8, s.Measurement.Volume, 1e-9)
	assert.Equal(t, 1, s.Measurement.Revisions)
	assert.Len(t, eng.ListModels(), 1)
}

func TestRun_ExecutionFailure(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "bad.go", "result = Box(1, 1")
	eng := newEngine(t)

	var out bytes.Buffer
	s, err := Run(context.Background(), eng, RunOptions{Script: script, JSON: true}, &out, nil)
	require.ErrorIs(t, err, ErrExecutionFailed)
	assert.False(t, s.Report.Success)
	assert.Nil(t, s.Measurement)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	report := decoded["report"].(map[string]any)
	assert.Equal(t, "SyntaxError", report["error_kind"])
}

func TestRun_MissingScript(t *testing.T) {
	_, err := Run(context.Background(), newEngine(t), RunOptions{Script: "nope.go"}, &bytes.Buffer{}, nil)
	assert.ErrorContains(t, err, "failed to read script")
}
