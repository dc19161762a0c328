package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadloop/pkg/adapters/file"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/aretw0/cadloop/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSink_Contract(t *testing.T) {
	tests.ArtifactSinkContractTest(t, file.New(t.TempDir()))
}

func TestFileSink_RejectsEscapingKeys(t *testing.T) {
	sink := file.New(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"../outside.png", "/abs.png", "a/../../b.png", ""} {
		err := sink.Put(ctx, ports.Artifact{Key: key, Data: []byte("x")})
		assert.Error(t, err, "key %q should be rejected", key)
	}
}

func TestFileSink_WritesBelowBase(t *testing.T) {
	dir := t.TempDir()
	sink := file.New(dir)

	require.NoError(t, sink.Put(context.Background(), ports.Artifact{Key: "box1/3d-iso-1.png", Data: []byte("png")}))

	data, err := os.ReadFile(filepath.Join(dir, "box1", "3d-iso-1.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	got, err := sink.Get(context.Background(), "box1/3d-iso-1.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", got.MediaType)
}

func TestFileSink_ListMissingBase(t *testing.T) {
	sink := file.New(filepath.Join(t.TempDir(), "never-created"))
	keys, err := sink.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
