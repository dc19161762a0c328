package ports

import (
	"context"
	"errors"
)

// ErrArtifactNotFound is returned by sinks for unknown keys.
var ErrArtifactNotFound = errors.New("artifact not found")

// Artifact is a stored blob with its media type.
type Artifact struct {
	Key       string
	MediaType string
	Data      []byte
}

// ArtifactSink stores render and export output outside the core.
// The engine writes artifacts and never reads them back on its own;
// transports use Get to serve earlier results.
type ArtifactSink interface {
	// Put stores the artifact, replacing any previous value under the key.
	Put(ctx context.Context, a Artifact) error

	// Get retrieves the artifact.
	// Returns ErrArtifactNotFound if the key does not exist.
	Get(ctx context.Context, key string) (Artifact, error)

	// List returns the stored keys under a prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the artifact. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
