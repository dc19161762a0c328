package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/cadloop/pkg/ports"
)

// ArtifactSinkContractTest is a reusable test suite that verifies if an adapter complies with ports.ArtifactSink.
// The sink must be empty when handed in.
func ArtifactSinkContractTest(t *testing.T, sink ports.ArtifactSink) {
	t.Helper()
	ctx := context.Background()

	png := ports.Artifact{Key: "box1/3d-iso-abc123.png", MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	stl := ports.Artifact{Key: "box1/export-def456.stl", MediaType: "model/stl", Data: []byte("solid box1")}
	other := ports.Artifact{Key: "plate/2d-front-0a0b0c.svg", MediaType: "image/svg+xml", Data: []byte("<svg/>")}

	// 1. Get (NotFound)
	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := sink.Get(ctx, "missing/nothing.png")
		if !errors.Is(err, ports.ErrArtifactNotFound) {
			t.Fatalf("expected ErrArtifactNotFound, got %v", err)
		}
	})

	// 2. Put and Get
	t.Run("Put_Get", func(t *testing.T) {
		for _, a := range []ports.Artifact{png, stl, other} {
			if err := sink.Put(ctx, a); err != nil {
				t.Fatalf("put %s: %v", a.Key, err)
			}
		}
		got, err := sink.Get(ctx, png.Key)
		if err != nil {
			t.Fatalf("get %s: %v", png.Key, err)
		}
		if string(got.Data) != string(png.Data) {
			t.Errorf("data mismatch: got %q, want %q", got.Data, png.Data)
		}
		if got.MediaType != png.MediaType {
			t.Errorf("media type mismatch: got %q, want %q", got.MediaType, png.MediaType)
		}
		if got.Key != png.Key {
			t.Errorf("key mismatch: got %q, want %q", got.Key, png.Key)
		}
	})

	// 3. Returned data must not alias the stored copy
	t.Run("Get_Isolated", func(t *testing.T) {
		got, err := sink.Get(ctx, stl.Key)
		if err != nil {
			t.Fatalf("get %s: %v", stl.Key, err)
		}
		got.Data[0] = 'X'
		again, err := sink.Get(ctx, stl.Key)
		if err != nil {
			t.Fatalf("get %s: %v", stl.Key, err)
		}
		if string(again.Data) != string(stl.Data) {
			t.Errorf("stored data was mutated through a returned slice: %q", again.Data)
		}
	})

	// 4. Overwrite
	t.Run("Put_Overwrite", func(t *testing.T) {
		updated := png
		updated.Data = []byte("new bytes")
		if err := sink.Put(ctx, updated); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := sink.Get(ctx, png.Key)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if string(got.Data) != "new bytes" {
			t.Errorf("expected overwritten data, got %q", got.Data)
		}
	})

	// 5. List by prefix
	t.Run("List", func(t *testing.T) {
		keys, err := sink.List(ctx, "box1/")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := []string{stl.Key, png.Key}
		if len(keys) != len(want) {
			t.Fatalf("expected %d keys, got %v", len(want), keys)
		}
		// Sorted order: "box1/3d-..." < "box1/export-..."
		if keys[0] != png.Key || keys[1] != stl.Key {
			t.Errorf("unexpected order: %v", keys)
		}

		all, err := sink.List(ctx, "")
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 keys, got %v", all)
		}
	})

	// 6. Delete
	t.Run("Delete", func(t *testing.T) {
		if err := sink.Delete(ctx, other.Key); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := sink.Get(ctx, other.Key); !errors.Is(err, ports.ErrArtifactNotFound) {
			t.Errorf("expected ErrArtifactNotFound after delete, got %v", err)
		}
		if err := sink.Delete(ctx, other.Key); err != nil {
			t.Errorf("deleting a missing key should succeed, got %v", err)
		}
	})
}
