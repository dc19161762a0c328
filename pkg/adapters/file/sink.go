package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/cadloop/pkg/ports"
)

// Sink implements ports.ArtifactSink on the local filesystem.
// Keys map to relative paths below BasePath.
type Sink struct {
	BasePath string
}

// New creates a new Sink with the given base path.
// If basePath is empty, it defaults to ".cadloop/renders".
func New(basePath string) *Sink {
	if basePath == "" {
		basePath = filepath.Join(".cadloop", "renders")
	}
	return &Sink{BasePath: basePath}
}

var mediaTypes = map[string]string{
	".png": "image/png",
	".svg": "image/svg+xml",
	".stl": "model/stl",
	".3mf": "model/3mf",
}

// MediaTypeFor returns the media type registered for the key's extension.
func MediaTypeFor(key string) string {
	if mt, ok := mediaTypes[strings.ToLower(path.Ext(key))]; ok {
		return mt
	}
	return "application/octet-stream"
}

func (s *Sink) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || clean[1:] != key {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.BasePath, filepath.FromSlash(key)), nil
}

// Put writes the artifact atomically: temp file, fsync, rename.
func (s *Sink) Put(ctx context.Context, a ports.Artifact) error {
	dest, err := s.resolve(a.Key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure artifact directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(a.Data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(dest); err == nil {
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("failed to remove existing artifact for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file to artifact: %w", err)
	}
	return nil
}

// Get reads the artifact back.
func (s *Sink) Get(ctx context.Context, key string) (ports.Artifact, error) {
	p, err := s.resolve(key)
	if err != nil {
		return ports.Artifact{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ports.Artifact{}, ports.ErrArtifactNotFound
		}
		return ports.Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	return ports.Artifact{Key: key, MediaType: MediaTypeFor(key), Data: data}, nil
}

// List walks the base directory and returns keys under prefix, sorted.
func (s *Sink) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.BasePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.BasePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the artifact file.
func (s *Sink) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}
