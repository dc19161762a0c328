package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/cadloop/pkg/ports"
)

// Sink implements ports.ArtifactSink in memory.
// Safe for concurrent use.
type Sink struct {
	data map[string]ports.Artifact
	mu   sync.RWMutex
}

// NewSink creates a new in-memory artifact sink.
func NewSink() *Sink {
	return &Sink{
		data: make(map[string]ports.Artifact),
	}
}

// Put stores a copy of the artifact.
func (s *Sink) Put(ctx context.Context, a ports.Artifact) error {
	a.Data = append([]byte(nil), a.Data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[a.Key] = a
	return nil
}

// Get returns a copy so callers cannot mutate stored bytes.
func (s *Sink) Get(ctx context.Context, key string) (ports.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[key]
	if !ok {
		return ports.Artifact{}, ports.ErrArtifactNotFound
	}
	a.Data = append([]byte(nil), a.Data...)
	return a, nil
}

// List returns the keys under prefix, sorted.
func (s *Sink) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the artifact.
func (s *Sink) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
