package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/cadloop/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Sink implements ports.ArtifactSink using Redis hashes.
// Each artifact lives under prefix+key with fields "media_type" and "data";
// a sorted set indexes keys by expiry so List does not need SCAN.
type Sink struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Sink)

// WithTTL sets the expiration for artifacts.
func WithTTL(ttl time.Duration) Option {
	return func(s *Sink) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for artifacts.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

// New creates a Redis sink from a redis:// URL.
func New(url string, opts ...Option) (*Sink, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(o), opts...), nil
}

// NewFromClient creates a Redis sink from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Sink {
	s := &Sink{
		client: client,
		prefix: "cadloop:artifact:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) key(key string) string {
	return s.prefix + key
}

func (s *Sink) indexKey() string {
	return s.prefix + "index"
}

// Put stores the artifact and refreshes its index entry.
func (s *Sink) Put(ctx context.Context, a ports.Artifact) error {
	if a.Key == "" {
		return errors.New("artifact key cannot be empty")
	}
	k := s.key(a.Key)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k, "media_type", a.MediaType, "data", a.Data)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}

	// Score = expiry time; far future when artifacts never expire.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: a.Key})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save artifact to redis: %w", err)
	}
	return nil
}

// Get retrieves the artifact.
func (s *Sink) Get(ctx context.Context, key string) (ports.Artifact, error) {
	vals, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return ports.Artifact{}, fmt.Errorf("failed to get artifact from redis: %w", err)
	}
	data, ok := vals["data"]
	if !ok {
		return ports.Artifact{}, ports.ErrArtifactNotFound
	}
	return ports.Artifact{Key: key, MediaType: vals["media_type"], Data: []byte(data)}, nil
}

// List prunes expired index entries and returns keys under prefix, sorted.
func (s *Sink) List(ctx context.Context, prefix string) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired artifacts: %w", err)
	}

	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the artifact and its index entry.
func (s *Sink) Delete(ctx context.Context, key string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks connectivity.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Sink) Close() error {
	return s.client.Close()
}
