package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/config"
	"github.com/aretw0/cadloop/internal/metrics"
	"github.com/aretw0/cadloop/pkg/adapters/file"
	"github.com/aretw0/cadloop/pkg/adapters/memory"
	"github.com/aretw0/cadloop/pkg/adapters/redis"
	"github.com/aretw0/cadloop/pkg/persistence/middleware"
	"github.com/aretw0/cadloop/pkg/ports"
)

// NewSink builds the artifact sink selected by cfg.Backend, sealed with
// the configured encryption key if there is one.
func NewSink(cfg config.ArtifactsConfig) (ports.ArtifactSink, error) {
	sink, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.EncryptionKey == "" {
		return sink, nil
	}
	keys, err := middleware.ParseKeys(cfg.EncryptionKey, cfg.FallbackKeys)
	if err != nil {
		return nil, err
	}
	mw, err := middleware.NewEncryption(keys)
	if err != nil {
		return nil, err
	}
	return middleware.Chain(sink, mw), nil
}

func newBackend(cfg config.ArtifactsConfig) (ports.ArtifactSink, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewSink(), nil
	case "file":
		return file.New(cfg.Dir), nil
	case "redis":
		s, err := redis.New(cfg.RedisURL, redis.WithPrefix(cfg.RedisPrefix), redis.WithTTL(cfg.TTL))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown artifacts backend %q", cfg.Backend)
	}
}

// NewEngine initializes an engine with standard CLI conventions.
// m may be nil.
func NewEngine(cfg config.Config, logger *slog.Logger, m *metrics.Metrics, opts ...cadloop.Option) (*cadloop.Engine, error) {
	sink, err := NewSink(cfg.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("error initializing artifact sink: %w", err)
	}
	logger.Debug("Artifact sink ready", "backend", cfg.Artifacts.Backend)

	engineOpts := []cadloop.Option{
		cadloop.WithConfig(cfg),
		cadloop.WithLogger(logger),
		cadloop.WithSink(sink),
		cadloop.WithMetrics(m),
	}
	engine, err := cadloop.New(append(engineOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}
