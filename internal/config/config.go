package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Zero values are filled by Default.
type Config struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	Sandbox      SandboxConfig      `yaml:"sandbox" json:"sandbox"`
	Store        StoreConfig        `yaml:"store" json:"store"`
	Kernel       KernelConfig       `yaml:"kernel" json:"kernel"`
	Display      DisplayConfig      `yaml:"display" json:"display"`
	Printability PrintabilityConfig `yaml:"printability" json:"printability"`
	Artifacts    ArtifactsConfig    `yaml:"artifacts" json:"artifacts"`
	HTTP         HTTPConfig         `yaml:"http" json:"http"`
}

type SandboxConfig struct {
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes" json:"max_output_bytes"`
}

type StoreConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`
}

type KernelConfig struct {
	MeshCells int `yaml:"mesh_cells" json:"mesh_cells"`
}

type DisplayConfig struct {
	Width          int           `yaml:"width" json:"width"`
	Height         int           `yaml:"height" json:"height"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout"`
}

type PrintabilityConfig struct {
	MinWallThickness float64 `yaml:"min_wall_thickness" json:"min_wall_thickness"`
}

// ArtifactsConfig selects where renders and exports are written.
// Backend is one of "memory", "file" or "redis".
type ArtifactsConfig struct {
	Backend     string        `yaml:"backend" json:"backend"`
	Dir         string        `yaml:"dir" json:"dir"`
	RedisURL    string        `yaml:"redis_url" json:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix" json:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl" json:"ttl"`
	// EncryptionKey is a base64 AES-256 key. When set, artifact bodies
	// are sealed before they reach the backend.
	EncryptionKey string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys  []string `yaml:"fallback_keys" json:"fallback_keys"`
}

type HTTPConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	ValidateSchema bool   `yaml:"validate_schema" json:"validate_schema"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "text",
		Sandbox: SandboxConfig{
			Timeout:        30 * time.Second,
			MaxOutputBytes: 64 << 10,
		},
		Store: StoreConfig{
			LockTimeout: 2 * time.Minute,
		},
		Kernel: KernelConfig{
			MeshCells: 96,
		},
		Display: DisplayConfig{
			Width:          1024,
			Height:         768,
			AcquireTimeout: 10 * time.Second,
		},
		Printability: PrintabilityConfig{
			MinWallThickness: 0.4,
		},
		Artifacts: ArtifactsConfig{
			Backend:     "memory",
			Dir:         filepath.Join(".cadloop", "renders"),
			RedisURL:    "redis://localhost:6379/0",
			RedisPrefix: "cadloop:artifact:",
			TTL:         time.Hour,
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			ValidateSchema: true,
		},
	}
}

// Load reads a YAML or JSON file over the defaults and then applies
// CADLOOP_* environment overrides. A missing file is not an error when
// path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if strings.ToLower(filepath.Ext(path)) == ".json" {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
			}
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("CADLOOP_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("CADLOOP_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("CADLOOP_ARTIFACTS_BACKEND"); ok {
		c.Artifacts.Backend = v
	}
	if v, ok := lookup("CADLOOP_ARTIFACTS_DIR"); ok {
		c.Artifacts.Dir = v
	}
	if v, ok := lookup("CADLOOP_REDIS_URL"); ok {
		c.Artifacts.RedisURL = v
	}
	if v, ok := lookup("CADLOOP_ARTIFACTS_KEY"); ok {
		c.Artifacts.EncryptionKey = v
	}
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox.timeout must be positive")
	}
	if c.Store.LockTimeout <= 0 {
		return fmt.Errorf("store.lock_timeout must be positive")
	}
	if c.Display.AcquireTimeout <= 0 {
		return fmt.Errorf("display.acquire_timeout must be positive")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display size must be positive")
	}
	if c.Kernel.MeshCells < 8 {
		return fmt.Errorf("kernel.mesh_cells must be at least 8")
	}
	if c.Printability.MinWallThickness <= 0 {
		return fmt.Errorf("printability.min_wall_thickness must be positive")
	}
	switch c.Artifacts.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown artifacts.backend %q", c.Artifacts.Backend)
	}
	return nil
}
