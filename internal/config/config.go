// Package config loads the service configuration: YAML file with
// environment overrides, so containerized deployments can inject secrets
// without touching the file.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig              `yaml:"server"`
	Store   StoreConfig               `yaml:"store"`
	Engine  EngineConfig              `yaml:"engine"`
	Session SessionConfig             `yaml:"session"`
	Gateway GatewayConfig             `yaml:"gateway"`
	Model   ModelConfig               `yaml:"model"`
	Logging LoggingConfig             `yaml:"logging"`
	Steps   map[string]map[string]any `yaml:"steps"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects and configures the snapshot store backend.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`

	// EncryptionKey enables at-rest encryption of snapshot contents when
	// set. Base64-encoded, must decode to 32 bytes (AES-256).
	EncryptionKey string `yaml:"encryption_key"`

	// MaskVars lists regexes of snapshot variable keys whose values are
	// masked before persisting.
	MaskVars []string `yaml:"mask_vars"`
}

// RedisConfig configures the Redis backend shared by the store, the call
// cache, and the distributed lock.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// EngineConfig bounds turn execution.
type EngineConfig struct {
	MaxSteps    int           `yaml:"max_steps"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Retry       RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds capability retries.
type RetryConfig struct {
	MaxAttempts     uint          `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// SessionConfig controls session lifecycle.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// GatewayConfig selects the data-gateway capability backend.
type GatewayConfig struct {
	// Backend is "plaid" or "static".
	Backend string       `yaml:"backend"`
	Plaid   PlaidConfig  `yaml:"plaid"`
	Static  StaticConfig `yaml:"static"`
}

// PlaidConfig holds Plaid API credentials.
type PlaidConfig struct {
	ClientID    string `yaml:"client_id"`
	Secret      string `yaml:"secret"`
	Environment string `yaml:"environment"`
}

// StaticConfig points at the CSV fixture for the static gateway.
type StaticConfig struct {
	Fixture string `yaml:"fixture"`
}

// ModelConfig configures the language-model capability.
type ModelConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Default returns the development configuration: in-memory store, static
// gateway disabled until a fixture is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				TTL:  24 * time.Hour,
			},
		},
		Engine: EngineConfig{
			MaxSteps:    20,
			TurnTimeout: 60 * time.Second,
			CacheTTL:    5 * time.Minute,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 250 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		Session: SessionConfig{
			TTL:           30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Gateway: GatewayConfig{
			Backend: "plaid",
			Plaid:   PlaidConfig{Environment: "sandbox"},
		},
		Model: ModelConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config file at path, layered over defaults and under
// environment overrides. An empty path skips the file; a missing file at
// an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers PENNYWISE_* variables over the file values. Secrets are
// expected to arrive this way.
func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "PENNYWISE_ADDR")
	setString(&c.Store.Backend, "PENNYWISE_STORE_BACKEND")
	setString(&c.Store.Redis.Addr, "PENNYWISE_REDIS_ADDR")
	setString(&c.Store.Redis.Password, "PENNYWISE_REDIS_PASSWORD")
	setInt(&c.Store.Redis.DB, "PENNYWISE_REDIS_DB")
	setString(&c.Store.EncryptionKey, "PENNYWISE_STORE_ENCRYPTION_KEY")
	setString(&c.Gateway.Backend, "PENNYWISE_GATEWAY_BACKEND")
	setString(&c.Gateway.Plaid.ClientID, "PENNYWISE_PLAID_CLIENT_ID")
	setString(&c.Gateway.Plaid.Secret, "PENNYWISE_PLAID_SECRET")
	setString(&c.Gateway.Plaid.Environment, "PENNYWISE_PLAID_ENV")
	setString(&c.Gateway.Static.Fixture, "PENNYWISE_FIXTURE")
	setString(&c.Model.APIKey, "PENNYWISE_OPENAI_API_KEY")
	setString(&c.Model.Model, "PENNYWISE_OPENAI_MODEL")
	setString(&c.Model.BaseURL, "PENNYWISE_OPENAI_BASE_URL")
	setString(&c.Logging.Level, "PENNYWISE_LOG_LEVEL")
	setString(&c.Logging.Format, "PENNYWISE_LOG_FORMAT")
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.Store.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption key is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption key must decode to 32 bytes, got %d", len(key))
		}
	}
	switch c.Gateway.Backend {
	case "plaid", "static":
	default:
		return fmt.Errorf("unknown gateway backend %q", c.Gateway.Backend)
	}
	if c.Gateway.Backend == "static" && c.Gateway.Static.Fixture == "" {
		return fmt.Errorf("static gateway requires a fixture path")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
