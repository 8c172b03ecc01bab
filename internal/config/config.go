// Package config loads creatorlink settings from an optional YAML file and
// CREATORLINK_ environment variables. Nested keys use a double underscore:
// CREATORLINK_API__BASE_URL sets api.base_url.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "CREATORLINK_"

// DefaultFile is read when Load is given no path.
const DefaultFile = "creatorlink.yaml"

// Token store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	API       APIConfig       `koanf:"api"`
	Tokens    TokensConfig    `koanf:"tokens"`
	Cache     CacheConfig     `koanf:"cache"`
	Payments  PaymentsConfig  `koanf:"payments"`
	Voice     VoiceConfig     `koanf:"voice"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	MockAPI   MockAPIConfig   `koanf:"mockapi"`
}

type APIConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
	// RateLimit caps requests per second; zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

type TokensConfig struct {
	Store  string       `koanf:"store"` // memory, sqlite, redis
	SQLite SQLiteConfig `koanf:"sqlite"`
	Redis  RedisConfig  `koanf:"redis"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

type CacheConfig struct {
	Size int           `koanf:"size"`
	TTL  time.Duration `koanf:"ttl"`
}

type PaymentsConfig struct {
	PublishableKey string `koanf:"publishable_key"`
	Currency       string `koanf:"currency"`
	Mode           string `koanf:"mode"`
}

type VoiceConfig struct {
	AgentID string `koanf:"agent_id"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	// Traces enables the stdout span exporter.
	Traces bool `koanf:"traces"`
}

// MockAPIConfig configures the local stub backend.
type MockAPIConfig struct {
	Port      int           `koanf:"port"`
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

var defaults = map[string]any{
	"api.base_url":        "http://localhost:8000/",
	"api.timeout":         "30s",
	"api.user_agent":      "creatorlink",
	"api.rate_burst":      1,
	"tokens.store":        StoreSQLite,
	"tokens.sqlite.path":  "data/creatorlink.db",
	"tokens.redis.addr":   "localhost:6379",
	"tokens.redis.prefix": "creatorlink:",
	"cache.size":          256,
	"cache.ttl":           "5m",
	"payments.currency":   "inr",
	"payments.mode":       "payment",
	"log.level":           "info",
	"log.format":          "json",
	"mockapi.port":        8000,
	"mockapi.jwt_secret":  "creatorlink-dev-secret",
	"mockapi.token_ttl":   "24h",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultFile when empty), then environment overrides, and
// fills in defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Tokens.Redis.Password = substituteEnvVars(cfg.Tokens.Redis.Password)
	cfg.Payments.PublishableKey = substituteEnvVars(cfg.Payments.PublishableKey)
	cfg.MockAPI.JWTSecret = substituteEnvVars(cfg.MockAPI.JWTSecret)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the loaders cannot.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	switch c.Tokens.Store {
	case StoreMemory, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("tokens.store %q must be one of memory, sqlite, redis", c.Tokens.Store)
	}
	if c.Tokens.Store == StoreSQLite && c.Tokens.SQLite.Path == "" {
		return fmt.Errorf("tokens.sqlite.path is required for the sqlite store")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
