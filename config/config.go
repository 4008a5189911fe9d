// Package config loads the tabledesigner TOML configuration, applies
// TABLEDESIGNER_ environment overrides and validates the result.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TABLEDESIGNER_"

// Duration is a time.Duration decoded from strings such as "5m"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the full configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Registry  RegistryConfig  `toml:"registry"`
	Endpoints EndpointsConfig `toml:"endpoints"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
	ProjectID   string   `toml:"project_id"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type RegistryConfig struct {
	TTL          Duration `toml:"ttl"`
	FetchTimeout Duration `toml:"fetch_timeout"`
}

type EndpointsConfig struct {
	BasePath          string   `toml:"base_path"`
	RateLimitRequests int      `toml:"rate_limit_requests"`
	RateLimitWindow   Duration `toml:"rate_limit_window"`
	CacheTTL          Duration `toml:"cache_ttl"`
	RequireAuth       bool     `toml:"require_auth"`
}

type LogConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", CORSOrigins: []string{"*"}, ProjectID: "default"},
		Registry: RegistryConfig{
			TTL:          Duration{5 * time.Minute},
			FetchTimeout: Duration{10 * time.Second},
		},
		Endpoints: EndpointsConfig{
			BasePath:          "/api/designer/tables",
			RateLimitRequests: 100,
			RateLimitWindow:   Duration{time.Minute},
			CacheTTL:          Duration{5 * time.Minute},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the TOML file at path (optional), loads .env files, applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Debug("no .env file loaded", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if unknown := md.Undecoded(); len(unknown) > 0 {
			keys := make([]string, len(unknown))
			for i, k := range unknown {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		if v, ok := lookup(EnvPrefix + key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
		}
		return nil
	}

	str("SERVER_ADDR", &c.Server.Addr)
	str("PROJECT_ID", &c.Server.ProjectID)
	str("DATABASE_DSN", &c.Database.DSN)
	str("ENDPOINTS_BASE_PATH", &c.Endpoints.BasePath)
	str("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_REQUESTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_REQUESTS: %w", EnvPrefix, err)
		}
		c.Endpoints.RateLimitRequests = n
	}
	if v, ok := lookup(EnvPrefix + "REQUIRE_AUTH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sREQUIRE_AUTH: %w", EnvPrefix, err)
		}
		c.Endpoints.RequireAuth = b
	}

	for key, dst := range map[string]*Duration{
		"REGISTRY_TTL":           &c.Registry.TTL,
		"REGISTRY_FETCH_TIMEOUT": &c.Registry.FetchTimeout,
		"RATE_LIMIT_WINDOW":      &c.Endpoints.RateLimitWindow,
		"CACHE_TTL":              &c.Endpoints.CacheTTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks value ranges and enums
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if c.Registry.TTL.Duration <= 0 {
		return fmt.Errorf("registry.ttl must be positive")
	}
	if c.Registry.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("registry.fetch_timeout must be positive")
	}
	if c.Endpoints.RateLimitRequests < 0 {
		return fmt.Errorf("endpoints.rate_limit_requests must not be negative")
	}
	if c.Endpoints.RateLimitRequests > 0 && c.Endpoints.RateLimitWindow.Duration <= 0 {
		return fmt.Errorf("endpoints.rate_limit_window must be positive when rate limiting is enabled")
	}
	if !strings.HasPrefix(c.Endpoints.BasePath, "/") {
		return fmt.Errorf("endpoints.base_path must start with /")
	}
	return nil
}

// SlogLevel converts the configured level
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
