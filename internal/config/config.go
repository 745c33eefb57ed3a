// Package config handles loading and validating gateway configuration.
// The core never parses a config file itself (spec.md §1 places config
// decoding outside the core); this package is the external collaborator
// that produces the fully-populated Config the core actually consumes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/corvidlabs/aigateway/internal/apierr"
)

// Config is the top-level configuration for the gateway.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Providers map[string]ProviderConfig `koanf:"providers"`
	Logging   LoggingConfig             `koanf:"logging"`
}

// ServerConfig holds HTTP server settings, matching spec.md §6's
// configuration surface.
type ServerConfig struct {
	Host                  string        `koanf:"host"`
	Port                  int           `koanf:"port"`
	RequestTimeoutSeconds int           `koanf:"request_timeout_seconds"`
	MaxRequestSizeBytes   int64         `koanf:"max_request_size_bytes"`
	ReadTimeout           time.Duration `koanf:"read_timeout"`
	WriteTimeout          time.Duration `koanf:"write_timeout"`
}

// Timeout returns the configured per-request deadline as a time.Duration.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// RateLimitConfig throttles the gateway's own outbound calls to one
// provider — distinct from (and unrelated to) rate limiting inbound
// clients, which spec.md §1 places outside the core entirely.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// ProviderConfig holds the settings for a single LLM provider.
type ProviderConfig struct {
	APIKey         string           `koanf:"api_key"`
	APIBase        string           `koanf:"api_base"`
	Models         []string         `koanf:"models"`
	TimeoutSeconds int              `koanf:"timeout_seconds"`
	MaxRetries     int              `koanf:"max_retries"`
	Enabled        bool             `koanf:"enabled"`
	RateLimit      *RateLimitConfig `koanf:"rate_limit"`
}

// Timeout returns the configured per-request deadline as a time.Duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// LoggingConfig controls the ambient structured logger (internal/logging).
type LoggingConfig struct {
	Level string `koanf:"level"`
}

const (
	defaultRequestTimeoutSeconds  = 30
	defaultMaxRequestSizeBytes    = 1 << 20 // 1MB
	defaultProviderTimeoutSeconds = 60
	defaultMaxRetries             = 3
)

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, applies defaults, and validates the result against
// spec.md §6's configuration surface.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Any env var starting with "GATEWAY_" can override a config value,
	// e.g. GATEWAY_SERVER_PORT -> server.port.
	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)
	expandSecrets(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.RequestTimeoutSeconds == 0 {
		cfg.Server.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if cfg.Server.MaxRequestSizeBytes == 0 {
		cfg.Server.MaxRequestSizeBytes = defaultMaxRequestSizeBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	for name, p := range cfg.Providers {
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = defaultProviderTimeoutSeconds
		}
		if p.MaxRetries == 0 {
			p.MaxRetries = defaultMaxRetries
		}
		cfg.Providers[name] = p
	}
}

// expandSecrets resolves ${VAR_NAME} placeholders in provider API keys.
// koanf doesn't do this automatically, so the gateway handles it itself.
func expandSecrets(cfg *Config) {
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			envVar := p.APIKey[2 : len(p.APIKey)-1]
			p.APIKey = os.Getenv(envVar)
			cfg.Providers[name] = p
		}
	}
}

// Validate enforces the bounds spec.md §6 places on the configuration
// surface. It is exported so callers constructing a Config
// programmatically (tests, embedders) get the same checks Load applies.
func Validate(cfg *Config) error {
	if cfg.Server.RequestTimeoutSeconds < 1 || cfg.Server.RequestTimeoutSeconds > 300 {
		return apierr.New(apierr.KindConfiguration, "server.request_timeout_seconds must be in [1,300], got %d", cfg.Server.RequestTimeoutSeconds)
	}
	if cfg.Server.MaxRequestSizeBytes < 1 || cfg.Server.MaxRequestSizeBytes > 100*(1<<20) {
		return apierr.New(apierr.KindConfiguration, "server.max_request_size_bytes must be in [1, 100MB], got %d", cfg.Server.MaxRequestSizeBytes)
	}
	if len(cfg.Providers) == 0 {
		return apierr.New(apierr.KindConfiguration, "at least one provider must be configured")
	}
	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		if len(p.APIKey) < 10 {
			return apierr.New(apierr.KindConfiguration, "provider %q: api_key must be at least 10 characters", name)
		}
		if !strings.HasPrefix(p.APIBase, "http://") && !strings.HasPrefix(p.APIBase, "https://") {
			return apierr.New(apierr.KindConfiguration, "provider %q: api_base must be an http(s) URL, got %q", name, p.APIBase)
		}
		if !strings.HasSuffix(p.APIBase, "/") {
			return apierr.New(apierr.KindConfiguration, "provider %q: api_base must end in \"/\", got %q", name, p.APIBase)
		}
		if p.TimeoutSeconds < 1 || p.TimeoutSeconds > 600 {
			return apierr.New(apierr.KindConfiguration, "provider %q: timeout_seconds must be in [1,600], got %d", name, p.TimeoutSeconds)
		}
		if p.MaxRetries < 0 || p.MaxRetries > 10 {
			return apierr.New(apierr.KindConfiguration, "provider %q: max_retries must be in [0,10], got %d", name, p.MaxRetries)
		}
	}
	return nil
}
