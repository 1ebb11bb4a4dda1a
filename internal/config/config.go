// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig              `yaml:"server"`
	Backend       BackendConfig             `yaml:"backend"`
	Auth          AuthConfig                `yaml:"auth"`
	Sync          SyncConfig                `yaml:"sync"`
	Redis         RedisConfig               `yaml:"redis"`
	Resources     map[string]ResourceConfig `yaml:"resources"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

// ServerConfig describes the local HTTP API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// BackendConfig describes the shop REST API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// OpenAPISpec optionally points at an OpenAPI document used to resolve
	// resource routes by operationId.
	OpenAPISpec    string               `yaml:"openapi_spec"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig describes the backend circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// AuthConfig describes where bearer tokens are kept.
type AuthConfig struct {
	// PersistentStore is "memory" or "redis". Remembered logins survive a
	// restart only with "redis".
	PersistentStore string        `yaml:"persistent_store"`
	RedisKey        string        `yaml:"redis_key"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
}

// SyncConfig describes the relay used to keep list views consistent.
type SyncConfig struct {
	// Driver is "memory" for views in this process or "redis" for views in
	// several processes.
	Driver        string `yaml:"driver"`
	ChannelPrefix string `yaml:"channel_prefix"`
	Buffer        int    `yaml:"buffer"`
}

// RedisConfig describes the Redis connection shared by the Redis-backed
// components.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
}

// ResourceConfig tunes one list resource.
type ResourceConfig struct {
	PageSize      int    `yaml:"page_size"`
	FailurePolicy string `yaml:"failure_policy"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000",
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 1,
				Timeout:          30 * time.Second,
			},
		},
		Auth: AuthConfig{
			PersistentStore: "memory",
			RedisKey:        "shopdesk:auth:token",
			TokenTTL:        30 * 24 * time.Hour,
		},
		Sync: SyncConfig{
			Driver:        "memory",
			ChannelPrefix: "shopdesk",
			Buffer:        64,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Resources: map[string]ResourceConfig{
			"orders":     {PageSize: 10, FailurePolicy: "clear"},
			"products":   {PageSize: 10, FailurePolicy: "preserve"},
			"customers":  {PageSize: 10, FailurePolicy: "preserve"},
			"categories": {FailurePolicy: "adaptive"},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Resource returns the settings of a list resource, zero if unset.
func (c *Config) Resource(name string) ResourceConfig {
	return c.Resources[name]
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "backend.base_url must be an absolute URL")
	}
	switch c.Auth.PersistentStore {
	case "memory", "redis":
	default:
		errs = append(errs, "auth.persistent_store must be memory or redis")
	}
	switch c.Sync.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, "sync.driver must be memory or redis")
	}
	if (c.Auth.PersistentStore == "redis" || c.Sync.Driver == "redis") && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when a redis driver is selected")
	}
	for name, r := range c.Resources {
		if r.PageSize < 0 {
			errs = append(errs, fmt.Sprintf("resources.%s.page_size must not be negative", name))
		}
		switch r.FailurePolicy {
		case "", "preserve", "clear", "adaptive":
		default:
			errs = append(errs, fmt.Sprintf("resources.%s.failure_policy must be preserve, clear or adaptive", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SHOPDESK_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHOPDESK_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SHOPDESK_BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("SHOPDESK_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("SHOPDESK_SYNC_DRIVER"); v != "" {
		cfg.Sync.Driver = v
	}
	if v := os.Getenv("SHOPDESK_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}
