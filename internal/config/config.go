// Package config loads the gateway's process configuration from a
// YAML file plus environment variable overrides, grounded on
// src/infrastructure/datafacade/config/loader.go's per-section
// load-then-validate shape: each section has a sane default, is
// overridden by the YAML file if present, and the whole Config is
// validated once at the end.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the HTTP/WS listener configuration.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_origins"`
}

// BrokerConfig configures the optional cross-process Redis broker
// backing the Event Bus. A zero-value Addr means no broker: the bus
// stays purely in-memory.
type BrokerConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// VenueConfig is the per-venue section of gateway.yaml.
type VenueConfig struct {
	Enabled        bool          `yaml:"enabled"`
	RESTBaseURL    string        `yaml:"rest_base_url"`
	WSURL          string        `yaml:"ws_url"`
	HeartbeatEvery time.Duration `yaml:"heartbeat_every"`
	ReconnectBase  time.Duration `yaml:"reconnect_base"`
	ReconnectCap   time.Duration `yaml:"reconnect_cap"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// CacheConfig holds the TTL knobs spec.md §6's "Configuration surface"
// names explicitly.
type CacheConfig struct {
	PriceCacheTTL time.Duration `yaml:"price_cache_ttl"`
	RouteCacheTTL time.Duration `yaml:"route_cache_ttl"`
}

// CircuitConfig holds the circuit-breaker threshold/timeout (defaults 5
// and 60s). It is loaded and validated here only: the Event Bus,
// Orchestrator, and venue adapters build their breakers with fixed
// values of 5 consecutive failures and 60s and do not read it.
type CircuitConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Config is the gateway's full process configuration.
type Config struct {
	LogLevel string                 `yaml:"log_level"`
	Server   ServerConfig           `yaml:"server"`
	Broker   BrokerConfig           `yaml:"broker"`
	Cache    CacheConfig            `yaml:"cache"`
	Circuit  CircuitConfig          `yaml:"circuit"`
	Venues   map[string]VenueConfig `yaml:"venues"`
}

// Default returns the configuration the gateway runs with when no
// file is found, mirroring the teacher's createDefault*Config helpers:
// every venue enabled, in-memory bus (no broker), spec.md §6's default
// timings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host: "0.0.0.0", Port: 8080, RequestTimeout: 15 * time.Second,
			CORSOrigins: []string{"*"},
		},
		Cache: CacheConfig{PriceCacheTTL: time.Second, RouteCacheTTL: 10 * time.Second},
		Circuit: CircuitConfig{FailureThreshold: 5, Timeout: 60 * time.Second},
		Venues: map[string]VenueConfig{
			"hyperliquid": defaultVenue("https://api.hyperliquid.xyz", "wss://api.hyperliquid.xyz/ws"),
			"lighter":     defaultVenue("https://mainnet.zklighter.elliot.ai", "wss://mainnet.zklighter.elliot.ai/stream"),
			"tradexyz":    defaultVenue("https://api.trade.xyz", "wss://stream.trade.xyz/ws"),
		},
	}
}

func defaultVenue(rest, ws string) VenueConfig {
	return VenueConfig{
		Enabled: true, RESTBaseURL: rest, WSURL: ws,
		HeartbeatEvery: 15 * time.Second, ReconnectBase: 500 * time.Millisecond,
		ReconnectCap: 60 * time.Second, MaxAttempts: 10,
	}
}

// Load reads path (if it exists) over the Default configuration, then
// applies environment variable overrides, then validates the result.
// A missing path is not an error: the process runs on defaults, same
// as the teacher's loadCacheConfig/loadVenueConfig falling back when
// their YAML file is absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unmarshal config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables over the file/default
// config, grounded on the teacher's DefaultServerConfig reading
// HTTP_PORT from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATEWAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GATEWAY_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("GATEWAY_REDIS_ADDR"); v != "" {
		cfg.Broker.Addr = v
	}
	if v := os.Getenv("GATEWAY_REDIS_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
}

// Validate checks the structural invariants the gateway cannot start
// without, grounded on the teacher's validateConfig: required fields
// per venue, at least one venue enabled.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Circuit.FailureThreshold == 0 {
		return fmt.Errorf("circuit.failure_threshold must be positive")
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue must be configured")
	}
	enabled := 0
	for name, v := range c.Venues {
		if v.RESTBaseURL == "" {
			return fmt.Errorf("venues.%s.rest_base_url is required", name)
		}
		if v.WSURL == "" {
			return fmt.Errorf("venues.%s.ws_url is required", name)
		}
		if v.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one venue must be enabled")
	}
	return nil
}
