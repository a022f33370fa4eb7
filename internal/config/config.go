// Package config defines the top-level configuration for the futures trading
// client and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FUTBOT_* environment variables.
type Config struct {
	Binance   BinanceConfig   `toml:"binance"`
	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Redis     RedisConfig     `toml:"redis"`
	Clock     ClockConfig     `toml:"clock"`
	Cache     CacheConfig     `toml:"cache"`
	Audit     AuditConfig     `toml:"audit"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// BinanceConfig holds exchange API endpoints and credentials. The API secret
// may come from the TOML file, an environment variable, or an encrypted file
// produced by `futbot encrypt-secret`.
type BinanceConfig struct {
	APIKey              string `toml:"api_key"`
	APISecret           string `toml:"api_secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	BaseURL             string `toml:"base_url"`
	Testnet             bool   `toml:"testnet"`
	RecvWindowMs        int64  `toml:"recv_window_ms"`
}

// RetryConfig tunes the resilient call executor.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
}

// RateLimitConfig tunes the local admission gate. Backend "local" keeps the
// sliding window in process memory; "redis" shares it across processes.
type RateLimitConfig struct {
	MaxRequests int      `toml:"max_requests"`
	Window      duration `toml:"window"`
	Backend     string   `toml:"backend"`
	Key         string   `toml:"key"`
}

// RedisConfig holds Redis connection parameters, used when the rate-limit
// backend is "redis".
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ClockConfig tunes the clock synchronizer.
type ClockConfig struct {
	SyncInterval duration `toml:"sync_interval"`
}

// CacheConfig tunes the background order-cache reconciliation.
type CacheConfig struct {
	SyncInterval duration `toml:"sync_interval"`
}

// AuditConfig configures the durable trade/error audit trail.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			Testnet:      true,
			RecvWindowMs: 5000,
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BaseDelay:   duration{1 * time.Second},
			MaxDelay:    duration{60 * time.Second},
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 10,
			Window:      duration{1 * time.Second},
			Backend:     "local",
			Key:         "futbot",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Clock: ClockConfig{
			SyncInterval: duration{5 * time.Minute},
		},
		Cache: CacheConfig{
			SyncInterval: duration{1 * time.Minute},
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "futbot-audit.jsonl",
		},
		Mode:     "repl",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"repl":  true,
	"check": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBackends enumerates the accepted rate-limit backends.
var validBackends = map[string]bool{
	"local": true,
	"redis": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: repl, check)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Binance credentials. The check mode only reads public endpoints, so
	// credentials are optional there.
	if strings.ToLower(c.Mode) != "check" {
		if c.Binance.APIKey == "" {
			errs = append(errs, "binance: api_key must be set for mode "+c.Mode)
		}
		if c.Binance.APISecret == "" && c.Binance.EncryptedSecretPath == "" {
			errs = append(errs, "binance: either api_secret or encrypted_secret_path must be set for mode "+c.Mode)
		}
		if c.Binance.EncryptedSecretPath != "" && c.Binance.SecretPassword == "" {
			errs = append(errs, "binance: secret_password is required when encrypted_secret_path is set")
		}
	}
	if c.Binance.RecvWindowMs < 1 || c.Binance.RecvWindowMs > 60000 {
		errs = append(errs, fmt.Sprintf("binance: recv_window_ms must be 1-60000, got %d", c.Binance.RecvWindowMs))
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry: max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay.Duration <= 0 {
		errs = append(errs, "retry: base_delay must be > 0")
	}
	if c.Retry.MaxDelay.Duration < c.Retry.BaseDelay.Duration {
		errs = append(errs, "retry: max_delay must be >= base_delay")
	}

	// Rate limit
	if c.RateLimit.MaxRequests < 1 {
		errs = append(errs, "rate_limit: max_requests must be >= 1")
	}
	if c.RateLimit.Window.Duration <= 0 {
		errs = append(errs, "rate_limit: window must be > 0")
	}
	backend := strings.ToLower(c.RateLimit.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("rate_limit: unknown backend %q (valid: local, redis)", c.RateLimit.Backend))
	}
	if backend == "redis" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when rate_limit.backend is redis")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.RateLimit.Key == "" {
			errs = append(errs, "rate_limit: key must not be empty when backend is redis")
		}
	}

	// Clock / cache loops
	if c.Clock.SyncInterval.Duration <= 0 {
		errs = append(errs, "clock: sync_interval must be > 0")
	}
	if c.Cache.SyncInterval.Duration <= 0 {
		errs = append(errs, "cache: sync_interval must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, "audit: path must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ResolvedBaseURL returns the explicit base_url when set, otherwise the
// environment implied by the testnet flag.
func (c *BinanceConfig) ResolvedBaseURL(mainnet, testnet string) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Testnet {
		return testnet
	}
	return mainnet
}
