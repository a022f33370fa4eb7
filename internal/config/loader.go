package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUTBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.APIKey, "FUTBOT_BINANCE_API_KEY")
	setStr(&cfg.Binance.APISecret, "FUTBOT_BINANCE_API_SECRET")
	setStr(&cfg.Binance.EncryptedSecretPath, "FUTBOT_BINANCE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Binance.SecretPassword, "FUTBOT_BINANCE_SECRET_PASSWORD")
	setStr(&cfg.Binance.BaseURL, "FUTBOT_BINANCE_BASE_URL")
	setBool(&cfg.Binance.Testnet, "FUTBOT_BINANCE_TESTNET")
	setInt64(&cfg.Binance.RecvWindowMs, "FUTBOT_BINANCE_RECV_WINDOW_MS")

	// ── Retry ──
	setInt(&cfg.Retry.MaxAttempts, "FUTBOT_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Retry.BaseDelay, "FUTBOT_RETRY_BASE_DELAY")
	setDuration(&cfg.Retry.MaxDelay, "FUTBOT_RETRY_MAX_DELAY")

	// ── Rate limit ──
	setInt(&cfg.RateLimit.MaxRequests, "FUTBOT_RATE_LIMIT_MAX_REQUESTS")
	setDuration(&cfg.RateLimit.Window, "FUTBOT_RATE_LIMIT_WINDOW")
	setStr(&cfg.RateLimit.Backend, "FUTBOT_RATE_LIMIT_BACKEND")
	setStr(&cfg.RateLimit.Key, "FUTBOT_RATE_LIMIT_KEY")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FUTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTBOT_REDIS_TLS_ENABLED")

	// ── Clock / cache loops ──
	setDuration(&cfg.Clock.SyncInterval, "FUTBOT_CLOCK_SYNC_INTERVAL")
	setDuration(&cfg.Cache.SyncInterval, "FUTBOT_CACHE_SYNC_INTERVAL")

	// ── Audit ──
	setBool(&cfg.Audit.Enabled, "FUTBOT_AUDIT_ENABLED")
	setStr(&cfg.Audit.Path, "FUTBOT_AUDIT_PATH")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUTBOT_MODE")
	setStr(&cfg.LogLevel, "FUTBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
