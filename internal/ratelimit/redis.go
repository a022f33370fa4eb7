package ratelimit

import (
	"context"
	"crypto/tls"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/futbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RedisConfig holds connection parameters for the Redis-backed limiter.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// RedisWindow is a sliding-window limiter shared across processes, backed by
// a Redis sorted set mutated atomically by a Lua script. Use it when several
// bot instances trade through one API key and the request budget must be
// enforced globally.
//
// The limiter fails open: if Redis is unreachable the request is admitted with
// a warning, because the local throttle is an optimization, not a correctness
// guarantee — the resilient executor still handles server-side rate limits.
type RedisWindow struct {
	rdb         *redis.Client
	script      *redis.Script
	key         string
	maxRequests int
	window      time.Duration
	logger      *slog.Logger
}

// NewRedisWindow connects to Redis and returns a shared limiter keyed by key
// (typically the API key identifier).
func NewRedisWindow(ctx context.Context, cfg RedisConfig, key string, maxRequests int, window time.Duration, logger *slog.Logger) (*RedisWindow, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ratelimit: redis ping: %w", err)
	}

	return &RedisWindow{
		rdb:         rdb,
		script:      redis.NewScript(slidingWindowLua),
		key:         "ratelimit:" + key,
		maxRequests: maxRequests,
		window:      window,
		logger:      logger,
	}, nil
}

// TryAcquire admits and records a request if the shared budget allows.
func (w *RedisWindow) TryAcquire(ctx context.Context) bool {
	allowed, _, err := w.run(ctx, true)
	if err != nil {
		w.logger.Warn("redis rate limiter unavailable, admitting request",
			slog.String("key", w.key),
			slog.String("error", err.Error()),
		)
		return true
	}
	return allowed
}

// TimeUntilNextSlot returns how long until an admission could succeed. The
// inspection does not consume a slot.
func (w *RedisWindow) TimeUntilNextSlot(ctx context.Context) time.Duration {
	_, wait, err := w.run(ctx, false)
	if err != nil {
		return 0
	}
	return wait
}

// run executes the sliding-window script and decodes its two return values:
// admitted flag and microseconds until the next free slot.
func (w *RedisWindow) run(ctx context.Context, record bool) (bool, time.Duration, error) {
	rec := 0
	if record {
		rec = 1
	}
	now := time.Now().UnixMicro()
	res, err := w.script.Run(ctx, w.rdb,
		[]string{w.key},
		now,
		w.window.Microseconds(),
		w.maxRequests,
		rec,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: sliding window script: %w", err)
	}
	if len(res) < 2 {
		return false, 0, fmt.Errorf("ratelimit: unexpected script result length %d", len(res))
	}
	return res[0] == 1, time.Duration(res[1]) * time.Microsecond, nil
}

// Close releases the Redis connection.
func (w *RedisWindow) Close() error { return w.rdb.Close() }

var _ domain.AdmissionGate = (*RedisWindow)(nil)
