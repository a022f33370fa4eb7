package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfold/futbot/internal/audit"
	"github.com/quantfold/futbot/internal/clock"
	"github.com/quantfold/futbot/internal/config"
	"github.com/quantfold/futbot/internal/crypto"
	"github.com/quantfold/futbot/internal/domain"
	"github.com/quantfold/futbot/internal/filters"
	"github.com/quantfold/futbot/internal/platform/binance"
	"github.com/quantfold/futbot/internal/ratelimit"
	"github.com/quantfold/futbot/internal/retry"
	"github.com/quantfold/futbot/internal/service"
	"github.com/quantfold/futbot/internal/validate"
)

// Dependencies holds the fully wired object graph for one run.
type Dependencies struct {
	Client   *binance.Client
	Clock    *clock.Synchronizer
	Executor *retry.Executor
	Filters  *filters.Cache
	Gate     domain.AdmissionGate
	Sink     domain.EventSink
	Orders   *service.OrderService
}

// Wire builds every dependency from the configuration. The returned cleanup
// function closes everything that was opened, in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Exchange credentials. The secret may live in an encrypted file.
	secret := cfg.Binance.APISecret
	if secret == "" && cfg.Binance.EncryptedSecretPath != "" {
		var err error
		secret, err = crypto.LoadSecret(crypto.SecretConfig{
			EncryptedSecretPath: cfg.Binance.EncryptedSecretPath,
			Password:            cfg.Binance.SecretPassword,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("resolve api secret: %w", err)
		}
	}

	baseURL := cfg.Binance.ResolvedBaseURL(binance.MainnetBaseURL, binance.TestnetBaseURL)
	client := binance.NewClient(baseURL, cfg.Binance.APIKey, secret)
	client.SetRecvWindow(cfg.Binance.RecvWindowMs)

	// Clock synchronizer feeds the timestamp on every signed request.
	clk := clock.New(client.ServerTime, logger)
	client.SetTimestampFunc(clk.Now)

	exec := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Duration,
		MaxDelay:    cfg.Retry.MaxDelay.Duration,
	}, clk, logger)

	// Filter cache loads through the executor so a transient failure during
	// startup is retried like any other call.
	fc := filters.NewCache(func(ctx context.Context) (domain.ExchangeInfo, error) {
		return retry.Call(ctx, exec, "exchange info", client.ExchangeInfo)
	}, logger)

	gate, err := buildGate(ctx, cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if c, ok := gate.(*ratelimit.RedisWindow); ok {
		closers = append(closers, func() { _ = c.Close() })
	}

	sink, sinkClose, err := buildSink(cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if sinkClose != nil {
		closers = append(closers, sinkClose)
	}
	client.SetEventSink(sink)

	orders := service.NewOrderService(client, exec, fc, validate.New(logger), gate, sink, logger)

	return &Dependencies{
		Client:   client,
		Clock:    clk,
		Executor: exec,
		Filters:  fc,
		Gate:     gate,
		Sink:     sink,
		Orders:   orders,
	}, cleanup, nil
}

// buildGate selects the admission gate backend.
func buildGate(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.AdmissionGate, error) {
	switch strings.ToLower(cfg.RateLimit.Backend) {
	case "redis":
		gate, err := ratelimit.NewRedisWindow(ctx, ratelimit.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		}, cfg.RateLimit.Key, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Duration, logger)
		if err != nil {
			return nil, fmt.Errorf("redis rate limiter: %w", err)
		}
		return gate, nil
	default:
		return ratelimit.NewWindow(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Duration), nil
	}
}

// buildSink assembles the event sink: structured logs always, plus the durable
// audit file when enabled.
func buildSink(cfg *config.Config, logger *slog.Logger) (domain.EventSink, func(), error) {
	slogSink := audit.NewSlogSink(logger)
	if !cfg.Audit.Enabled {
		return slogSink, nil, nil
	}

	fileSink, err := audit.NewFileSink(cfg.Audit.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit file %s: %w", cfg.Audit.Path, err)
	}
	return audit.NewMultiSink(slogSink, fileSink), func() { _ = fileSink.Close() }, nil
}

// Bootstrap performs the startup round-trips every mode needs: one clock sync
// and one filter-cache load.
func Bootstrap(ctx context.Context, deps *Dependencies, logger *slog.Logger) error {
	offset, err := deps.Clock.Sync(ctx)
	if err != nil {
		return fmt.Errorf("initial clock sync: %w", err)
	}
	logger.Info("clock synchronized", slog.Int64("offset_ms", offset))

	start := time.Now()
	if err := deps.Filters.Load(ctx); err != nil {
		return fmt.Errorf("initial filter load: %w", err)
	}
	logger.Info("exchange filters loaded",
		slog.Int("symbols", deps.Filters.Len()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
