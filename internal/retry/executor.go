// Package retry wraps outbound exchange calls in a classification-driven
// retry loop: exponential backoff with jitter for retryable failures, a clock
// re-sync for timestamp rejections, and an immediate surface for everything
// the exchange will keep rejecting.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/quantfold/futbot/internal/domain"
)

// Defaults applied when Config fields are zero.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// clockResync triggers a clock re-synchronization after a timestamp
// rejection. Satisfied by *clock.Synchronizer.
type clockResync interface {
	SyncLogged(ctx context.Context)
}

// Config tunes the retry schedule.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// Executor runs exchange operations under the retry policy. It is stateless
// apart from configuration and safe for concurrent use; no lock is held across
// a network round-trip.
type Executor struct {
	cfg    Config
	clock  clockResync
	logger *slog.Logger

	// sleep and jitter are swapped in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New creates an Executor. clock may be nil when no timestamp-stamped
// operations will be executed (the timestamp class then degrades to a plain
// retry).
func New(cfg Config, clock clockResync, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger,
		sleep:  sleepCtx,
		jitter: rand.Float64,
	}
}

// Do runs fn up to MaxAttempts times. Each failure is classified; retryable
// classes sleep min(base*2^attempt, cap) randomized within [0.5x, 1.0x] before
// the next attempt, timestamp rejections additionally re-sync the clock, and
// fatal classes surface immediately as *domain.FatalError. Exhausting the
// schedule surfaces *domain.RetryExhaustedError wrapping the last cause.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.backoff(attempt-1)); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if ctx.Err() != nil {
			return err
		}

		class := Classify(err)
		if !class.Retryable() {
			return &domain.FatalError{Op: op, Err: err}
		}

		e.logger.Warn("exchange call failed, will retry",
			slog.String("op", op),
			slog.String("class", class.String()),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", e.cfg.MaxAttempts),
			slog.String("error", err.Error()),
		)

		if class == ClassTimestamp && e.clock != nil {
			e.clock.SyncLogged(ctx)
		}
	}

	return &domain.RetryExhaustedError{Op: op, Attempts: e.cfg.MaxAttempts, Err: last}
}

// backoff returns the jittered delay for the given zero-based retry index.
func (e *Executor) backoff(retry int) time.Duration {
	d := e.cfg.BaseDelay << retry
	if d > e.cfg.MaxDelay || d <= 0 { // <= 0 guards shift overflow
		d = e.cfg.MaxDelay
	}
	// Randomize within [0.5x, 1.0x] so concurrent callers do not retry in
	// lockstep.
	return time.Duration(float64(d) * (0.5 + e.jitter()*0.5))
}

// Call is Do for operations that return a value.
func Call[T any](ctx context.Context, e *Executor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// sleepCtx sleeps for d unless the context finishes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
