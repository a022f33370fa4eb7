package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// REPLMode runs the interactive trading console plus the two background
// maintenance loops: periodic clock re-sync and order-cache reconciliation.
func (a *App) REPLMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting repl mode")

	if err := Bootstrap(ctx, deps, a.logger); err != nil {
		return err
	}
	// Seed the local cache from the exchange before accepting commands.
	if err := deps.Orders.SyncCache(ctx); err != nil {
		a.logger.Warn("initial order cache sync failed", slog.String("error", err.Error()))
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.clockLoop(ctx, deps)
	})
	g.Go(func() error {
		return a.reconcileLoop(ctx, deps)
	})
	g.Go(func() error {
		return a.runREPL(ctx, deps)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// CheckMode performs a one-shot connectivity and configuration check against
// the exchange: clock sync, filter load, and (when credentials are present)
// an authenticated account read.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting check mode")

	if err := Bootstrap(ctx, deps, a.logger); err != nil {
		return err
	}

	if a.cfg.Binance.APIKey != "" {
		acct, err := deps.Orders.Balances(ctx)
		if err != nil {
			return fmt.Errorf("app: authenticated account read: %w", err)
		}
		a.logger.Info("authenticated access verified", slog.Int("assets", len(acct.Balances)))
	} else {
		a.logger.Info("no credentials configured, skipping authenticated check")
	}

	a.logger.Info("check passed",
		slog.Bool("clock_synced", deps.Clock.Synced()),
		slog.Int64("clock_offset_ms", deps.Clock.OffsetMillis()),
	)
	return nil
}

// clockLoop re-syncs the clock offset on a fixed interval. Failures keep the
// previous offset and are logged inside SyncLogged.
func (a *App) clockLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Clock.SyncInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deps.Clock.SyncLogged(ctx)
		}
	}
}

// reconcileLoop periodically replaces the local order cache with the
// exchange's open-order list.
func (a *App) reconcileLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Cache.SyncInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := deps.Orders.SyncCache(ctx); err != nil {
				a.logger.Warn("order cache sync failed", slog.String("error", err.Error()))
			}
		}
	}
}
