// Package filters caches the per-symbol trading constraints published by the
// exchange. The cache is populated wholesale from one exchangeInfo snapshot
// and refreshed on demand; a symbol miss triggers exactly one reload before
// the miss is surfaced.
package filters

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantfold/futbot/internal/domain"
)

// fetcher loads the metadata snapshot, typically the exchange client invoked
// through the resilient executor.
type fetcher func(ctx context.Context) (domain.ExchangeInfo, error)

// Cache holds SymbolFilters per symbol behind a single writer lock.
type Cache struct {
	fetch  fetcher
	logger *slog.Logger

	mu     sync.RWMutex
	bySym  map[string]domain.SymbolFilters
	loaded bool
}

// NewCache creates an empty Cache that loads through fetch.
func NewCache(fetch func(ctx context.Context) (domain.ExchangeInfo, error), logger *slog.Logger) *Cache {
	return &Cache{
		fetch:  fetch,
		logger: logger,
		bySym:  make(map[string]domain.SymbolFilters),
	}
}

// Load fetches the metadata snapshot and replaces the cached map wholesale.
// It is idempotent and safe to call repeatedly; the underlying exchange error
// is surfaced unchanged (retry policy belongs to the executor the fetch runs
// through, not here).
func (c *Cache) Load(ctx context.Context) error {
	info, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("filters: load exchange info: %w", err)
	}

	next := make(map[string]domain.SymbolFilters, len(info.Symbols))
	for _, sf := range info.Symbols {
		next[sf.Symbol] = sf
	}

	c.mu.Lock()
	c.bySym = next
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("symbol filters cached", slog.Int("symbols", len(next)))
	return nil
}

// Get returns the filters for symbol. A miss (or a cache that was never
// loaded) triggers exactly one reload attempt before ErrSymbolNotFound is
// returned.
func (c *Cache) Get(ctx context.Context, symbol string) (domain.SymbolFilters, error) {
	c.mu.RLock()
	sf, ok := c.bySym[symbol]
	loaded := c.loaded
	c.mu.RUnlock()
	if ok {
		return sf, nil
	}

	if loaded {
		c.logger.Debug("symbol missing from filter cache, reloading",
			slog.String("symbol", symbol),
		)
	}
	if err := c.Load(ctx); err != nil {
		return domain.SymbolFilters{}, err
	}

	c.mu.RLock()
	sf, ok = c.bySym[symbol]
	c.mu.RUnlock()
	if !ok {
		return domain.SymbolFilters{}, fmt.Errorf("filters: %s: %w", symbol, domain.ErrSymbolNotFound)
	}
	return sf, nil
}

// Len returns the number of cached symbols.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySym)
}
