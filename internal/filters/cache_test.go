package filters

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/futbot/internal/domain"
)

func snapshot(symbols ...string) domain.ExchangeInfo {
	info := domain.ExchangeInfo{}
	for _, s := range symbols {
		info.Symbols = append(info.Symbols, domain.SymbolFilters{
			Symbol:     s,
			Status:     domain.SymbolStatusTrading,
			HasLotSize: true,
			MinQty:     decimal.RequireFromString("0.001"),
			MaxQty:     decimal.RequireFromString("100"),
			StepSize:   decimal.RequireFromString("0.001"),
		})
	}
	return info
}

func TestCache_LoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fetches := 0
	c := NewCache(func(ctx context.Context) (domain.ExchangeInfo, error) {
		fetches++
		return snapshot("BTCUSDT", "ETHUSDT"), nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, c.Load(ctx))
	first, err := c.Get(ctx, "BTCUSDT")
	require.NoError(t, err)

	require.NoError(t, c.Load(ctx))
	second, err := c.Get(ctx, "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, fetches)
	assert.Equal(t, 2, c.Len())
}

func TestCache_MissTriggersSingleReload(t *testing.T) {
	ctx := context.Background()
	fetches := 0
	c := NewCache(func(ctx context.Context) (domain.ExchangeInfo, error) {
		fetches++
		return snapshot("BTCUSDT"), nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, c.Load(ctx))
	fetches = 0

	_, err := c.Get(ctx, "DOGEUSDT")
	require.ErrorIs(t, err, domain.ErrSymbolNotFound)
	assert.Equal(t, 1, fetches, "a miss reloads exactly once")
}

func TestCache_MissFindsNewlyListedSymbol(t *testing.T) {
	ctx := context.Background()
	fetches := 0
	c := NewCache(func(ctx context.Context) (domain.ExchangeInfo, error) {
		fetches++
		if fetches == 1 {
			return snapshot("BTCUSDT"), nil
		}
		return snapshot("BTCUSDT", "DOGEUSDT"), nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, c.Load(ctx))

	sf, err := c.Get(ctx, "DOGEUSDT")
	require.NoError(t, err)
	assert.Equal(t, "DOGEUSDT", sf.Symbol)
}

func TestCache_LoadErrorSurfacesUnchanged(t *testing.T) {
	ctx := context.Background()
	cause := &domain.APIError{HTTPStatus: 503, Message: "maintenance"}
	c := NewCache(func(ctx context.Context) (domain.ExchangeInfo, error) {
		return domain.ExchangeInfo{}, cause
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.Get(ctx, "BTCUSDT")
	require.Error(t, err)

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 503, apiErr.HTTPStatus)
}

func TestCache_PreservesSymbolStatus(t *testing.T) {
	ctx := context.Background()
	info := snapshot("BTCUSDT", "DELISTED")
	info.Symbols[1].Status = "BREAK"

	c := NewCache(func(ctx context.Context) (domain.ExchangeInfo, error) {
		return info, nil
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sf, err := c.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, sf.Tradeable())

	sf, err = c.Get(ctx, "DELISTED")
	require.NoError(t, err)
	assert.False(t, sf.Tradeable())
}
