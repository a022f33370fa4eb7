package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/futbot/internal/domain"
	"github.com/quantfold/futbot/internal/filters"
	"github.com/quantfold/futbot/internal/retry"
	"github.com/quantfold/futbot/internal/validate"
)

// fakeExchange implements domain.ExchangeClient with function fields so each
// test overrides only what it needs.
type fakeExchange struct {
	exchangeInfoFn func(ctx context.Context) (domain.ExchangeInfo, error)
	tickerFn       func(ctx context.Context, symbol string) (decimal.Decimal, error)
	createFn       func(ctx context.Context, p domain.OrderParams) (domain.Order, error)
	cancelFn       func(ctx context.Context, symbol string, orderID int64) (domain.Order, error)
	cancelAllFn    func(ctx context.Context, symbol string) error
	openOrdersFn   func(ctx context.Context, symbol string) ([]domain.Order, error)
	getOrderFn     func(ctx context.Context, symbol string, orderID int64) (domain.Order, error)

	mu      sync.Mutex
	created []domain.OrderParams
}

func (f *fakeExchange) ExchangeInfo(ctx context.Context) (domain.ExchangeInfo, error) {
	if f.exchangeInfoFn != nil {
		return f.exchangeInfoFn(ctx)
	}
	return testExchangeInfo(), nil
}

func (f *fakeExchange) ServerTime(context.Context) (int64, error) { return 0, nil }

func (f *fakeExchange) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if f.tickerFn != nil {
		return f.tickerFn(ctx, symbol)
	}
	return decimal.RequireFromString("50000"), nil
}

func (f *fakeExchange) Account(context.Context) (domain.Account, error) {
	return domain.Account{}, nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, p domain.OrderParams) (domain.Order, error) {
	f.mu.Lock()
	f.created = append(f.created, p)
	n := len(f.created)
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(ctx, p)
	}
	return domain.Order{
		OrderID:       int64(100 + n),
		ClientOrderID: p.ClientOrderID,
		Symbol:        p.Symbol,
		Side:          p.Side,
		Type:          p.Type,
		Status:        domain.OrderStatusNew,
	}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (domain.Order, error) {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, symbol, orderID)
	}
	return domain.Order{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusCanceled}, nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	if f.cancelAllFn != nil {
		return f.cancelAllFn(ctx, symbol)
	}
	return nil
}

func (f *fakeExchange) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	if f.openOrdersFn != nil {
		return f.openOrdersFn(ctx, symbol)
	}
	return nil, nil
}

func (f *fakeExchange) GetOrder(ctx context.Context, symbol string, orderID int64) (domain.Order, error) {
	if f.getOrderFn != nil {
		return f.getOrderFn(ctx, symbol, orderID)
	}
	return domain.Order{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusNew}, nil
}

func (f *fakeExchange) OrderHistory(context.Context, string, int) ([]domain.Order, error) {
	return nil, nil
}

func (f *fakeExchange) createdParams() []domain.OrderParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderParams(nil), f.created...)
}

func testExchangeInfo() domain.ExchangeInfo {
	return domain.ExchangeInfo{Symbols: []domain.SymbolFilters{{
		Symbol:         "BTCUSDT",
		Status:         domain.SymbolStatusTrading,
		HasLotSize:     true,
		MinQty:         decimal.RequireFromString("0.001"),
		MaxQty:         decimal.RequireFromString("1000"),
		StepSize:       decimal.RequireFromString("0.001"),
		HasPriceFilter: true,
		MinPrice:       decimal.RequireFromString("0.1"),
		MaxPrice:       decimal.RequireFromString("1000000"),
		TickSize:       decimal.RequireFromString("0.1"),
		HasMinNotional: true,
		MinNotional:    decimal.RequireFromString("100"),
	}}}
}

// memorySink records events for assertions.
type memorySink struct {
	mu     sync.Mutex
	trades []domain.TradeEvent
	errs   []domain.ErrorEvent
}

func (m *memorySink) Trade(_ context.Context, ev domain.TradeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, ev)
}
func (m *memorySink) APICall(context.Context, domain.APICallEvent) {}
func (m *memorySink) Error(_ context.Context, ev domain.ErrorEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, ev)
}

// deniedGate rejects every admission with a fixed wait.
type deniedGate struct{ wait time.Duration }

func (g deniedGate) TryAcquire(context.Context) bool                 { return false }
func (g deniedGate) TimeUntilNextSlot(context.Context) time.Duration { return g.wait }

func newTestService(t *testing.T, ex *fakeExchange, gate domain.AdmissionGate, sink domain.EventSink) *OrderService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fc := filters.NewCache(ex.ExchangeInfo, logger)
	exec := retry.New(retry.Config{}, nil, logger)
	svc := NewOrderService(ex, exec, fc, validate.New(logger), gate, sink, logger)
	svc.newID = func() string { return "fb-test" }
	return svc
}

func TestPlaceLimit_FormatsAndCaches(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	sink := &memorySink{}
	svc := newTestService(t, ex, nil, sink)

	order, err := svc.PlaceLimit(ctx, "btcusdt", domain.SideBuy,
		decimal.RequireFromString("0.0159999"), // truncates to the 0.001 step
		decimal.RequireFromString("49999.97"),  // floors to the 0.1 tick
		"",
	)
	require.Error(t, err, "misaligned quantity must be rejected before formatting")

	order, err = svc.PlaceLimit(ctx, "btcusdt", domain.SideBuy,
		decimal.RequireFromString("0.016"),
		decimal.RequireFromString("49999.9"),
		"",
	)
	require.NoError(t, err)

	created := ex.createdParams()
	require.Len(t, created, 1)
	p := created[0]
	assert.Equal(t, "BTCUSDT", p.Symbol, "symbol is upper-cased before submission")
	assert.Equal(t, "0.016", p.Quantity)
	assert.Equal(t, "49999.9", p.Price)
	assert.Equal(t, domain.TIFGoodTillCancel, p.TimeInForce)
	assert.Equal(t, "fb-test", p.ClientOrderID)

	cached := svc.CachedOrders("")
	require.Len(t, cached, 1)
	assert.Equal(t, order.OrderID, cached[0].OrderID)

	require.Len(t, sink.trades, 1)
	assert.Equal(t, "PLACE_ORDER", sink.trades[0].Action)
}

func TestPlaceLimit_TimeInForcePassthrough(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("49000"),
		"ioc", // normalized to upper case like the other string fields
	)
	require.NoError(t, err)

	created := ex.createdParams()
	require.Len(t, created, 1)
	assert.Equal(t, domain.TIFImmediateOrCancel, created[0].TimeInForce)
}

func TestPlaceLimit_RejectsPriceAcrossMarket(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{} // market at 50000
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceLimit(ctx, "BTCUSDT", domain.SideSell,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("49000"), // sell below market
		"",
	)
	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "price", rej.Field)
	assert.Empty(t, ex.createdParams(), "rejected orders never reach the exchange")
}

func TestPlaceMarket_ValidationStopsBadQuantity(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	sink := &memorySink{}
	svc := newTestService(t, ex, nil, sink)

	_, err := svc.PlaceMarket(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.0001"))
	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "quantity", rej.Field)
	assert.Empty(t, ex.createdParams())

	require.Len(t, sink.errs, 1)
	assert.Equal(t, "validation", sink.errs[0].Kind)
}

func TestPlaceStopLimit_EnforcesPriceRelation(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{} // market at 50000
	svc := newTestService(t, ex, nil, nil)

	// Buy stop below the current price can never trigger as intended.
	_, err := svc.PlaceStopLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("51000"),
		decimal.RequireFromString("49000"),
		"", false,
	)
	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "stopPrice", rej.Field)
	assert.Empty(t, ex.createdParams())

	// Correct relation goes through.
	_, err = svc.PlaceStopLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("52000"),
		decimal.RequireFromString("51000"),
		"", false,
	)
	require.NoError(t, err)
	created := ex.createdParams()
	require.Len(t, created, 1)
	assert.Equal(t, domain.OrderTypeStop, created[0].Type)
	assert.Equal(t, "51000.0", created[0].StopPrice)
	assert.Equal(t, domain.TIFGoodTillCancel, created[0].TimeInForce)
	assert.False(t, created[0].ReduceOnly)
}

func TestPlaceStopLimit_TIFAndReduceOnlyPassthrough(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{} // market at 50000
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceStopLimit(ctx, "BTCUSDT", domain.SideSell,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("48000"),
		decimal.RequireFromString("49000"),
		domain.TIFFillOrKill, true,
	)
	require.NoError(t, err)

	created := ex.createdParams()
	require.Len(t, created, 1)
	assert.Equal(t, domain.TIFFillOrKill, created[0].TimeInForce)
	assert.True(t, created[0].ReduceOnly)
}

func TestPlaceOCO_PlacesTwoReduceOnlyLegs(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{} // market at 50000
	svc := newTestService(t, ex, nil, nil)

	res, err := svc.PlaceOCO(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("55000"), // take profit above for a BUY position
		decimal.RequireFromString("48000"), // stop below
		decimal.RequireFromString("47900"), // limit price once the stop triggers
	)
	require.NoError(t, err)

	created := ex.createdParams()
	require.Len(t, created, 2)
	for _, p := range created {
		assert.Equal(t, domain.SideSell, p.Side, "legs close against the position")
		assert.True(t, p.ReduceOnly)
	}
	assert.Equal(t, domain.OrderTypeTakeProfitMarket, created[0].Type)
	assert.Equal(t, domain.OrderTypeStop, created[1].Type, "the stop-loss leg is a stop-limit order")
	assert.Equal(t, "48000.0", created[1].StopPrice)
	assert.Equal(t, "47900.0", created[1].Price)

	assert.Equal(t, "101_102", res.CompositeID)
	assert.Equal(t, int64(101), res.TakeProfit.OrderID)
	assert.Equal(t, int64(102), res.StopLoss.OrderID)
}

func TestPlaceOCO_StopLimitPriceDefaultsToStopPrice(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{} // market at 50000
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceOCO(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("55000"),
		decimal.RequireFromString("48000"),
		decimal.Zero,
	)
	require.NoError(t, err)

	created := ex.createdParams()
	require.Len(t, created, 2)
	assert.Equal(t, "48000.0", created[1].StopPrice)
	assert.Equal(t, "48000.0", created[1].Price, "omitted stop-limit price falls back to the stop price")
}

func TestPlaceOCO_SecondLegFailureCancelsFirst(t *testing.T) {
	ctx := context.Background()
	var cancelled []int64
	ex := &fakeExchange{}
	ex.createFn = func(_ context.Context, p domain.OrderParams) (domain.Order, error) {
		if p.Type == domain.OrderTypeStop {
			return domain.Order{}, &domain.APIError{HTTPStatus: 400, Code: -2010, HasCode: true, Message: "insufficient balance"}
		}
		return domain.Order{OrderID: 201, Symbol: p.Symbol, Side: p.Side, Type: p.Type, Status: domain.OrderStatusNew}, nil
	}
	ex.cancelFn = func(_ context.Context, symbol string, orderID int64) (domain.Order, error) {
		cancelled = append(cancelled, orderID)
		return domain.Order{OrderID: orderID, Status: domain.OrderStatusCanceled}, nil
	}
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceOCO(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("55000"),
		decimal.RequireFromString("48000"),
		decimal.Zero,
	)
	require.Error(t, err)
	assert.Equal(t, []int64{201}, cancelled, "the orphaned take-profit leg is cancelled")
	assert.Empty(t, svc.CachedOrders(""), "no half bracket survives in the cache")
}

func TestPlaceOCO_RejectsInvertedPrices(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceOCO(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"),
		decimal.RequireFromString("48000"), // take profit below market for a BUY
		decimal.RequireFromString("55000"),
		decimal.Zero,
	)
	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Empty(t, ex.createdParams())
}

func TestAdmissionDenialIsLocal(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	svc := newTestService(t, ex, deniedGate{wait: 750 * time.Millisecond}, nil)

	_, err := svc.PlaceMarket(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.01"))
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Contains(t, err.Error(), "750ms")
	assert.Empty(t, ex.createdParams(), "denied requests never reach the wire")
}

func TestBusinessErrorIsFatalNotRetried(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	ex.createFn = func(context.Context, domain.OrderParams) (domain.Order, error) {
		return domain.Order{}, &domain.APIError{HTTPStatus: 400, Code: -2010, HasCode: true, Message: "insufficient balance"}
	}
	sink := &memorySink{}
	svc := newTestService(t, ex, nil, sink)

	_, err := svc.PlaceMarket(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.01"))
	var fatal *domain.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Len(t, ex.createdParams(), 1, "business errors are never retried")

	require.Len(t, sink.errs, 1)
	assert.Equal(t, "fatal", sink.errs[0].Kind)
	assert.Empty(t, svc.CachedOrders(""))
}

func TestCancel_RemovesFromCache(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	svc := newTestService(t, ex, nil, nil)

	order, err := svc.PlaceLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("49000"), "")
	require.NoError(t, err)
	require.Len(t, svc.CachedOrders(""), 1)

	_, err = svc.Cancel(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Empty(t, svc.CachedOrders(""))
}

func TestOrderStatus_EvictsCompletedOrders(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	ex.getOrderFn = func(_ context.Context, symbol string, orderID int64) (domain.Order, error) {
		return domain.Order{OrderID: orderID, Symbol: symbol, Status: domain.OrderStatusFilled}, nil
	}
	svc := newTestService(t, ex, nil, nil)

	order, err := svc.PlaceLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("49000"), "")
	require.NoError(t, err)

	got, err := svc.OrderStatus(ctx, "BTCUSDT", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.Empty(t, svc.CachedOrders(""), "filled orders leave the cache")
}

func TestSyncCache_ExchangeIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	ex.openOrdersFn = func(_ context.Context, symbol string) ([]domain.Order, error) {
		assert.Empty(t, symbol, "reconciliation covers all symbols")
		return []domain.Order{
			{OrderID: 900, Symbol: "ETHUSDT", Status: domain.OrderStatusNew},
		}, nil
	}
	svc := newTestService(t, ex, nil, nil)

	order, err := svc.PlaceLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("49000"), "")
	require.NoError(t, err)
	_ = order

	require.NoError(t, svc.SyncCache(ctx))
	cached := svc.CachedOrders("")
	require.Len(t, cached, 1)
	assert.Equal(t, int64(900), cached[0].OrderID, "locally placed order was not in the open list, so it is gone")
}

func TestCachedOrders_FiltersBySymbol(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceLimit(ctx, "BTCUSDT", domain.SideBuy,
		decimal.RequireFromString("0.01"), decimal.RequireFromString("49000"), "")
	require.NoError(t, err)
	svc.cache.Put(domain.Order{OrderID: 700, Symbol: "ETHUSDT", Status: domain.OrderStatusNew})

	require.Len(t, svc.CachedOrders(""), 2)

	btc := svc.CachedOrders("BTCUSDT")
	require.Len(t, btc, 1)
	assert.Equal(t, "BTCUSDT", btc[0].Symbol)

	assert.Empty(t, svc.CachedOrders("SOLUSDT"))
}

func TestPlace_NonTradingSymbolRejected(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	ex.exchangeInfoFn = func(context.Context) (domain.ExchangeInfo, error) {
		info := testExchangeInfo()
		info.Symbols[0].Status = "BREAK"
		return info, nil
	}
	svc := newTestService(t, ex, nil, nil)

	_, err := svc.PlaceMarket(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.01"))
	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "symbol", rej.Field)
	assert.Empty(t, ex.createdParams())
}

func TestPlaceMarket_NotionalUsesMarkPrice(t *testing.T) {
	ctx := context.Background()
	ex := &fakeExchange{}
	ex.tickerFn = func(context.Context, string) (decimal.Decimal, error) {
		return decimal.RequireFromString("50000"), nil
	}
	svc := newTestService(t, ex, nil, nil)

	// 0.001 x 50000 = 50, under the 100 minimum.
	_, err := svc.PlaceMarket(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.001"))
	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "notional", rej.Field)

	// Price fetch failure downgrades the check and the order goes out.
	ex.tickerFn = func(context.Context, string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("feed down")
	}
	_, err = svc.PlaceMarket(ctx, "BTCUSDT", domain.SideBuy, decimal.RequireFromString("0.001"))
	require.NoError(t, err)
}
