// Package service orchestrates order placement: local validation against the
// cached symbol filters, admission through the local rate limit, execution
// under the retry policy, and maintenance of the local order cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfold/futbot/internal/domain"
	"github.com/quantfold/futbot/internal/filters"
	"github.com/quantfold/futbot/internal/retry"
	"github.com/quantfold/futbot/internal/validate"
)

// OrderService is the high-level trading facade. Every outbound exchange call
// passes the local admission gate first and then runs under the retry
// executor; every completed order action updates the local cache and the
// event sink.
type OrderService struct {
	exchange  domain.ExchangeClient
	exec      *retry.Executor
	filters   *filters.Cache
	validator *validate.Validator
	gate      domain.AdmissionGate
	sink      domain.EventSink
	cache     *ActiveOrderCache
	logger    *slog.Logger

	// newID generates client order IDs; swapped in tests.
	newID func() string
	now   func() time.Time
}

// NewOrderService wires the orchestrator. gate and sink may be nil; a nil gate
// admits everything and a nil sink discards events.
func NewOrderService(
	exchange domain.ExchangeClient,
	exec *retry.Executor,
	fc *filters.Cache,
	validator *validate.Validator,
	gate domain.AdmissionGate,
	sink domain.EventSink,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		exchange:  exchange,
		exec:      exec,
		filters:   fc,
		validator: validator,
		gate:      gate,
		sink:      sink,
		cache:     NewActiveOrderCache(),
		logger:    logger,
		newID:     newClientOrderID,
		now:       time.Now,
	}
}

// newClientOrderID yields a 36-character ID that satisfies the exchange's
// clientOrderId charset.
func newClientOrderID() string {
	return "fb-" + uuid.NewString()[:33]
}

// PlaceMarket validates and submits a market order.
func (s *OrderService) PlaceMarket(ctx context.Context, symbol string, side domain.Side, quantity decimal.Decimal) (domain.Order, error) {
	intent := domain.OrderIntent{
		Symbol:   symbol,
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: quantity,
	}
	return s.place(ctx, intent, "PLACE_ORDER")
}

// PlaceLimit validates and submits a limit order. An empty tif defaults to
// GTC. The limit price is also checked against the current market so a
// fat-fingered price cannot cross the book immediately.
func (s *OrderService) PlaceLimit(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal, tif domain.TimeInForce) (domain.Order, error) {
	intent := domain.OrderIntent{
		Symbol:      symbol,
		Side:        side,
		Type:        domain.OrderTypeLimit,
		Quantity:    quantity,
		Price:       price,
		HasPrice:    true,
		TimeInForce: tif,
	}.Normalize()

	current, err := s.Price(ctx, intent.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	if err := validate.LimitPriceAgainstMarket(intent.Symbol, intent.Side, price, current); err != nil {
		s.emitRejection(ctx, err)
		return domain.Order{}, err
	}

	return s.place(ctx, intent, "PLACE_ORDER")
}

// PlaceStopLimit validates the stop/limit/market price relationship and
// submits a stop-limit order. An empty tif defaults to GTC; reduceOnly marks
// the order as position-reducing. A stop within 0.1% of the current price is
// logged as a warning but still submitted.
func (s *OrderService) PlaceStopLimit(ctx context.Context, symbol string, side domain.Side, quantity, limitPrice, stopPrice decimal.Decimal, tif domain.TimeInForce, reduceOnly bool) (domain.Order, error) {
	intent := domain.OrderIntent{
		Symbol:       symbol,
		Side:         side,
		Type:         domain.OrderTypeStop,
		Quantity:     quantity,
		Price:        limitPrice,
		HasPrice:     true,
		StopPrice:    stopPrice,
		HasStopPrice: true,
		TimeInForce:  tif,
		ReduceOnly:   reduceOnly,
	}.Normalize()

	current, err := s.Price(ctx, intent.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	warnClose, err := validate.StopLimitRelation(intent.Symbol, intent.Side, limitPrice, stopPrice, current)
	if err != nil {
		s.emitRejection(ctx, err)
		return domain.Order{}, err
	}
	if warnClose {
		s.logger.Warn("stop price within 0.1% of current price, may trigger immediately",
			slog.String("symbol", intent.Symbol),
			slog.String("stop_price", stopPrice.String()),
			slog.String("current_price", current.String()),
		)
	}

	return s.place(ctx, intent, "PLACE_ORDER")
}

// PlaceOCO emulates a one-cancels-other bracket with two reduce-only orders
// protecting a position on side: a take-profit leg and a stop-limit leg, both
// trading opposite the position. stopLimitPrice is the limit price of the
// stop leg once it triggers; zero means execute at the stop price. The
// exchange has no atomic two-leg primitive, so if the second leg is rejected
// the first is cancelled best-effort to avoid a half bracket.
func (s *OrderService) PlaceOCO(ctx context.Context, symbol string, side domain.Side, quantity, takeProfitPrice, stopPrice, stopLimitPrice decimal.Decimal) (domain.OCOResult, error) {
	normalized := domain.OrderIntent{Symbol: symbol, Side: side}.Normalize()
	symbol, side = normalized.Symbol, normalized.Side

	current, err := s.Price(ctx, symbol)
	if err != nil {
		return domain.OCOResult{}, err
	}
	if err := validate.OCORelation(symbol, side, takeProfitPrice, stopPrice, current); err != nil {
		s.emitRejection(ctx, err)
		return domain.OCOResult{}, err
	}

	legSide := side.Opposite()

	tp, err := s.place(ctx, domain.OrderIntent{
		Symbol:       symbol,
		Side:         legSide,
		Type:         domain.OrderTypeTakeProfitMarket,
		Quantity:     quantity,
		StopPrice:    takeProfitPrice,
		HasStopPrice: true,
		ReduceOnly:   true,
	}, "PLACE_OCO")
	if err != nil {
		return domain.OCOResult{}, fmt.Errorf("service: oco take-profit leg: %w", err)
	}

	slLimit := stopLimitPrice
	if slLimit.IsZero() {
		slLimit = stopPrice
	}
	sl, err := s.place(ctx, domain.OrderIntent{
		Symbol:       symbol,
		Side:         legSide,
		Type:         domain.OrderTypeStop,
		Quantity:     quantity,
		Price:        slLimit,
		HasPrice:     true,
		StopPrice:    stopPrice,
		HasStopPrice: true,
		ReduceOnly:   true,
	}, "PLACE_OCO")
	if err != nil {
		if _, cancelErr := s.Cancel(ctx, symbol, tp.OrderID); cancelErr != nil {
			s.logger.Error("failed to cancel orphaned take-profit leg",
				slog.String("symbol", symbol),
				slog.Int64("order_id", tp.OrderID),
				slog.String("error", cancelErr.Error()),
			)
		}
		return domain.OCOResult{}, fmt.Errorf("service: oco stop-loss leg: %w", err)
	}

	return domain.OCOResult{
		CompositeID: fmt.Sprintf("%d_%d", tp.OrderID, sl.OrderID),
		TakeProfit:  tp,
		StopLoss:    sl,
	}, nil
}

// Cancel cancels an order and drops it from the local cache.
func (s *OrderService) Cancel(ctx context.Context, symbol string, orderID int64) (domain.Order, error) {
	if err := s.admit(ctx); err != nil {
		return domain.Order{}, err
	}

	order, err := retry.Call(ctx, s.exec, "cancel order", func(ctx context.Context) (domain.Order, error) {
		return s.exchange.CancelOrder(ctx, symbol, orderID)
	})
	if err != nil {
		s.emitFailure(ctx, err, map[string]string{"symbol": symbol, "order_id": fmt.Sprint(orderID)})
		return domain.Order{}, err
	}

	s.cache.Remove(orderID)
	s.emitTrade(ctx, "CANCEL_ORDER", order)
	return order, nil
}

// CancelAll cancels every open order for a symbol and clears the symbol from
// the local cache.
func (s *OrderService) CancelAll(ctx context.Context, symbol string) error {
	if err := s.admit(ctx); err != nil {
		return err
	}

	err := s.exec.Do(ctx, "cancel all orders", func(ctx context.Context) error {
		return s.exchange.CancelAllOrders(ctx, symbol)
	})
	if err != nil {
		s.emitFailure(ctx, err, map[string]string{"symbol": symbol})
		return err
	}

	s.cache.RemoveSymbol(symbol)
	s.emitTrade(ctx, "CANCEL_ALL", domain.Order{Symbol: symbol})
	return nil
}

// OpenOrders lists open orders from the exchange; an empty symbol means all.
func (s *OrderService) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	return retry.Call(ctx, s.exec, "open orders", func(ctx context.Context) ([]domain.Order, error) {
		return s.exchange.OpenOrders(ctx, symbol)
	})
}

// OrderStatus fetches an order's current state and folds it into the cache:
// still-open orders are refreshed, completed ones are evicted.
func (s *OrderService) OrderStatus(ctx context.Context, symbol string, orderID int64) (domain.Order, error) {
	if err := s.admit(ctx); err != nil {
		return domain.Order{}, err
	}

	order, err := retry.Call(ctx, s.exec, "order status", func(ctx context.Context) (domain.Order, error) {
		return s.exchange.GetOrder(ctx, symbol, orderID)
	})
	if err != nil {
		return domain.Order{}, err
	}

	if order.Status.Open() {
		s.cache.Put(order)
	} else {
		s.cache.Remove(order.OrderID)
	}
	return order, nil
}

// History lists recent orders for a symbol, open and closed.
func (s *OrderService) History(ctx context.Context, symbol string, limit int) ([]domain.Order, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	return retry.Call(ctx, s.exec, "order history", func(ctx context.Context) ([]domain.Order, error) {
		return s.exchange.OrderHistory(ctx, symbol, limit)
	})
}

// CachedOrders returns the local order cache without any network call. An
// empty symbol returns every cached order.
func (s *OrderService) CachedOrders(symbol string) []domain.Order {
	return s.cache.List(symbol)
}

// SyncCache reconciles the local cache against the exchange's open-order list,
// which is authoritative. Orders that filled or were cancelled elsewhere
// disappear; orders placed by other processes appear.
func (s *OrderService) SyncCache(ctx context.Context) error {
	open, err := s.OpenOrders(ctx, "")
	if err != nil {
		return fmt.Errorf("service: sync order cache: %w", err)
	}
	s.cache.Replace(open)
	s.logger.Info("order cache synchronized", slog.Int("open_orders", len(open)))
	return nil
}

// Price returns the current market price for a symbol.
func (s *OrderService) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := s.admit(ctx); err != nil {
		return decimal.Zero, err
	}
	return retry.Call(ctx, s.exec, "ticker price", func(ctx context.Context) (decimal.Decimal, error) {
		return s.exchange.TickerPrice(ctx, symbol)
	})
}

// Balances returns the account balances.
func (s *OrderService) Balances(ctx context.Context) (domain.Account, error) {
	if err := s.admit(ctx); err != nil {
		return domain.Account{}, err
	}
	return retry.Call(ctx, s.exec, "account", func(ctx context.Context) (domain.Account, error) {
		return s.exchange.Account(ctx)
	})
}

// place runs the shared validate-format-admit-submit path for one order.
func (s *OrderService) place(ctx context.Context, intent domain.OrderIntent, action string) (domain.Order, error) {
	intent = intent.Normalize()

	sf, err := s.filters.Get(ctx, intent.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	if !sf.Tradeable() {
		rej := domain.Reject(intent.Symbol, "symbol", "symbol %s is not currently trading (status %s)", intent.Symbol, sf.Status)
		s.emitRejection(ctx, rej)
		return domain.Order{}, rej
	}

	markPrice := func() (decimal.Decimal, error) { return s.Price(ctx, intent.Symbol) }
	if err := s.validator.Order(intent, sf, markPrice); err != nil {
		s.emitRejection(ctx, err)
		return domain.Order{}, err
	}

	params := s.buildParams(intent, sf)

	if err := s.admit(ctx); err != nil {
		return domain.Order{}, err
	}

	order, err := retry.Call(ctx, s.exec, "create order", func(ctx context.Context) (domain.Order, error) {
		return s.exchange.CreateOrder(ctx, params)
	})
	if err != nil {
		s.emitFailure(ctx, err, map[string]string{
			"symbol":   intent.Symbol,
			"side":     string(intent.Side),
			"type":     string(intent.Type),
			"quantity": params.Quantity,
		})
		return domain.Order{}, err
	}

	if order.Status.Open() {
		s.cache.Put(order)
	}
	s.emitTrade(ctx, action, order)

	s.logger.Info("order placed",
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("type", string(order.Type)),
		slog.String("quantity", params.Quantity),
		slog.Int64("order_id", order.OrderID),
		slog.String("status", string(order.Status)),
	)
	return order, nil
}

// buildParams formats the validated intent into wire strings aligned to the
// symbol's step and tick. Values are truncated, never rounded up.
func (s *OrderService) buildParams(intent domain.OrderIntent, sf domain.SymbolFilters) domain.OrderParams {
	p := domain.OrderParams{
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Type:          intent.Type,
		TimeInForce:   intent.TimeInForce,
		ReduceOnly:    intent.ReduceOnly,
		ClientOrderID: s.newID(),
	}

	if sf.HasLotSize {
		p.Quantity = validate.FormatQuantity(intent.Quantity, sf.StepSize)
	} else {
		p.Quantity = intent.Quantity.String()
	}

	if intent.HasPrice {
		if sf.HasPriceFilter {
			p.Price = validate.FormatPrice(intent.Price, sf.TickSize)
		} else {
			p.Price = intent.Price.String()
		}
	}
	if intent.HasStopPrice {
		if sf.HasPriceFilter {
			p.StopPrice = validate.FormatPrice(intent.StopPrice, sf.TickSize)
		} else {
			p.StopPrice = intent.StopPrice.String()
		}
	}
	return p
}

// admit checks the local rate limit before any network call. A denial is a
// local error carrying the wait until the next free slot; nothing reaches the
// wire.
func (s *OrderService) admit(ctx context.Context) error {
	if s.gate == nil {
		return nil
	}
	if s.gate.TryAcquire(ctx) {
		return nil
	}
	wait := s.gate.TimeUntilNextSlot(ctx)
	s.logger.Warn("request denied by local rate limit",
		slog.Duration("retry_in", wait),
	)
	return fmt.Errorf("service: %w (next slot in %s)", domain.ErrRateLimited, wait)
}

func (s *OrderService) emitTrade(ctx context.Context, action string, o domain.Order) {
	if s.sink == nil {
		return
	}
	s.sink.Trade(ctx, domain.TradeEvent{
		Action:   action,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Type:     o.Type,
		Quantity: o.Quantity.String(),
		Price:    o.Price.String(),
		OrderID:  o.OrderID,
		Status:   o.Status,
		At:       s.now().UTC(),
	})
}

func (s *OrderService) emitRejection(ctx context.Context, err error) {
	if s.sink == nil {
		return
	}
	ev := domain.ErrorEvent{Kind: "validation", Message: err.Error(), At: s.now().UTC()}
	var rej *domain.Rejection
	if errors.As(err, &rej) {
		ev.Context = map[string]string{"symbol": rej.Symbol, "field": rej.Field}
	}
	s.sink.Error(ctx, ev)
}

func (s *OrderService) emitFailure(ctx context.Context, err error, fields map[string]string) {
	if s.sink == nil {
		return
	}
	kind := "transport"
	var fatal *domain.FatalError
	var exhausted *domain.RetryExhaustedError
	switch {
	case errors.As(err, &fatal):
		kind = "fatal"
	case errors.As(err, &exhausted):
		kind = "retry_exhausted"
	}
	s.sink.Error(ctx, domain.ErrorEvent{
		Kind:    kind,
		Message: err.Error(),
		Context: fields,
		At:      s.now().UTC(),
	})
}
