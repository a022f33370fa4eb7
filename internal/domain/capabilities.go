package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeClient is the consumed exchange capability. Implementations perform
// the actual signed HTTP calls; callers treat every returned error as opaque
// except for tagged *APIError values, which carry the exchange numeric code
// used for retry classification.
type ExchangeClient interface {
	// ExchangeInfo fetches the full symbol metadata snapshot.
	ExchangeInfo(ctx context.Context) (ExchangeInfo, error)
	// ServerTime returns the exchange's clock in Unix milliseconds.
	ServerTime(ctx context.Context) (int64, error)
	// TickerPrice returns the latest traded price for a symbol.
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// Account returns balances for the authenticated account.
	Account(ctx context.Context) (Account, error)

	CreateOrder(ctx context.Context, params OrderParams) (Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (Order, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	// OpenOrders lists open orders; an empty symbol means all symbols.
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (Order, error)
	// OrderHistory lists recent orders for a symbol, newest last, at most
	// limit records.
	OrderHistory(ctx context.Context, symbol string, limit int) ([]Order, error)
}

// AdmissionGate is the local request throttle checked before any outbound
// call. It is stricter than, and independent of, any server-side limit: its
// job is to fail fast locally instead of generating exchange rate-limit errors
// that would then have to be retried.
type AdmissionGate interface {
	// TryAcquire admits and records the request if the budget allows.
	TryAcquire(ctx context.Context) bool
	// TimeUntilNextSlot returns how long until an admission could succeed.
	// Zero means a slot is free now.
	TimeUntilNextSlot(ctx context.Context) time.Duration
}

// EventSink accepts structured trade, API-call, and error events.
// Fire-and-forget: implementations must never fail the trading path.
type EventSink interface {
	Trade(ctx context.Context, ev TradeEvent)
	APICall(ctx context.Context, ev APICallEvent)
	Error(ctx context.Context, ev ErrorEvent)
}
