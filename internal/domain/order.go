package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether an order buys or sells the base asset.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether the side is one of the two accepted values.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the other side. The protective legs of an OCO composite
// always close against the dominant position, so they trade on this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStop             OrderType = "STOP" // stop-limit
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// Valid reports whether the order type is one the client knows how to submit.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopMarket,
		OrderTypeTakeProfit, OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

// RequiresPrice reports whether the exchange demands an explicit limit price
// for this order type.
func (t OrderType) RequiresPrice() bool {
	switch t {
	case OrderTypeLimit, OrderTypeStop, OrderTypeTakeProfit:
		return true
	}
	return false
}

// RequiresStopPrice reports whether the exchange demands a trigger price for
// this order type.
func (t OrderType) RequiresStopPrice() bool {
	switch t {
	case OrderTypeStop, OrderTypeStopMarket, OrderTypeTakeProfit, OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

// TimeInForce is the order lifetime policy.
type TimeInForce string

const (
	TIFGoodTillCancel    TimeInForce = "GTC"
	TIFImmediateOrCancel TimeInForce = "IOC"
	TIFFillOrKill        TimeInForce = "FOK"
)

// Valid reports whether the time-in-force is one of the accepted policies.
func (t TimeInForce) Valid() bool {
	return t == TIFGoodTillCancel || t == TIFImmediateOrCancel || t == TIFFillOrKill
}

// OrderStatus tracks the order lifecycle as reported by the exchange.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Open reports whether the order can still trade.
func (s OrderStatus) Open() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Order is a snapshot of an exchange order record. The exchange's live order
// list is authoritative; local copies are an observability aid only.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Status        OrderStatus
	Quantity      decimal.Decimal
	ExecutedQty   decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
	TimeInForce   TimeInForce
	ReduceOnly    bool
	UpdatedAt     time.Time
}

// OrderParams is the wire-level payload of a create-order call. Quantity and
// prices are pre-formatted strings so the transport never re-rounds values the
// validator already aligned to the symbol's step and tick.
type OrderParams struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      string
	Price         string // empty when the type takes no price
	StopPrice     string // empty when the type takes no trigger
	TimeInForce   TimeInForce
	ReduceOnly    bool
	ClientOrderID string
}

// OCOResult is the synthetic composite returned by an OCO placement. The
// exchange primitive in scope has no atomic two-leg order type, so the
// composite ID is the concatenation of the two leg IDs.
type OCOResult struct {
	CompositeID string
	TakeProfit  Order
	StopLoss    Order
}

// Balance is a single asset's account balance.
type Balance struct {
	Asset     string
	Available decimal.Decimal
	Total     decimal.Decimal
}

// Account is the subset of the account endpoint the client consumes.
type Account struct {
	Balances []Balance
}

// BalanceOf returns the balance for the given asset, or a zero balance when
// the asset does not appear in the account.
func (a Account) BalanceOf(asset string) Balance {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b
		}
	}
	return Balance{Asset: asset}
}
