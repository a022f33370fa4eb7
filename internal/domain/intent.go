package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// OrderIntent is a proposed order before validation. Symbol, side, and
// time-in-force are normalized to upper case by Normalize; price and stop
// price are meaningful only when HasPrice / HasStopPrice are set.
type OrderIntent struct {
	Symbol       string
	Side         Side
	Type         OrderType
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	HasPrice     bool
	StopPrice    decimal.Decimal
	HasStopPrice bool
	TimeInForce  TimeInForce
	ReduceOnly   bool
}

// Normalize upper-cases the free-form string fields and fills in the default
// time-in-force for order types that require one.
func (i OrderIntent) Normalize() OrderIntent {
	i.Symbol = strings.ToUpper(strings.TrimSpace(i.Symbol))
	i.Side = Side(strings.ToUpper(string(i.Side)))
	i.Type = OrderType(strings.ToUpper(string(i.Type)))
	if i.TimeInForce == "" && i.Type != OrderTypeMarket {
		i.TimeInForce = TIFGoodTillCancel
	} else {
		i.TimeInForce = TimeInForce(strings.ToUpper(string(i.TimeInForce)))
	}
	return i
}
