package domain

import "github.com/shopspring/decimal"

// SymbolStatus is the exchange's trading status for a symbol.
type SymbolStatus string

// SymbolStatusTrading marks a symbol that currently accepts orders.
const SymbolStatusTrading SymbolStatus = "TRADING"

// SymbolFilters holds the numeric trading constraints the exchange publishes
// per symbol. All values are exact decimals; binary floating point must never
// touch step, tick, or notional comparisons.
//
// The exchange may omit any of the three filter groups for a symbol. An
// omitted group disables the corresponding check rather than failing it, which
// is why each group carries a presence flag.
type SymbolFilters struct {
	Symbol string
	Status SymbolStatus

	HasLotSize bool
	MinQty     decimal.Decimal
	MaxQty     decimal.Decimal
	StepSize   decimal.Decimal

	HasPriceFilter bool
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	TickSize       decimal.Decimal

	HasMinNotional bool
	MinNotional    decimal.Decimal
}

// Tradeable reports whether the symbol accepts new orders.
func (f SymbolFilters) Tradeable() bool { return f.Status == SymbolStatusTrading }

// ExchangeInfo is the metadata snapshot returned by the exchange, reduced to
// the per-symbol filters this client consumes.
type ExchangeInfo struct {
	Symbols []SymbolFilters
}
