// Package validate checks proposed orders against exchange trading rules
// before any network call is made. All comparisons use exact decimal
// arithmetic; binary floating point would produce false step/tick rejections.
package validate

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/quantfold/futbot/internal/domain"
)

// MarkPriceFunc lazily fetches the current market price. The validator calls
// it only when the minimum-notional check needs a price and the intent does
// not carry one.
type MarkPriceFunc func() (decimal.Decimal, error)

// Validator applies structural and filter-based order validation.
type Validator struct {
	logger *slog.Logger
}

// New creates a Validator.
func New(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Order validates an intent against the symbol's filters, short-circuiting on
// the first violation. The returned error is always a *domain.Rejection naming
// the violated constraint and its bound. A nil return means the intent may be
// submitted.
//
// markPrice may be nil when the caller knows the intent carries a price; the
// notional check is then skipped if no price is present.
func (v *Validator) Order(intent domain.OrderIntent, filters domain.SymbolFilters, markPrice MarkPriceFunc) error {
	// Structural rules come before any filter lookup.
	if err := v.structural(intent); err != nil {
		return err
	}

	// No filters cached at all: fail closed rather than silently passing.
	if !filters.HasLotSize && !filters.HasPriceFilter && !filters.HasMinNotional {
		return domain.Reject(intent.Symbol, "filters", "no trading filters available for %s; refusing to validate", intent.Symbol)
	}

	if filters.HasLotSize {
		if err := v.lotSize(intent, filters); err != nil {
			return err
		}
	}

	if filters.HasPriceFilter {
		if intent.HasPrice {
			if err := v.priceFilter(intent.Symbol, "price", intent.Price, filters); err != nil {
				return err
			}
		}
		if intent.HasStopPrice {
			if err := v.priceFilter(intent.Symbol, "stopPrice", intent.StopPrice, filters); err != nil {
				return err
			}
		}
	}

	if filters.HasMinNotional {
		if err := v.minNotional(intent, filters, markPrice); err != nil {
			return err
		}
	}

	return nil
}

// structural enforces the order-type field requirements and positivity rules
// that hold regardless of exchange filters.
func (v *Validator) structural(intent domain.OrderIntent) error {
	if intent.Symbol == "" {
		return domain.Reject("", "symbol", "symbol must not be empty")
	}
	if !intent.Side.Valid() {
		return domain.Reject(intent.Symbol, "side", "side %q is not BUY or SELL", intent.Side)
	}
	if !intent.Type.Valid() {
		return domain.Reject(intent.Symbol, "type", "unknown order type %q", intent.Type)
	}
	if intent.Type != domain.OrderTypeMarket && !intent.TimeInForce.Valid() {
		return domain.Reject(intent.Symbol, "timeInForce", "time-in-force %q is not GTC, IOC, or FOK", intent.TimeInForce)
	}
	if !intent.Quantity.IsPositive() {
		return domain.Reject(intent.Symbol, "quantity", "quantity %s must be strictly positive", intent.Quantity)
	}
	if intent.Type.RequiresPrice() && !intent.HasPrice {
		return domain.Reject(intent.Symbol, "price", "%s orders require a price", intent.Type)
	}
	if intent.HasPrice && !intent.Price.IsPositive() {
		return domain.Reject(intent.Symbol, "price", "price %s must be strictly positive", intent.Price)
	}
	if intent.Type.RequiresStopPrice() && !intent.HasStopPrice {
		return domain.Reject(intent.Symbol, "stopPrice", "%s orders require a stop price", intent.Type)
	}
	if intent.HasStopPrice && !intent.StopPrice.IsPositive() {
		return domain.Reject(intent.Symbol, "stopPrice", "stop price %s must be strictly positive", intent.StopPrice)
	}
	return nil
}

// lotSize checks quantity bounds and step alignment.
func (v *Validator) lotSize(intent domain.OrderIntent, f domain.SymbolFilters) error {
	q := intent.Quantity
	if q.Cmp(f.MinQty) < 0 {
		return domain.Reject(intent.Symbol, "quantity", "quantity %s below minimum %s", q, f.MinQty)
	}
	if q.Cmp(f.MaxQty) > 0 {
		return domain.Reject(intent.Symbol, "quantity", "quantity %s above maximum %s", q, f.MaxQty)
	}
	if f.StepSize.IsPositive() && !q.Sub(f.MinQty).Mod(f.StepSize).IsZero() {
		return domain.Reject(intent.Symbol, "quantity", "quantity %s not aligned with step size %s", q, f.StepSize)
	}
	return nil
}

// priceFilter checks a price (or stop price) against bounds and tick
// alignment. The algorithm is the quantity check with the price filter
// substituted.
func (v *Validator) priceFilter(symbol, field string, p decimal.Decimal, f domain.SymbolFilters) error {
	if p.Cmp(f.MinPrice) < 0 {
		return domain.Reject(symbol, field, "%s %s below minimum %s", field, p, f.MinPrice)
	}
	if p.Cmp(f.MaxPrice) > 0 {
		return domain.Reject(symbol, field, "%s %s above maximum %s", field, p, f.MaxPrice)
	}
	if f.TickSize.IsPositive() && !p.Sub(f.MinPrice).Mod(f.TickSize).IsZero() {
		return domain.Reject(symbol, field, "%s %s not aligned with tick size %s", field, p, f.TickSize)
	}
	return nil
}

// minNotional checks quantity × price against the minimum order size. When the
// intent has no price the current market price is fetched; a fetch failure
// downgrades the check to a logged warning because the filter is best-effort.
func (v *Validator) minNotional(intent domain.OrderIntent, f domain.SymbolFilters, markPrice MarkPriceFunc) error {
	price := intent.Price
	if !intent.HasPrice {
		if markPrice == nil {
			v.logger.Warn("no price source for notional check, skipping",
				slog.String("symbol", intent.Symbol),
			)
			return nil
		}
		p, err := markPrice()
		if err != nil {
			v.logger.Warn("market price fetch failed, skipping notional check",
				slog.String("symbol", intent.Symbol),
				slog.String("error", err.Error()),
			)
			return nil
		}
		price = p
	}

	notional := intent.Quantity.Mul(price)
	if notional.Cmp(f.MinNotional) < 0 {
		return domain.Reject(intent.Symbol, "notional",
			"notional %s (quantity %s x price %s) below minimum %s",
			notional, intent.Quantity, price, f.MinNotional)
	}
	return nil
}
