package validate

import (
	"github.com/shopspring/decimal"

	"github.com/quantfold/futbot/internal/domain"
)

// stopProximityBps is the warning threshold for a stop price sitting within
// 0.1% of the current market price.
var stopProximityBps = decimal.NewFromFloat(0.001)

// StopLimitRelation enforces the price-relationship invariant for stop-limit
// orders against the current market price:
//
//	BUY:  stop > current and limit >= stop
//	SELL: stop < current and limit <= stop
//
// A violation is a local rejection, never a network error. The returned bool
// is true when the stop sits within 0.1% of the current price; callers should
// surface that as a warning, not a rejection.
func StopLimitRelation(symbol string, side domain.Side, limit, stop, current decimal.Decimal) (warnClose bool, err error) {
	switch side {
	case domain.SideBuy:
		if stop.Cmp(current) <= 0 {
			return false, domain.Reject(symbol, "stopPrice",
				"buy stop price %s must be above current price %s", stop, current)
		}
		if limit.Cmp(stop) < 0 {
			return false, domain.Reject(symbol, "price",
				"buy limit price %s must be >= stop price %s", limit, stop)
		}
	case domain.SideSell:
		if stop.Cmp(current) >= 0 {
			return false, domain.Reject(symbol, "stopPrice",
				"sell stop price %s must be below current price %s", stop, current)
		}
		if limit.Cmp(stop) > 0 {
			return false, domain.Reject(symbol, "price",
				"sell limit price %s must be <= stop price %s", limit, stop)
		}
	default:
		return false, domain.Reject(symbol, "side", "side %q is not BUY or SELL", side)
	}

	return stop.Sub(current).Abs().Cmp(current.Mul(stopProximityBps)) < 0, nil
}

// OCORelation enforces the directional invariant for the two protective legs
// of an OCO composite. For a dominant BUY position the take-profit must sit
// above the current price and the stop below it; mirrored for SELL.
func OCORelation(symbol string, side domain.Side, takeProfit, stop, current decimal.Decimal) error {
	switch side {
	case domain.SideBuy:
		if takeProfit.Cmp(current) <= 0 {
			return domain.Reject(symbol, "price",
				"take profit price %s must be above current price %s for BUY", takeProfit, current)
		}
		if stop.Cmp(current) >= 0 {
			return domain.Reject(symbol, "stopPrice",
				"stop price %s must be below current price %s for BUY", stop, current)
		}
	case domain.SideSell:
		if takeProfit.Cmp(current) >= 0 {
			return domain.Reject(symbol, "price",
				"take profit price %s must be below current price %s for SELL", takeProfit, current)
		}
		if stop.Cmp(current) <= 0 {
			return domain.Reject(symbol, "stopPrice",
				"stop price %s must be above current price %s for SELL", stop, current)
		}
	default:
		return domain.Reject(symbol, "side", "side %q is not BUY or SELL", side)
	}
	return nil
}

// LimitPriceAgainstMarket rejects limit prices that would cross the market in
// the wrong direction: a SELL below the current price or a BUY above it.
func LimitPriceAgainstMarket(symbol string, side domain.Side, proposed, current decimal.Decimal) error {
	switch side {
	case domain.SideSell:
		if proposed.Cmp(current) < 0 {
			return domain.Reject(symbol, "price",
				"sell limit price %s cannot be lower than current market price %s", proposed, current)
		}
	case domain.SideBuy:
		if proposed.Cmp(current) > 0 {
			return domain.Reject(symbol, "price",
				"buy limit price %s cannot be higher than current market price %s", proposed, current)
		}
	}
	return nil
}
