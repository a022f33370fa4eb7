package validate

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PrecisionFromStep derives the number of meaningful fractional digits from a
// step or tick size. Trailing zeros are ignored, so "0.00100" and "0.001" both
// yield 3.
func PrecisionFromStep(step decimal.Decimal) int32 {
	s := step.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return int32(len(strings.TrimRight(s[i+1:], "0")))
}

// Truncate cuts value to the given number of fractional digits without
// rounding. Alignment to a step or tick must never round up: rounding could
// silently increase an order past what the caller asked for.
func Truncate(value decimal.Decimal, precision int32) decimal.Decimal {
	return value.Truncate(precision)
}

// FormatQuantity renders a quantity truncated to the step size's precision,
// with a fixed number of fractional digits as the exchange expects.
func FormatQuantity(quantity, step decimal.Decimal) string {
	prec := PrecisionFromStep(step)
	return quantity.Truncate(prec).StringFixed(prec)
}

// FormatPrice floors a price to the nearest tick multiple and renders it at
// the tick's precision.
func FormatPrice(price, tick decimal.Decimal) string {
	if !tick.IsPositive() {
		return price.String()
	}
	floored := price.Div(tick).Truncate(0).Mul(tick)
	return floored.StringFixed(PrecisionFromStep(tick))
}
