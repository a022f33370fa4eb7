package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPrecisionFromStep(t *testing.T) {
	tests := []struct {
		step string
		want int32
	}{
		{"0.001", 3},
		{"0.00100", 3},
		{"0.1", 1},
		{"1", 0},
		{"10", 0},
		{"0.00000001", 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PrecisionFromStep(decimal.RequireFromString(tt.step)), "step %s", tt.step)
	}
}

func TestFormatQuantity_TruncatesNeverRounds(t *testing.T) {
	step := decimal.RequireFromString("0.001")

	assert.Equal(t, "0.123", FormatQuantity(decimal.RequireFromString("0.12399"), step))
	assert.Equal(t, "0.999", FormatQuantity(decimal.RequireFromString("0.9999"), step))
	assert.Equal(t, "5.000", FormatQuantity(decimal.RequireFromString("5"), step))
}

func TestFormatPrice_FloorsToTick(t *testing.T) {
	tick := decimal.RequireFromString("0.1")

	assert.Equal(t, "50000.0", FormatPrice(decimal.RequireFromString("50000.07"), tick))
	assert.Equal(t, "49999.9", FormatPrice(decimal.RequireFromString("49999.99"), tick))
	assert.Equal(t, "100.0", FormatPrice(decimal.RequireFromString("100"), tick))
}

func TestFormat_RoundTripStable(t *testing.T) {
	// Formatting an already-aligned value must not change what it represents.
	step := decimal.RequireFromString("0.001")
	for _, s := range []string{"0.001", "0.010", "1.234", "99.999"} {
		out := FormatQuantity(decimal.RequireFromString(s), step)
		assert.True(t, decimal.RequireFromString(out).Equal(decimal.RequireFromString(s)), "value %s changed to %s", s, out)
	}

	tick := decimal.RequireFromString("0.5")
	for _, s := range []string{"50000", "50000.5", "0.5"} {
		out := FormatPrice(decimal.RequireFromString(s), tick)
		assert.True(t, decimal.RequireFromString(out).Equal(decimal.RequireFromString(s)), "value %s changed to %s", s, out)
	}
}
