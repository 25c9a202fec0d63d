package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLineTotal(t *testing.T) {
	unit := decimal.NewFromInt(45000)
	assert.True(t, LineTotal(unit, 3).Equal(decimal.NewFromInt(135000)))
	assert.True(t, LineTotal(unit, 0).IsZero())
	assert.True(t, LineTotal(unit, -2).IsZero())
}

func TestSum(t *testing.T) {
	got := Sum(decimal.NewFromInt(1000), decimal.NewFromInt(2500), decimal.Zero)
	assert.True(t, got.Equal(decimal.NewFromInt(3500)))
	assert.True(t, Sum().IsZero())
}

func TestFormatVND(t *testing.T) {
	cases := map[string]decimal.Decimal{
		"0 ₫":           decimal.Zero,
		"500 ₫":         decimal.NewFromInt(500),
		"45.000 ₫":      decimal.NewFromInt(45000),
		"1.250.000 ₫":   decimal.NewFromInt(1250000),
		"-120.000 ₫":    decimal.NewFromInt(-120000),
		"10.001 ₫":      decimal.RequireFromString("10000.6"),
		"100.000.000 ₫": decimal.NewFromInt(100000000),
	}
	for want, in := range cases {
		assert.Equal(t, want, FormatVND(in), "input %s", in)
	}
}
