// Package money holds the decimal arithmetic for order totals. Amounts are
// Vietnamese dong and carry no fractional part once rounded.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineTotal is unit price times quantity. Negative quantities count as zero.
func LineTotal(unit decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return unit.Mul(decimal.NewFromInt(int64(qty)))
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// FormatVND renders an amount as "45.000 ₫": rounded to whole dong, dot as
// the thousands separator.
func FormatVND(amount decimal.Decimal) string {
	rounded := amount.Round(0)
	neg := rounded.IsNegative()
	digits := rounded.Abs().StringFixed(0)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	b.WriteString(" ₫")
	return b.String()
}
