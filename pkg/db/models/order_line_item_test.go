package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderLineItemRemainingNeverNegative(t *testing.T) {
	cases := []struct {
		qty, returned, want int
	}{
		{qty: 5, returned: 2, want: 3},
		{qty: 3, returned: 0, want: 3},
		{qty: 2, returned: 2, want: 0},
		{qty: 1, returned: 4, want: 0},
	}
	for _, tc := range cases {
		li := OrderLineItem{Quantity: tc.qty, ReturnedQuantity: tc.returned}
		if got := li.Remaining(); got != tc.want {
			t.Fatalf("qty=%d returned=%d: expected %d got %d", tc.qty, tc.returned, tc.want, got)
		}
	}
}

func TestOrderLineItemLineTotalExcludesReturned(t *testing.T) {
	li := OrderLineItem{UnitPrice: decimal.NewFromInt(35000), Quantity: 5, ReturnedQuantity: 2}
	if got := li.LineTotal(); !got.Equal(decimal.NewFromInt(105000)) {
		t.Fatalf("expected 105000, got %s", got)
	}
}

func TestMenuItemAvailable(t *testing.T) {
	if !(MenuItem{InStock: true}).Available() {
		t.Fatal("in-stock visible item should be available")
	}
	if (MenuItem{InStock: false}).Available() {
		t.Fatal("out of stock item is unavailable")
	}
	if (MenuItem{InStock: true, Hidden: true}).Available() {
		t.Fatal("hidden item is unavailable")
	}
}
