package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func filterPack(price string, qty int) CartLine {
	return CartLine{
		ProductID:   "drip-bag",
		ProductName: "Drip bag filter pack",
		Category:    product.CategoryFilterPack,
		UnitPrice:   d(price),
		Quantity:    qty,
	}
}

func beans(price string, qty int) CartLine {
	return CartLine{
		ProductID:   "beans",
		ProductName: "House blend beans",
		Category:    "beans",
		UnitPrice:   d(price),
		Quantity:    qty,
	}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name       string
		lines      []CartLine
		firstOrder bool
		subtotal   string
		item       string
		member     string
		total      string
	}{
		{
			name:     "guest filter pack x4",
			lines:    []CartLine{filterPack("100", 4)},
			subtotal: "400", item: "20", member: "0", total: "380",
		},
		{
			name:       "first order member filter pack x4",
			lines:      []CartLine{filterPack("100", 4)},
			firstOrder: true,
			subtotal:   "400", item: "20", member: "38", total: "342",
		},
		{
			name:     "filter pack x2",
			lines:    []CartLine{filterPack("100", 2)},
			subtotal: "200", item: "10", member: "0", total: "190",
		},
		{
			name:     "filter pack x3 floors pairs",
			lines:    []CartLine{filterPack("100", 3)},
			subtotal: "300", item: "10", member: "0", total: "290",
		},
		{
			name:     "single filter pack has no bulk discount",
			lines:    []CartLine{filterPack("100", 1)},
			subtotal: "100", item: "0", member: "0", total: "100",
		},
		{
			name:     "other categories never get bulk discount",
			lines:    []CartLine{beans("450", 4)},
			subtotal: "1800", item: "0", member: "0", total: "1800",
		},
		{
			name:       "mixed cart sums qualifying lines only",
			lines:      []CartLine{beans("450", 1), filterPack("100", 5), filterPack("120", 2)},
			firstOrder: true,
			// 450 + 500 + 240 = 1190; item 20 + 10 = 30; after 1160; member 116.
			subtotal: "1190", item: "30", member: "116", total: "1044",
		},
		{
			name:       "member discount rounds half up",
			lines:      []CartLine{beans("125", 1)},
			firstOrder: true,
			subtotal:   "125", item: "0", member: "13", total: "112",
		},
		{
			name:     "bulk discount capped at cheap line total",
			lines:    []CartLine{filterPack("3", 2)},
			subtotal: "6", item: "6", member: "0", total: "0",
		},
		{
			name:       "free items with member discount stay at zero",
			lines:      []CartLine{filterPack("0", 4)},
			firstOrder: true,
			subtotal:   "0", item: "0", member: "0", total: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeTotals(tt.lines, tt.firstOrder)
			require.NoError(t, err)

			assert.True(t, d(tt.subtotal).Equal(got.Subtotal), "subtotal: got %s", got.Subtotal)
			assert.True(t, d(tt.item).Equal(got.ItemDiscount), "item discount: got %s", got.ItemDiscount)
			assert.True(t, d(tt.member).Equal(got.MemberDiscount), "member discount: got %s", got.MemberDiscount)
			assert.True(t, d(tt.total).Equal(got.Total), "total: got %s", got.Total)

			assertInvariants(t, tt.lines, got)
		})
	}
}

func assertInvariants(t *testing.T, lines []CartLine, got Totals) {
	t.Helper()

	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, sum.Equal(got.Subtotal))
	assert.True(t, got.Subtotal.Sub(got.ItemDiscount).Sub(got.MemberDiscount).Equal(got.Total))
	assert.False(t, got.Total.IsNegative())

	// Charged line amounts must add up to the order-level figure exactly.
	charged := decimal.Zero
	for _, l := range got.Lines {
		charged = charged.Add(l.Charged)
	}
	assert.True(t, charged.Equal(got.AfterItemDiscount()))
}

func TestComputeTotals_DiscountedUnitPrice(t *testing.T) {
	got, err := ComputeTotals([]CartLine{filterPack("100", 4), beans("450", 2)}, false)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)

	assert.True(t, d("95").Equal(got.Lines[0].UnitPrice))
	assert.True(t, d("380").Equal(got.Lines[0].Charged))
	assert.True(t, d("450").Equal(got.Lines[1].UnitPrice))
}

func TestComputeTotals_Validation(t *testing.T) {
	tests := []struct {
		name  string
		lines []CartLine
		field string
	}{
		{name: "empty cart", lines: nil, field: "items"},
		{name: "zero quantity", lines: []CartLine{beans("10", 0)}, field: "items[0].quantity"},
		{name: "negative quantity", lines: []CartLine{beans("10", 1), beans("10", -2)}, field: "items[1].quantity"},
		{name: "negative price", lines: []CartLine{beans("-1", 1)}, field: "items[0].unitPrice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeTotals(tt.lines, false)

			var ve *validation.Error
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
