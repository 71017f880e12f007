// Package pricing computes order totals from cart lines: the bulk discount on
// filter packs and the one-off first-order member discount.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

var (
	zero = decimal.Zero

	// bulkStep is the currency amount taken off for every pair of
	// filter packs on a line.
	bulkStep = decimal.NewFromInt(10)

	memberRate = decimal.RequireFromString("0.10")
)

// CartLine is a priced cart entry as resolved against the catalog.
type CartLine struct {
	ProductID   string
	ProductName string
	Category    string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// Line is the charged breakdown of a single cart line.
type Line struct {
	LineTotal decimal.Decimal
	Discount  decimal.Decimal
	// Charged is LineTotal minus Discount.
	Charged decimal.Decimal
	// UnitPrice is Charged divided by quantity. Informational only.
	UnitPrice decimal.Decimal
}

// Totals is the result of ComputeTotals. Lines follow the input order.
type Totals struct {
	Subtotal       decimal.Decimal
	ItemDiscount   decimal.Decimal
	MemberDiscount decimal.Decimal
	Total          decimal.Decimal
	Lines          []Line
}

// AfterItemDiscount returns the subtotal with the bulk discount taken off.
func (t Totals) AfterItemDiscount() decimal.Decimal {
	return t.Subtotal.Sub(t.ItemDiscount)
}

// ComputeTotals prices lines. firstOrder must be true only for an
// authenticated member with no prior orders.
func ComputeTotals(lines []CartLine, firstOrder bool) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, validation.Errorf("items", "cart is empty")
	}

	t := Totals{
		Subtotal:     zero,
		ItemDiscount: zero,
		Lines:        make([]Line, len(lines)),
	}
	for i, l := range lines {
		if err := validateLine(i, l); err != nil {
			return Totals{}, err
		}

		qty := decimal.NewFromInt(int64(l.Quantity))
		lineTotal := l.UnitPrice.Mul(qty)
		discount := bulkDiscount(l, lineTotal)
		charged := lineTotal.Sub(discount)

		t.Lines[i] = Line{
			LineTotal: lineTotal,
			Discount:  discount,
			Charged:   charged,
			UnitPrice: charged.Div(qty),
		}
		t.Subtotal = t.Subtotal.Add(lineTotal)
		t.ItemDiscount = t.ItemDiscount.Add(discount)
	}

	after := t.AfterItemDiscount()
	t.MemberDiscount = zero
	if firstOrder {
		// Half-up to whole currency units, never more than what is left.
		t.MemberDiscount = decimal.Min(after.Mul(memberRate).Round(0), after)
	}
	t.Total = after.Sub(t.MemberDiscount)

	return t, nil
}

// bulkDiscount is 10 per full pair of filter packs, capped at the line total
// so a line can never be charged a negative amount.
func bulkDiscount(l CartLine, lineTotal decimal.Decimal) decimal.Decimal {
	if l.Category != product.CategoryFilterPack {
		return zero
	}
	pairs := decimal.NewFromInt(int64(l.Quantity / 2))
	return decimal.Min(bulkStep.Mul(pairs), lineTotal)
}

func validateLine(i int, l CartLine) error {
	if l.Quantity <= 0 {
		return validation.Errorf(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
	}
	if l.UnitPrice.IsNegative() {
		return validation.Errorf(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
	}
	return nil
}
