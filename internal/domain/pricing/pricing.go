// Package pricing computes cart and order totals. Everything in this package
// is a pure function over snapshots: calling it repeatedly with the same
// input yields the same output and mutates nothing.
package pricing

import (
	"github.com/shopspring/decimal"
)

// Line is a single priced line item. Unavailable lines (inactive product or
// insufficient stock) stay in the list for display but are excluded from the
// subtotal.
type Line struct {
	ProductID   string
	UnitPrice   decimal.Decimal
	Quantity    int
	Unavailable bool
}

// Charges holds the externally computed shipping and tax amounts.
type Charges struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// Totals is the result of pricing a set of lines.
type Totals struct {
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Shipping       decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	TotalItemCount int
}

// ComputeTotals prices the given lines with an optional discount already
// computed by the coupon engine. The discount is clamped so it never exceeds
// the subtotal and rounded to 2 decimal places (half up); an empty line list
// yields all-zero totals.
func ComputeTotals(lines []Line, discount decimal.Decimal, charges Charges) Totals {
	subtotal := decimal.Zero
	count := 0
	for _, l := range lines {
		if l.Unavailable {
			continue
		}
		qty := decimal.NewFromInt(int64(l.Quantity))
		subtotal = subtotal.Add(l.UnitPrice.Mul(qty))
		count += l.Quantity
	}

	d := discount
	if d.IsNegative() {
		d = decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	d = d.Round(2)

	total := subtotal.Sub(d).Add(charges.Shipping).Add(charges.Tax)

	return Totals{
		Subtotal:       subtotal,
		Discount:       d,
		Shipping:       charges.Shipping,
		Tax:            charges.Tax,
		Total:          total,
		TotalItemCount: count,
	}
}
