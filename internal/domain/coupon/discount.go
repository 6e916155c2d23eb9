package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// discountFor computes the discount amount a coupon grants against the given
// order value. The amount is capped at MaxDiscount when set, then clamped to
// the order value (both are upper bounds, so the order of the two clamps does
// not affect the result), and rounded to 2 decimal places half up.
func discountFor(c *Coupon, orderValue decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Kind {
	case KindPercentage:
		amount = orderValue.Mul(c.Value).Div(hundred)
	case KindFixed:
		amount = c.Value
	default:
		return decimal.Zero
	}

	if c.MaxDiscount.IsPositive() && amount.GreaterThan(c.MaxDiscount) {
		amount = c.MaxDiscount
	}
	if amount.GreaterThan(orderValue) {
		amount = orderValue
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}
