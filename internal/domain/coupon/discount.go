package coupon

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// CalculateDiscount returns the discount the coupon grants on amount.
//
// Percentage discounts are rounded half-up to the whole currency unit before
// the optional maxDiscountAmount cap is applied. The result is always within
// [0, amount].
func CalculateDiscount(c *Coupon, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return zero
	}

	var raw decimal.Decimal
	switch c.Type {
	case DiscountPercentage:
		raw = amount.Mul(c.DiscountValue).Div(hundred).Round(0)
	case DiscountFixed:
		raw = c.DiscountValue
	default:
		return zero
	}

	if c.MaxDiscountAmount.Valid && raw.GreaterThan(c.MaxDiscountAmount.Decimal) {
		raw = c.MaxDiscountAmount.Decimal
	}

	return floorAtZero(decimal.Min(raw, amount))
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
