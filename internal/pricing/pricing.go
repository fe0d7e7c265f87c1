// Package pricing computes package line totals and order-level totals.
//
// All monetary results are rounded to two places, half away from zero.
package pricing

import "github.com/shopspring/decimal"

var (
	// DefaultFeeRatePercent is the cash-out fee charged on a line's sub total.
	DefaultFeeRatePercent = decimal.NewFromInt(2)

	// Tolerance is the largest accepted gap between a client total and the recomputed one.
	Tolerance = decimal.New(1, -2)

	hundred = decimal.NewFromInt(100)
)

// Breakdown is the computed pricing of one package line.
type Breakdown struct {
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	SubTotal       decimal.Decimal `json:"sub_total"`
	Fee            decimal.Decimal `json:"cash_out_fee"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
}

// LineTotal prices a package. price <= 0 must be rejected before calling.
func LineTotal(price, discountPercent, feeRatePercent decimal.Decimal) Breakdown {
	discountAmount := price.Mul(discountPercent).Div(hundred)
	subTotal := clamp(Round2(price.Sub(discountAmount)))
	fee := clamp(Round2(subTotal.Mul(feeRatePercent).Div(hundred)))
	grandTotal := clamp(Round2(subTotal.Add(fee)))

	return Breakdown{
		DiscountAmount: discountAmount,
		SubTotal:       subTotal,
		Fee:            fee,
		GrandTotal:     grandTotal,
	}
}

// OrderTotal is subtotal - totalDiscount + tax + shipping. It is not rounded so
// tolerance checks compare the exact sum; round with Round2 before storing.
func OrderTotal(subtotal, totalDiscount, tax, shipping decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(totalDiscount).Add(tax).Add(shipping)
}

// WithinTolerance reports whether |a - b| <= Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
