// Package totals computes sale totals under tax-inclusive and
// tax-exclusive regimes. All arithmetic is decimal; nothing is rounded here,
// callers decide when and how to present amounts.
package totals

import (
	"fmt"

	"github.com/shopspring/decimal"

	"kasirinaja/cashdesk/internal/domain"
)

// DivisionPrecision is the number of fractional digits kept when extracting
// tax from an inclusive price.
const DivisionPrecision int32 = 16

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

type Line struct {
	UnitPrice decimal.Decimal
	Qty       int64
}

type Result struct {
	Base     decimal.Decimal
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Compute returns base, subtotal, tax and total for lines. A non-positive
// rate means no tax. The total never goes below zero, however large the
// discount.
func Compute(lines []Line, discount decimal.Decimal, taxRatePercent decimal.Decimal, taxIncluded bool) Result {
	base := decimal.Zero
	for _, line := range lines {
		base = base.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Qty)))
	}

	tax := decimal.Zero
	subtotal := base
	if taxRatePercent.IsPositive() {
		if taxIncluded {
			divisor := one.Add(taxRatePercent.Div(hundred))
			tax = base.Sub(base.DivRound(divisor, DivisionPrecision))
			subtotal = base.Sub(tax)
		} else {
			tax = base.Mul(taxRatePercent).Div(hundred)
		}
	}

	gross := subtotal.Add(tax)
	if taxIncluded {
		gross = base
	}
	total := gross.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Result{Base: base, Subtotal: subtotal, Tax: tax, Total: total}
}

// Validate rejects inputs a sale must never carry: negative prices,
// non-positive quantities, a negative discount or a rate above 100%.
func Validate(lines []Line, discount decimal.Decimal, taxRatePercent decimal.Decimal) error {
	for i, line := range lines {
		if line.Qty < 1 {
			return fmt.Errorf("%w: line %d qty must be positive", domain.ErrValidation, i)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: line %d unit price must not be negative", domain.ErrValidation, i)
		}
	}
	if discount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", domain.ErrValidation)
	}
	if taxRatePercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: tax rate must not exceed 100", domain.ErrValidation)
	}
	return nil
}

// FromSaleLines adapts request lines to calculator lines.
func FromSaleLines(lines []domain.SaleLine) []Line {
	result := make([]Line, 0, len(lines))
	for _, line := range lines {
		result = append(result, Line{UnitPrice: line.UnitPrice, Qty: line.Qty})
	}
	return result
}
