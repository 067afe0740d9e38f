package totals

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/cashdesk/internal/domain"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "expected %s, got %s", want, got.String())
}

func TestComputeExclusiveTax(t *testing.T) {
	lines := []Line{
		{UnitPrice: d("20"), Qty: 2},
		{UnitPrice: d("10"), Qty: 1},
	}

	res := Compute(lines, decimal.Zero, d("18"), false)

	assertDecimal(t, "50", res.Base)
	assertDecimal(t, "50", res.Subtotal)
	assertDecimal(t, "9", res.Tax)
	assertDecimal(t, "59", res.Total)
}

func TestComputeInclusiveTax(t *testing.T) {
	lines := []Line{{UnitPrice: d("118"), Qty: 1}}

	res := Compute(lines, d("8"), d("18"), true)

	assertDecimal(t, "118", res.Base)
	assertDecimal(t, "18", res.Tax)
	assertDecimal(t, "100", res.Subtotal)
	assertDecimal(t, "110", res.Total)
}

func TestComputeNoTaxWhenRateNotPositive(t *testing.T) {
	lines := []Line{{UnitPrice: d("12.50"), Qty: 4}}

	for _, rate := range []string{"0", "-5"} {
		for _, included := range []bool{true, false} {
			res := Compute(lines, d("5"), d(rate), included)
			assertDecimal(t, "50", res.Base)
			assertDecimal(t, "50", res.Subtotal)
			assertDecimal(t, "0", res.Tax)
			assertDecimal(t, "45", res.Total)
		}
	}
}

func TestComputeEmptyCartIsZero(t *testing.T) {
	res := Compute(nil, decimal.Zero, d("18"), false)

	assert.True(t, res.Base.IsZero())
	assert.True(t, res.Subtotal.IsZero())
	assert.True(t, res.Tax.IsZero())
	assert.True(t, res.Total.IsZero())
}

func TestComputeTotalNeverNegative(t *testing.T) {
	lines := []Line{{UnitPrice: d("10"), Qty: 1}}

	cases := []struct {
		name     string
		discount string
		rate     string
		included bool
	}{
		{name: "exclusive", discount: "1000", rate: "18", included: false},
		{name: "inclusive", discount: "1000", rate: "18", included: true},
		{name: "untaxed", discount: "10.01", rate: "0", included: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Compute(lines, d(tc.discount), d(tc.rate), tc.included)
			assert.False(t, res.Total.IsNegative())
			assert.True(t, res.Total.IsZero())
		})
	}
}

func TestComputeTaxProperties(t *testing.T) {
	epsilon := d("0.000000001")
	bases := []string{"0.01", "1", "9.99", "118", "1234.56", "99999.99"}
	rates := []string{"0.5", "5", "11", "18", "21", "100"}

	for _, base := range bases {
		for _, rate := range rates {
			lines := []Line{{UnitPrice: d(base), Qty: 1}}

			exclusive := Compute(lines, decimal.Zero, d(rate), false)
			wantTax := d(base).Mul(d(rate)).Div(decimal.NewFromInt(100))
			assert.True(t, exclusive.Tax.Sub(wantTax).Abs().LessThanOrEqual(epsilon), "exclusive tax base=%s rate=%s", base, rate)
			assert.True(t, exclusive.Subtotal.Equal(d(base)), "exclusive subtotal base=%s rate=%s", base, rate)

			inclusive := Compute(lines, decimal.Zero, d(rate), true)
			sum := inclusive.Subtotal.Add(inclusive.Tax)
			assert.True(t, sum.Sub(d(base)).Abs().LessThanOrEqual(epsilon), "inclusive sum base=%s rate=%s", base, rate)
			assert.True(t, inclusive.Tax.IsPositive(), "inclusive tax base=%s rate=%s", base, rate)
		}
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name     string
		lines    []Line
		discount string
		rate     string
	}{
		{name: "zero qty", lines: []Line{{UnitPrice: d("1"), Qty: 0}}, discount: "0", rate: "0"},
		{name: "negative price", lines: []Line{{UnitPrice: d("-1"), Qty: 1}}, discount: "0", rate: "0"},
		{name: "negative discount", lines: []Line{{UnitPrice: d("1"), Qty: 1}}, discount: "-1", rate: "0"},
		{name: "rate over 100", lines: []Line{{UnitPrice: d("1"), Qty: 1}}, discount: "0", rate: "100.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.lines, d(tc.discount), d(tc.rate))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}

	require.NoError(t, Validate([]Line{{UnitPrice: d("3.50"), Qty: 2}}, d("1"), d("-3")))
}
