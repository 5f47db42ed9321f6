package pricing_test

import (
	"errors"
	"math/rand"
	"testing"

	"sourcedpos/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute_PercentageDiscountWithTradeIn(t *testing.T) {
	cart := pricing.Cart{
		Lines:    []pricing.Line{{UnitPrice: d("100"), Quantity: 2, TaxRate: d("20")}},
		Discount: pricing.Discount{Type: pricing.DiscountPercentage, Value: d("10")},
		TradeIns: []decimal.Decimal{d("50")},
	}

	got, err := pricing.Compute(cart)
	require.NoError(t, err)
	got = got.Rounded()

	assert.Equal(t, "200", got.Subtotal.String())
	assert.Equal(t, "20", got.DiscountTotal.String())
	assert.Equal(t, "180", got.Lines[0].Taxable.String())
	assert.Equal(t, "36", got.TaxTotal.String())
	assert.Equal(t, "216", got.Total.String())
	assert.Equal(t, "50", got.PartExchangeTotal.String())
	assert.Equal(t, "166", got.NetTotal.String())
}

func TestCompute_FixedDiscountAllocatedProRata(t *testing.T) {
	// 300 + 100 gross; £40 off splits 30/10; tax only on the first line.
	cart := pricing.Cart{
		Lines: []pricing.Line{
			{UnitPrice: d("300"), Quantity: 1, TaxRate: d("20")},
			{UnitPrice: d("50"), Quantity: 2, TaxRate: d("0")},
		},
		Discount: pricing.Discount{Type: pricing.DiscountFixed, Value: d("40")},
	}

	got, err := pricing.Compute(cart)
	require.NoError(t, err)

	assert.Equal(t, "30", got.Lines[0].AllocatedDiscount.String())
	assert.Equal(t, "10", got.Lines[1].AllocatedDiscount.String())
	assert.Equal(t, "54", got.TaxTotal.String())
	assert.Equal(t, "414", got.Total.String())
}

func TestCompute_LineDiscountReducesTaxBase(t *testing.T) {
	cart := pricing.Cart{
		Lines: []pricing.Line{{UnitPrice: d("120"), Quantity: 1, Discount: d("20"), TaxRate: d("20")}},
	}

	got, err := pricing.Compute(cart)
	require.NoError(t, err)

	assert.Equal(t, "120", got.Subtotal.String())
	assert.Equal(t, "20", got.DiscountTotal.String())
	assert.Equal(t, "20", got.TaxTotal.String())
	assert.Equal(t, "120", got.Total.String())
}

func TestCompute_EmptyCartHasNoDivisionByZero(t *testing.T) {
	got, err := pricing.Compute(pricing.Cart{
		Discount: pricing.Discount{Type: pricing.DiscountPercentage, Value: d("15")},
	})
	require.NoError(t, err)
	assert.True(t, got.Subtotal.IsZero())
	assert.True(t, got.Total.IsZero())
}

func TestCompute_NetTotalMayBeNegative(t *testing.T) {
	got, err := pricing.Compute(pricing.Cart{
		Lines:    []pricing.Line{{UnitPrice: d("80"), Quantity: 1}},
		TradeIns: []decimal.Decimal{d("150")},
	})
	require.NoError(t, err)
	assert.Equal(t, "-70", got.NetTotal.String())
}

func TestCompute_Validation(t *testing.T) {
	cases := map[string]struct {
		cart  pricing.Cart
		field string
	}{
		"zero quantity": {
			cart:  pricing.Cart{Lines: []pricing.Line{{UnitPrice: d("10"), Quantity: 0}}},
			field: "lines[0].quantity",
		},
		"negative line discount": {
			cart:  pricing.Cart{Lines: []pricing.Line{{UnitPrice: d("10"), Quantity: 1, Discount: d("-1")}}},
			field: "lines[0].discount",
		},
		"percentage over 100": {
			cart: pricing.Cart{
				Lines:    []pricing.Line{{UnitPrice: d("10"), Quantity: 1}},
				Discount: pricing.Discount{Type: pricing.DiscountPercentage, Value: d("101")},
			},
			field: "discount.value",
		},
		"fixed discount above subtotal": {
			cart: pricing.Cart{
				Lines:    []pricing.Line{{UnitPrice: d("10"), Quantity: 1}},
				Discount: pricing.Discount{Type: pricing.DiscountFixed, Value: d("11")},
			},
			field: "discount",
		},
		"non-positive allowance": {
			cart: pricing.Cart{
				Lines:    []pricing.Line{{UnitPrice: d("10"), Quantity: 1}},
				TradeIns: []decimal.Decimal{d("0")},
			},
			field: "part_exchanges[0].allowance",
		},
		"unknown discount type": {
			cart: pricing.Cart{
				Lines:    []pricing.Line{{UnitPrice: d("10"), Quantity: 1}},
				Discount: pricing.Discount{Type: "bogof", Value: d("1")},
			},
			field: "discount.type",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pricing.Compute(tc.cart)
			require.Error(t, err)
			assert.True(t, errors.Is(err, pricing.ErrInvalidCart))
			var fe *pricing.FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tc.field, fe.Field)
		})
	}
}

func TestRounded_TotalsInvariantHoldsToThePenny(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 500; n++ {
		var cart pricing.Cart
		subtotal := decimal.Zero
		lines := 1 + rng.Intn(6)
		for i := 0; i < lines; i++ {
			l := pricing.Line{
				UnitPrice: decimal.New(int64(1+rng.Intn(500000)), -2),
				Quantity:  1 + rng.Intn(4),
				TaxRate:   decimal.NewFromInt(int64([]int{0, 5, 20}[rng.Intn(3)])),
			}
			subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
			cart.Lines = append(cart.Lines, l)
		}
		if rng.Intn(2) == 0 {
			cart.Discount = pricing.Discount{Type: pricing.DiscountPercentage, Value: decimal.New(int64(rng.Intn(5000)), -2)}
		} else {
			fixed := subtotal.Mul(decimal.NewFromFloat(rng.Float64())).Round(2)
			cart.Discount = pricing.Discount{Type: pricing.DiscountFixed, Value: fixed}
		}

		full, err := pricing.Compute(cart)
		require.NoError(t, err)
		r := full.Rounded()

		assert.True(t, r.Total.Equal(r.Subtotal.Sub(r.DiscountTotal).Add(r.TaxTotal)), "cart %d", n)
		assert.True(t, r.Total.Sub(full.Total).Abs().LessThanOrEqual(d("0.02")), "cart %d drifted", n)
	}
}
