// Package pricing computes cart totals. Everything here is a pure function of
// its input so the same code serves live quotes, commits and edits.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a cart-level discount value is interpreted.
type DiscountType string

const (
	DiscountNone       DiscountType = ""
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var hundred = decimal.NewFromInt(100)

// ErrInvalidCart is wrapped by every FieldError returned from Compute.
var ErrInvalidCart = errors.New("invalid cart")

// FieldError names the cart field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalidCart }

// Line is one cart line. Discount is an absolute per-line reduction that is
// tracked separately from the cart-level Discount.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
	Discount  decimal.Decimal
	TaxRate   decimal.Decimal // percent
}

// Discount is the cart-level discount as entered at the till.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Cart is an immutable snapshot of the basket. Callers build a new value on
// every change and pass it to Compute.
type Cart struct {
	Lines    []Line
	Discount Discount
	TradeIns []decimal.Decimal
}

// LineTotals is the per-line breakdown, index-aligned with Cart.Lines.
type LineTotals struct {
	Gross             decimal.Decimal
	LineDiscount      decimal.Decimal
	AllocatedDiscount decimal.Decimal
	Taxable           decimal.Decimal
	Tax               decimal.Decimal
}

// Totals are kept at full precision; call Rounded before persisting or
// displaying them.
type Totals struct {
	Subtotal          decimal.Decimal
	CartDiscount      decimal.Decimal
	LineDiscounts     decimal.Decimal
	DiscountTotal     decimal.Decimal
	TaxTotal          decimal.Decimal
	Total             decimal.Decimal
	PartExchangeTotal decimal.Decimal
	NetTotal          decimal.Decimal
	Lines             []LineTotals
}

// Compute prices a cart:
//
//	subtotal       = Σ unit_price × quantity
//	cart discount  = subtotal × value/100 (percentage) or value (fixed)
//	tax            = Σ (gross − line discount − pro-rata cart discount) × tax_rate/100
//	total          = subtotal − (cart discount + Σ line discounts) + tax
//	net            = total − Σ trade-in allowances
func Compute(cart Cart) (Totals, error) {
	if err := validate(cart); err != nil {
		return Totals{}, err
	}

	t := Totals{Lines: make([]LineTotals, len(cart.Lines))}
	for i, l := range cart.Lines {
		gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		t.Lines[i].Gross = gross
		t.Lines[i].LineDiscount = l.Discount
		t.Subtotal = t.Subtotal.Add(gross)
		t.LineDiscounts = t.LineDiscounts.Add(l.Discount)
	}

	switch cart.Discount.Type {
	case DiscountPercentage:
		t.CartDiscount = t.Subtotal.Mul(cart.Discount.Value).Div(hundred)
	case DiscountFixed:
		t.CartDiscount = cart.Discount.Value
	}
	t.DiscountTotal = t.CartDiscount.Add(t.LineDiscounts)
	if t.DiscountTotal.GreaterThan(t.Subtotal) {
		return Totals{}, &FieldError{Field: "discount", Reason: "discounts exceed the subtotal"}
	}

	for i, l := range cart.Lines {
		ratio := decimal.Zero
		if !t.Subtotal.IsZero() {
			ratio = t.Lines[i].Gross.Div(t.Subtotal)
		}
		allocated := t.CartDiscount.Mul(ratio)
		taxable := t.Lines[i].Gross.Sub(l.Discount).Sub(allocated)
		tax := taxable.Mul(l.TaxRate).Div(hundred)

		t.Lines[i].AllocatedDiscount = allocated
		t.Lines[i].Taxable = taxable
		t.Lines[i].Tax = tax
		t.TaxTotal = t.TaxTotal.Add(tax)
	}

	for _, a := range cart.TradeIns {
		t.PartExchangeTotal = t.PartExchangeTotal.Add(a)
	}
	t.Total = t.Subtotal.Sub(t.DiscountTotal).Add(t.TaxTotal)
	t.NetTotal = t.Total.Sub(t.PartExchangeTotal)
	return t, nil
}

// Rounded rounds the components to pence and derives Total and NetTotal from
// the rounded parts, so Total == Subtotal - DiscountTotal + TaxTotal holds
// exactly on the stored record.
func (t Totals) Rounded() Totals {
	r := Totals{
		Subtotal:          t.Subtotal.Round(2),
		CartDiscount:      t.CartDiscount.Round(2),
		LineDiscounts:     t.LineDiscounts.Round(2),
		TaxTotal:          t.TaxTotal.Round(2),
		PartExchangeTotal: t.PartExchangeTotal.Round(2),
		Lines:             t.Lines,
	}
	r.DiscountTotal = t.DiscountTotal.Round(2)
	r.Total = r.Subtotal.Sub(r.DiscountTotal).Add(r.TaxTotal)
	r.NetTotal = r.Total.Sub(r.PartExchangeTotal)
	return r
}

func validate(cart Cart) error {
	for i, l := range cart.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case l.Quantity <= 0:
			return &FieldError{Field: field + ".quantity", Reason: "must be greater than zero"}
		case l.UnitPrice.IsNegative():
			return &FieldError{Field: field + ".unit_price", Reason: "must not be negative"}
		case l.Discount.IsNegative():
			return &FieldError{Field: field + ".discount", Reason: "must not be negative"}
		case l.TaxRate.IsNegative():
			return &FieldError{Field: field + ".tax_rate", Reason: "must not be negative"}
		case l.Discount.GreaterThan(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))):
			return &FieldError{Field: field + ".discount", Reason: "exceeds the line amount"}
		}
	}

	switch cart.Discount.Type {
	case DiscountNone:
		if !cart.Discount.Value.IsZero() {
			return &FieldError{Field: "discount.type", Reason: "required when a discount value is given"}
		}
	case DiscountPercentage:
		if cart.Discount.Value.IsNegative() || cart.Discount.Value.GreaterThan(hundred) {
			return &FieldError{Field: "discount.value", Reason: "percentage must be between 0 and 100"}
		}
	case DiscountFixed:
		if cart.Discount.Value.IsNegative() {
			return &FieldError{Field: "discount.value", Reason: "must not be negative"}
		}
	default:
		return &FieldError{Field: "discount.type", Reason: "must be percentage or fixed"}
	}

	for i, a := range cart.TradeIns {
		if !a.IsPositive() {
			return &FieldError{Field: fmt.Sprintf("part_exchanges[%d].allowance", i), Reason: "must be greater than zero"}
		}
	}
	return nil
}
