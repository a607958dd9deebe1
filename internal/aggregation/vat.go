package aggregation

import (
	"github.com/shopspring/decimal"
)

// DefaultVATRate is the UAE standard rate.
var DefaultVATRate = decimal.RequireFromString("0.05")

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.RequireFromString("0.5")
)

type VATBreakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	VAT      decimal.Decimal `json:"vat"`
	Total    decimal.Decimal `json:"total"`
}

// Round2 rounds half up on the value scaled to cents.
func Round2(x decimal.Decimal) decimal.Decimal {
	return x.Mul(hundred).Add(half).Floor().Div(hundred)
}

// ComputeVAT splits a VAT-exclusive subtotal.
func ComputeVAT(subtotal, rate decimal.Decimal) VATBreakdown {
	vat := Round2(subtotal.Mul(rate))
	return VATBreakdown{
		Subtotal: subtotal,
		VAT:      vat,
		Total:    Round2(subtotal.Add(vat)),
	}
}

// ExpenseVAT splits an expense amount that may or may not already include
// VAT.
func ExpenseVAT(amount decimal.Decimal, vatIncluded bool, rate decimal.Decimal) VATBreakdown {
	if vatIncluded {
		net := amount.Div(decimal.NewFromInt(1).Add(rate))
		return VATBreakdown{
			Subtotal: Round2(net),
			VAT:      Round2(amount.Sub(net)),
			Total:    Round2(amount),
		}
	}
	vat := amount.Mul(rate)
	return VATBreakdown{
		Subtotal: Round2(amount),
		VAT:      Round2(vat),
		Total:    Round2(amount.Add(vat)),
	}
}

// NetVAT is output VAT minus input VAT. Input VAT on expenses is not
// reclaimed, so callers pass zero.
func NetVAT(output, input decimal.Decimal) decimal.Decimal {
	return output.Sub(input)
}

// SubtotalFromTotal reverses ComputeVAT on a VAT-inclusive total.
func SubtotalFromTotal(total, rate decimal.Decimal) decimal.Decimal {
	return Round2(total.Div(decimal.NewFromInt(1).Add(rate)))
}
