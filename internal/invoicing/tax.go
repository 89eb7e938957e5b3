package invoicing

import (
	"github.com/shopspring/decimal"

	"github.com/balanza-erp/balanza-erp/internal/money"
)

// IVA is baked into unit prices at a fixed 13%: the listed price already
// contains the tax, so the taxable base is back-calculated from the total.
var ivaDivisor = decimal.NewFromFloat(1.13)

// TaxBreakdown splits a tax-inclusive total into base and IVA.
type TaxBreakdown struct {
	Subtotal decimal.Decimal
	IVA      decimal.Decimal
	Total    decimal.Decimal
}

// BreakdownTotal computes subtotal = total/1.13 and iva = total - subtotal.
// Rounded so that subtotal + iva == total exactly.
func BreakdownTotal(total decimal.Decimal) TaxBreakdown {
	total = money.Round(total)
	subtotal := total.DivRound(ivaDivisor, 2)
	return TaxBreakdown{
		Subtotal: subtotal,
		IVA:      total.Sub(subtotal),
		Total:    total,
	}
}
