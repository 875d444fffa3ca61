package invoices

import (
	"github.com/shopspring/decimal"

	"github.com/platinummonkey/carehub/pkg/apperr"
)

var hundred = decimal.NewFromInt(100)

// RecomputeTotals derives VATAmount and TotalAmount from PreVATTotal and
// VATRate (a percentage). It must run after every change to either input;
// nothing else may set the derived fields.
func RecomputeTotals(inv *Invoice) {
	inv.VATAmount = inv.PreVATTotal.Mul(inv.VATRate).Div(hundred).Round(2)
	inv.TotalAmount = inv.PreVATTotal.Add(inv.VATAmount).Round(2)
}

// maxVATRate is the largest rate the vat_rate column holds.
var maxVATRate = decimal.RequireFromString("999.99")

// subCent reports whether v carries digits below one cent. Amounts are
// stored with two decimals, so such values are rejected rather than rounded
// behind the caller's back.
func subCent(v decimal.Decimal) bool {
	return !v.Equal(v.Round(2))
}

// validateVATRate checks that rate fits the stored representation.
func validateVATRate(rate decimal.Decimal) error {
	switch {
	case rate.IsNegative():
		return apperr.InvalidAmount("vat rate %s is negative", rate)
	case rate.GreaterThan(maxVATRate):
		return apperr.InvalidAmount("vat rate %s exceeds %s", rate, maxVATRate)
	case subCent(rate):
		return apperr.InvalidAmount("vat rate %s has more than two decimals", rate)
	}
	return nil
}

// SumLines returns the pre-VAT total of the lines.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// statusForPaid maps the cumulative paid amount to a status. Payments only
// grow, so the result never moves an invoice backwards.
func statusForPaid(paid, total decimal.Decimal) Status {
	switch {
	case paid.GreaterThanOrEqual(total) && paid.IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartiallyPaid
	default:
		return StatusOutstanding
	}
}
