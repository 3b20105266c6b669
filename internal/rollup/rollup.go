// Package rollup computes the payment total of an invoice from its amount,
// platform fees and consumed vendor credit.
package rollup

import (
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// Input carries the amounts of a rollup. When VendorCreditConsumed is nil it
// is derived from RemainingAmountAfterCredits; when both are nil no credit is
// consumed.
type Input struct {
	Amount                      decimal.Decimal
	DestinationMarkupFee        decimal.Decimal
	SourceMarkupFee             decimal.Decimal
	RemainingAmountAfterCredits *decimal.Decimal
	VendorCreditConsumed        *decimal.Decimal
}

// Result is the computed rollup.
type Result struct {
	Amount               decimal.Decimal `json:"amount"`
	DestinationMarkupFee decimal.Decimal `json:"destinationMarkupFee"`
	SourceMarkupFee      decimal.Decimal `json:"sourceMarkupFee"`
	TotalFees            decimal.Decimal `json:"totalFees"`
	VendorCreditConsumed decimal.Decimal `json:"vendorCreditConsumed"`
	TotalPayment         decimal.Decimal `json:"totalPayment"`
}

// Calculate computes amount + fees - consumed credit. Consumed credit is
// clamped to [0, amount].
func Calculate(in Input) Result {
	consumed := decimal.Zero
	switch {
	case in.VendorCreditConsumed != nil:
		consumed = *in.VendorCreditConsumed
	case in.RemainingAmountAfterCredits != nil:
		consumed = in.Amount.Sub(*in.RemainingAmountAfterCredits)
	}
	consumed = Clamp(consumed, decimal.Zero, decimal.Max(in.Amount, decimal.Zero))

	fees := in.DestinationMarkupFee.Add(in.SourceMarkupFee)
	return Result{
		Amount:               in.Amount,
		DestinationMarkupFee: in.DestinationMarkupFee,
		SourceMarkupFee:      in.SourceMarkupFee,
		TotalFees:            fees,
		VendorCreditConsumed: consumed,
		TotalPayment:         in.Amount.Add(fees).Sub(consumed),
	}
}

// ForInvoice builds the rollup input from an invoice snapshot.
func ForInvoice(inv *domain.Invoice) Input {
	return Input{
		Amount:                      inv.Amount,
		DestinationMarkupFee:        inv.DestinationMarkupFee,
		SourceMarkupFee:             inv.SourceMarkupFee,
		RemainingAmountAfterCredits: inv.RemainingAmountAfterCredits,
	}
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
