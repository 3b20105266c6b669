package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-payables/internal/rollup"
)

type rollupOutput struct {
	rollup.Result
	Currency          string `json:"currency,omitempty"`
	TotalPaymentMinor *int64 `json:"totalPaymentMinor,omitempty"`
	Display           string `json:"display,omitempty"`
}

func newRollupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rollup",
		Short:   "Compute amount + fees - consumed credit",
		Example: `  payablectl rollup --amount 1000 --destination-fee 2.50 --remaining 800 --currency USD`,
		RunE:    runRollup,
	}
	cmd.Flags().String("amount", "0", "Invoice amount in major units")
	cmd.Flags().String("destination-fee", "0", "Destination markup fee")
	cmd.Flags().String("source-fee", "0", "Source markup fee")
	cmd.Flags().String("remaining", "", "Remaining amount after vendor credits")
	cmd.Flags().String("credit", "", "Vendor credit consumed, wins over --remaining")
	cmd.Flags().String("currency", "", "ISO 4217 currency for minor unit conversion")
	return cmd
}

func runRollup(cmd *cobra.Command, args []string) error {
	in := rollup.Input{}
	var err error
	if in.Amount, err = decimalFlag(cmd, "amount"); err != nil {
		return err
	}
	if in.DestinationMarkupFee, err = decimalFlag(cmd, "destination-fee"); err != nil {
		return err
	}
	if in.SourceMarkupFee, err = decimalFlag(cmd, "source-fee"); err != nil {
		return err
	}
	if in.RemainingAmountAfterCredits, err = optionalDecimalFlag(cmd, "remaining"); err != nil {
		return err
	}
	if in.VendorCreditConsumed, err = optionalDecimalFlag(cmd, "credit"); err != nil {
		return err
	}

	out := rollupOutput{Result: rollup.Calculate(in)}
	if code, _ := cmd.Flags().GetString("currency"); code != "" {
		minor, err := rollup.MajorToMinor(out.TotalPayment, code, currencyMode(cmd))
		if err != nil {
			return err
		}
		out.Currency = code
		out.TotalPaymentMinor = &minor
		out.Display = rollup.Format(out.TotalPayment, code)
	}
	return writeJSON(cmd, out)
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return d, nil
}

func optionalDecimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	if raw, _ := cmd.Flags().GetString(name); raw == "" {
		return nil, nil
	}
	d, err := decimalFlag(cmd, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
