package rollup

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MinorUnitMode selects how major amounts are converted to minor units.
type MinorUnitMode string

const (
	// ModeLegacy always shifts by two decimals, whatever the currency.
	// Downstream consumers of the hosted API were built against this and
	// JPY 100 becomes 10000 under it.
	ModeLegacy MinorUnitMode = "legacy"
	// ModeCurrencyAware shifts by the ISO 4217 minor units of the currency.
	ModeCurrencyAware MinorUnitMode = "iso"
)

const legacyMinorUnits = 2

// ParseMinorUnitMode maps a config string to a mode, defaulting to legacy.
func ParseMinorUnitMode(s string) MinorUnitMode {
	if strings.EqualFold(s, string(ModeCurrencyAware)) {
		return ModeCurrencyAware
	}
	return ModeLegacy
}

// MinorUnits returns the ISO 4217 number of fractional digits of code.
func MinorUnits(code string) (int32, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// MajorToMinor converts a major-unit amount to an integer minor-unit amount.
func MajorToMinor(amount decimal.Decimal, code string, mode MinorUnitMode) (int64, error) {
	units, err := MinorUnits(code)
	if err != nil {
		return 0, err
	}
	if mode != ModeCurrencyAware {
		units = legacyMinorUnits
	}
	return amount.Shift(units).Round(0).IntPart(), nil
}

// MinorToMajor is the inverse of MajorToMinor under the same mode.
func MinorToMajor(minor int64, code string, mode MinorUnitMode) (decimal.Decimal, error) {
	units, err := MinorUnits(code)
	if err != nil {
		return decimal.Zero, err
	}
	if mode != ModeCurrencyAware {
		units = legacyMinorUnits
	}
	return decimal.New(minor, -units), nil
}

var displayPrinter = message.NewPrinter(language.English)

// Format renders amount with the currency symbol for display. It never
// feeds back into computation.
func Format(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return amount.StringFixed(legacyMinorUnits) + " " + strings.ToUpper(code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	symbol := displayPrinter.Sprint(currency.Symbol(unit))
	if amount.IsNegative() {
		return "-" + symbol + amount.Abs().StringFixed(int32(scale))
	}
	return symbol + amount.StringFixed(int32(scale))
}
