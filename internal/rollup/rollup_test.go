package rollup

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func TestCalculateWithExplicitCredit(t *testing.T) {
	got := Calculate(Input{
		Amount:               d("100"),
		DestinationMarkupFee: d("2"),
		SourceMarkupFee:      d("1"),
		VendorCreditConsumed: ptr(d("10")),
	})

	assert.True(t, got.TotalFees.Equal(d("3")))
	assert.True(t, got.VendorCreditConsumed.Equal(d("10")))
	assert.True(t, got.TotalPayment.Equal(d("93")), got.TotalPayment.String())
}

func TestCalculateDerivesCreditFromRemaining(t *testing.T) {
	got := Calculate(Input{Amount: d("250.10"), RemainingAmountAfterCredits: ptr(d("200.05"))})
	assert.True(t, got.VendorCreditConsumed.Equal(d("50.05")))
	assert.True(t, got.TotalPayment.Equal(d("200.05")))
}

func TestCalculateClampsCredit(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		consumed string
		total    string
	}{
		{"remaining above amount", Input{Amount: d("100"), RemainingAmountAfterCredits: ptr(d("120"))}, "0", "100"},
		{"negative remaining", Input{Amount: d("100"), RemainingAmountAfterCredits: ptr(d("-5"))}, "100", "0"},
		{"consumed above amount", Input{Amount: d("40"), SourceMarkupFee: d("1.5"), VendorCreditConsumed: ptr(d("90"))}, "40", "1.5"},
		{"negative consumed", Input{Amount: d("40"), VendorCreditConsumed: ptr(d("-3"))}, "0", "40"},
		{"no credit", Input{Amount: d("12.34")}, "0", "12.34"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.in)
			assert.True(t, got.VendorCreditConsumed.Equal(d(tt.consumed)), got.VendorCreditConsumed.String())
			assert.True(t, got.TotalPayment.Equal(d(tt.total)), got.TotalPayment.String())
		})
	}
}

func TestCalculateHasNoCentDrift(t *testing.T) {
	got := Calculate(Input{Amount: d("0.1"), DestinationMarkupFee: d("0.2")})
	assert.Equal(t, "0.3", got.TotalPayment.String())
}

func TestForInvoice(t *testing.T) {
	inv := &domain.Invoice{Amount: d("100"), DestinationMarkupFee: d("2"), SourceMarkupFee: d("1"), RemainingAmountAfterCredits: ptr(d("90"))}
	got := Calculate(ForInvoice(inv))
	assert.True(t, got.TotalPayment.Equal(d("93")))
}

func TestMajorToMinorModes(t *testing.T) {
	legacy, err := MajorToMinor(d("100"), "JPY", ModeLegacy)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), legacy)

	iso, err := MajorToMinor(d("100"), "JPY", ModeCurrencyAware)
	require.NoError(t, err)
	assert.Equal(t, int64(100), iso)

	usd, err := MajorToMinor(d("12.345"), "USD", ModeCurrencyAware)
	require.NoError(t, err)
	assert.Equal(t, int64(1235), usd)

	_, err = MajorToMinor(d("1"), "XYZ1", ModeLegacy)
	assert.Error(t, err)

	back, err := MinorToMajor(10000, "JPY", ModeLegacy)
	require.NoError(t, err)
	assert.True(t, back.Equal(d("100")))

	assert.Equal(t, ModeCurrencyAware, ParseMinorUnitMode("ISO"))
	assert.Equal(t, ModeLegacy, ParseMinorUnitMode(""))
}

func TestFormat(t *testing.T) {
	assert.True(t, strings.HasSuffix(Format(d("1234.5"), "USD"), "1234.50"))
	assert.True(t, strings.HasSuffix(Format(d("1234.4"), "JPY"), "1234"))
	assert.True(t, strings.HasPrefix(Format(d("-3"), "EUR"), "-"))
	assert.Equal(t, "7.00 ZZZ", Format(d("7"), "zzz"))
}
