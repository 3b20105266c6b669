package ocr

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// MinConfidence is the lowest entity confidence used for pre-filling.
const MinConfidence float32 = 0.5

// Entity types produced by the invoice parser processor.
const (
	FieldTotalAmount = "total_amount"
	FieldCurrency    = "currency"
	FieldInvoiceDate = "invoice_date"
	FieldDueDate     = "due_date"
	FieldSupplier    = "supplier_name"
	FieldInvoiceID   = "invoice_id"
)

// Prefill copies confident extracted values into empty invoice fields and
// returns the names of the fields it set. Values the user already entered
// are never overwritten.
func Prefill(inv *domain.Invoice, res JobResult) []string {
	if inv == nil || res.Status != JobSucceeded {
		return nil
	}
	var applied []string
	get := func(name string) (string, bool) {
		f, ok := res.Fields[name]
		if !ok || f.Confidence < MinConfidence || strings.TrimSpace(f.Value) == "" {
			return "", false
		}
		return strings.TrimSpace(f.Value), true
	}

	if v, ok := get(FieldTotalAmount); ok && inv.Amount.IsZero() {
		if amt, err := parseAmount(v); err == nil {
			inv.Amount = amt
			applied = append(applied, "amount")
		}
	}
	if v, ok := get(FieldCurrency); ok && inv.Currency == "" && len(v) == 3 {
		inv.Currency = strings.ToUpper(v)
		applied = append(applied, "currency")
	}
	if v, ok := get(FieldInvoiceDate); ok && inv.InvoiceDate == nil {
		if d, err := time.Parse(domain.MetadataDateLayout, v); err == nil {
			inv.InvoiceDate = &d
			applied = append(applied, "invoiceDate")
		}
	}
	if v, ok := get(FieldDueDate); ok && inv.DueDate == nil {
		if d, err := time.Parse(domain.MetadataDateLayout, v); err == nil {
			inv.DueDate = &d
			applied = append(applied, "dueDate")
		}
	}
	if len(applied) > 0 {
		inv.HasDocuments = true
	}
	return applied
}

// errAmbiguousAmount rejects mentions whose separators could be read either
// way, such as "1.234,50".
var errAmbiguousAmount = errors.New("ambiguous amount separators")

// parseAmount accepts normalized values ("1234.5") and raw mentions
// ("$1,234.50"). Commas are only read as thousands separators before the
// decimal point, in groups of three.
func parseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	raw := b.String()

	intPart := raw
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		if strings.ContainsAny(raw[dot+1:], ".,") {
			return decimal.Zero, errAmbiguousAmount
		}
		intPart = raw[:dot]
	}
	groups := strings.Split(intPart, ",")
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return decimal.Zero, errAmbiguousAmount
		}
	}
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}
