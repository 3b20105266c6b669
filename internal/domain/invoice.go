// Package domain holds the invoice snapshot types the engine decides over.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is a lifecycle status.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "Draft"
	StatusNew       InvoiceStatus = "New"
	StatusApproved  InvoiceStatus = "Approved"
	StatusScheduled InvoiceStatus = "Scheduled"
	StatusPending   InvoiceStatus = "Pending"
	StatusPaid      InvoiceStatus = "Paid"
	StatusFailed    InvoiceStatus = "Failed"
	StatusCanceled  InvoiceStatus = "Canceled"
	StatusArchived  InvoiceStatus = "Archived"
	StatusRefused   InvoiceStatus = "Refused"
)

// AllStatuses lists every lifecycle status in flow order.
var AllStatuses = []InvoiceStatus{
	StatusDraft, StatusNew, StatusApproved, StatusScheduled, StatusPending,
	StatusPaid, StatusFailed, StatusCanceled, StatusArchived, StatusRefused,
}

// IsTerminal reports whether the status accepts no further user-driven
// transitions beyond archive.
func (s InvoiceStatus) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusCanceled, StatusArchived, StatusRefused:
		return true
	}
	return false
}

// ParseInvoiceStatus accepts any casing of a known status.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	for _, st := range AllStatuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// PaymentDestinationOptions carries rail-specific options for the
// destination. Only one of the fields is meaningful for a given type.
type PaymentDestinationOptions struct {
	TransferSpeed  string `json:"transferSpeed,omitempty"`
	DeliveryMethod string `json:"deliveryMethod,omitempty"`
}

// Invoice is the editable snapshot of a payable or receivable.
type Invoice struct {
	ID       string          `json:"id,omitempty"`
	EntityID string          `json:"entityId"`
	Status   InvoiceStatus   `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	InvoiceDate   *time.Time `json:"invoiceDate,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	DeductionDate *time.Time `json:"deductionDate,omitempty"`

	VendorID string `json:"vendorId,omitempty"`
	PayerID  string `json:"payerId,omitempty"`

	PaymentSourceID           string                     `json:"paymentSourceId,omitempty"`
	PaymentDestinationID      string                     `json:"paymentDestinationId,omitempty"`
	PaymentDestinationOptions *PaymentDestinationOptions `json:"paymentDestinationOptions,omitempty"`

	LineItems []LineItem     `json:"lineItems,omitempty"`
	Approvers []ApprovalSlot `json:"approvers,omitempty"`
	Metadata  MetadataValues `json:"metadata,omitempty"`

	HasDocuments   bool `json:"hasDocuments"`
	HasSourceEmail bool `json:"hasSourceEmail"`

	DestinationMarkupFee        decimal.Decimal  `json:"destinationMarkupFee"`
	SourceMarkupFee             decimal.Decimal  `json:"sourceMarkupFee"`
	RemainingAmountAfterCredits *decimal.Decimal `json:"remainingAmountAfterCredits,omitempty"`

	Comment string `json:"comment,omitempty"`
}

// Clone returns a deep copy so optimistic edits never alias the confirmed
// snapshot.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	out := *inv
	out.InvoiceDate = cloneTime(inv.InvoiceDate)
	out.DueDate = cloneTime(inv.DueDate)
	out.DeductionDate = cloneTime(inv.DeductionDate)
	if inv.PaymentDestinationOptions != nil {
		opts := *inv.PaymentDestinationOptions
		out.PaymentDestinationOptions = &opts
	}
	if inv.RemainingAmountAfterCredits != nil {
		r := *inv.RemainingAmountAfterCredits
		out.RemainingAmountAfterCredits = &r
	}
	if inv.LineItems != nil {
		out.LineItems = make([]LineItem, len(inv.LineItems))
		for i, li := range inv.LineItems {
			li.Metadata = li.Metadata.Clone()
			out.LineItems[i] = li
		}
	}
	if inv.Approvers != nil {
		out.Approvers = make([]ApprovalSlot, len(inv.Approvers))
		for i, s := range inv.Approvers {
			out.Approvers[i] = s.Clone()
		}
	}
	out.Metadata = inv.Metadata.Clone()
	return &out
}

// LineItemTotal sums the line item amounts.
func (inv *Invoice) LineItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range inv.LineItems {
		total = total.Add(li.Amount)
	}
	return total
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// LineItem is one row of an invoice.
type LineItem struct {
	ID          string          `json:"id,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Currency    string          `json:"currency,omitempty"`
	Metadata    MetadataValues  `json:"metadata,omitempty"`
	GLAccountID string          `json:"glAccountId,omitempty"`
}

// CalculatedAmount is quantity times unit price. ok is false when either
// is unset and the amount was entered directly.
func (li LineItem) CalculatedAmount() (amount decimal.Decimal, ok bool) {
	if li.Quantity.IsZero() || li.UnitPrice.IsZero() {
		return decimal.Zero, false
	}
	return li.Quantity.Mul(li.UnitPrice), true
}

// VendorKind is the KYC-lite classification of a counterparty.
type VendorKind string

const (
	VendorBusiness   VendorKind = "business"
	VendorIndividual VendorKind = "individual"
)

// NewVendorID is the placeholder vendor id used while a vendor is being
// created inline.
const NewVendorID = "new"

// Vendor is the counterparty profile consulted for completeness.
type Vendor struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Kind         VendorKind `json:"kind,omitempty"`
	BusinessName string     `json:"businessName,omitempty"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
}

// EntityUser is a member of the entity eligible for approval slots.
type EntityUser struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// HasAnyRole reports whether the user holds at least one of roles.
func (u EntityUser) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
