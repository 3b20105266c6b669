package service

import (
	"context"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// Adapter applies one document kind's rules to the shared Service.
type Adapter struct {
	svc *Service
	p   profile
}

func vendorOf(inv *domain.Invoice) string { return inv.VendorID }
func payerOf(inv *domain.Invoice) string  { return inv.PayerID }

func orgLineItems(org domain.OrganizationConfig) bool {
	return org.PaymentMethodPolicies.LineItemsEnabled
}

func orgVendorCreationOff(org domain.OrganizationConfig) bool {
	return org.PaymentMethodPolicies.DisableVendorCreation
}

func always(domain.OrganizationConfig) bool { return true }

// NewPayableAdapter serves payables, the canonical variant: the entity pays
// a vendor from its payment source and line items are always enforced.
func NewPayableAdapter(svc *Service) *Adapter {
	return &Adapter{svc: svc, p: profile{
		kind:              KindPayable,
		fillSource:        true,
		counterparty:      vendorOf,
		lineItemsEnabled:  always,
		vendorCreationOff: orgVendorCreationOff,
	}}
}

// NewInvoiceAdapter serves AP invoices. Line item checks follow the
// organization's line item setting.
func NewInvoiceAdapter(svc *Service) *Adapter {
	return &Adapter{svc: svc, p: profile{
		kind:              KindInvoice,
		fillSource:        true,
		counterparty:      vendorOf,
		lineItemsEnabled:  orgLineItems,
		vendorCreationOff: orgVendorCreationOff,
	}}
}

// NewReceivableAdapter serves receivables. Roles are swapped: the payer is
// the counterparty and owns the source, which is optional and never
// defaulted, and the entity receives into its own destination.
func NewReceivableAdapter(svc *Service) *Adapter {
	return &Adapter{svc: svc, p: profile{
		kind:              KindReceivable,
		sourceOptional:    true,
		swapRoles:         true,
		counterparty:      payerOf,
		lineItemsEnabled:  orgLineItems,
		vendorCreationOff: always,
	}}
}

// Kind returns the document kind the adapter serves.
func (a *Adapter) Kind() Kind { return a.p.kind }

// EvaluateSnapshot evaluates inv against an explicit context without I/O.
func (a *Adapter) EvaluateSnapshot(ec EvaluationContext, inv *domain.Invoice, in Input) Evaluation {
	return a.svc.engine.evaluate(a.p, ec, inv, in)
}

// Evaluate loads the context for req and evaluates it.
func (a *Adapter) Evaluate(ctx context.Context, req *EvaluateRequest) (*Evaluation, error) {
	return a.svc.evaluate(ctx, a.p, req)
}

// Submit evaluates req and runs the resulting mutation.
func (a *Adapter) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResult, error) {
	return a.svc.submit(ctx, a.p, req)
}

// AssignApprover assigns a user to an approval slot with propagation.
func (a *Adapter) AssignApprover(ctx context.Context, req *AssignApproverRequest) (*AssignApproverResult, error) {
	return a.svc.assignApprover(ctx, a.p, req)
}

// SwitchPaymentMethod changes the payment method type for one role.
func (a *Adapter) SwitchPaymentMethod(ctx context.Context, req *SwitchPaymentMethodRequest) (*SwitchPaymentMethodResult, error) {
	return a.svc.switchPaymentMethod(ctx, a.p, req)
}

// ScanDocument runs OCR on doc and pre-fills the draft.
func (a *Adapter) ScanDocument(ctx context.Context, req *ScanDocumentRequest) (*ScanDocumentResult, error) {
	return a.svc.scanDocument(ctx, a.p, req)
}
