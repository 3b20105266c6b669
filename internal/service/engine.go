package service

import (
	"fmt"
	"time"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/approval"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/lifecycle"
	"github.com/pesio-ai/be-ap-payables/internal/metadata"
	"github.com/pesio-ai/be-ap-payables/internal/paymentmethod"
	"github.com/pesio-ai/be-ap-payables/internal/rollup"
)

// Kind names the document variant an adapter serves.
type Kind string

const (
	KindInvoice    Kind = "invoice"
	KindPayable    Kind = "payable"
	KindReceivable Kind = "receivable"
)

// ParseKind parses a kind from a route segment.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindInvoice, KindPayable, KindReceivable:
		return Kind(s), nil
	case "invoices", "payables", "receivables":
		return Kind(s[:len(s)-1]), nil
	}
	return "", apperrors.InvalidInput("kind", fmt.Sprintf("unknown document kind '%s'", s))
}

// EvaluationContext is everything the engine reads besides the invoice. It
// is passed explicitly on every call.
type EvaluationContext struct {
	EntityID       string                         `json:"entityId"`
	Org            domain.OrganizationConfig      `json:"org"`
	Users          []domain.EntityUser            `json:"users"`
	Policies       []domain.ApprovalPolicy        `json:"policies"`
	PaymentMethods []domain.PaymentMethodInstance `json:"paymentMethods"`
	// CounterpartyID owns CounterpartyPaymentMethods. Empty means the
	// invoice's vendor (or payer, for receivables).
	CounterpartyID             string                         `json:"counterpartyId,omitempty"`
	CounterpartyPaymentMethods []domain.PaymentMethodInstance `json:"counterpartyPaymentMethods"`
	// Vendor is the counterparty profile, nil when unknown or new.
	Vendor *domain.Vendor `json:"vendor,omitempty"`
	Today  time.Time      `json:"today"`
}

// Input carries the user intent of one evaluation.
type Input struct {
	Action         lifecycle.Action     `json:"action,omitempty"`
	OverrideStatus domain.InvoiceStatus `json:"overrideStatus,omitempty"`
}

// ApproverView is one approval slot as presented for assignment.
type ApproverView struct {
	Slot       domain.ApprovalSlot   `json:"slot"`
	Assignable bool                  `json:"assignable"`
	Options    []approval.UserOption `json:"options"`
}

// Evaluation is the full derived view of an invoice snapshot.
type Evaluation struct {
	Kind                    Kind                    `json:"kind"`
	Invoice                 *domain.Invoice         `json:"invoice"`
	VisibleMetadata         []domain.MetadataSchema `json:"visibleMetadata"`
	VisibleLineItemMetadata []domain.MetadataSchema `json:"visibleLineItemMetadata"`
	Source                  paymentmethod.Selection `json:"source"`
	Destination             paymentmethod.Selection `json:"destination"`
	Approvers               []ApproverView          `json:"approvers"`
	Rollup                  rollup.Result           `json:"rollup"`
	Next                    lifecycle.Decision      `json:"next"`
	AllowedActions          []lifecycle.Action      `json:"allowedActions"`
	Errors                  apperrors.FieldErrors   `json:"errors,omitempty"`
	// TotalPaymentMinor is the rollup total in minor units of the invoice
	// currency, nil when the currency is unset or unknown.
	TotalPaymentMinor *int64 `json:"totalPaymentMinor,omitempty"`
	TotalPaymentText  string `json:"totalPaymentText,omitempty"`
}

// profile holds the per-kind rules an adapter applies to the shared engine.
type profile struct {
	kind Kind
	// sourceOptional drops the payment source requirement at Draft -> New.
	sourceOptional bool
	// fillSource copies the selected source instance into an empty
	// PaymentSourceID.
	fillSource bool
	// swapRoles makes the counterparty own the source and the entity own
	// the destination.
	swapRoles         bool
	counterparty      func(inv *domain.Invoice) string
	lineItemsEnabled  func(org domain.OrganizationConfig) bool
	vendorCreationOff func(org domain.OrganizationConfig) bool
}

// paymentMethods returns the owner and instances a role selects from. The
// entity pays from its own methods into the counterparty's, or the reverse
// when roles are swapped.
func (p profile) paymentMethods(role domain.PaymentRole, ec EvaluationContext) (string, []domain.PaymentMethodInstance) {
	if (role == domain.RoleSource) != p.swapRoles {
		return ec.EntityID, ec.PaymentMethods
	}
	return ec.CounterpartyID, ec.CounterpartyPaymentMethods
}

func (p profile) setPaymentMethods(role domain.PaymentRole, ec *EvaluationContext, instances []domain.PaymentMethodInstance) {
	if (role == domain.RoleSource) != p.swapRoles {
		ec.PaymentMethods = instances
		return
	}
	ec.CounterpartyPaymentMethods = instances
}

// selectInput builds the selector input for role.
func (p profile) selectInput(role domain.PaymentRole, ec EvaluationContext, currentID string) paymentmethod.SelectInput {
	owner, instances := p.paymentMethods(role, ec)
	return paymentmethod.SelectInput{
		Role:                   role,
		Instances:              instances,
		EntityID:               owner,
		CurrentPaymentMethodID: currentID,
		Org:                    ec.Org,
	}
}

// Engine evaluates invoice snapshots. It holds no per-call state.
type Engine struct {
	mode rollup.MinorUnitMode
}

// NewEngine creates an Engine converting totals to minor units with mode.
func NewEngine(mode rollup.MinorUnitMode) *Engine {
	if mode == "" {
		mode = rollup.ModeLegacy
	}
	return &Engine{mode: mode}
}

func (e *Engine) evaluate(p profile, ec EvaluationContext, inv *domain.Invoice, in Input) Evaluation {
	parsed, errs := metadata.ParseInvoice(ec.Org.MetadataSchemas, inv)
	if parsed.Status == "" {
		parsed.Status = domain.StatusDraft
	}
	if parsed.EntityID == "" {
		parsed.EntityID = ec.EntityID
	}

	if ec.CounterpartyID == "" {
		ec.CounterpartyID = p.counterparty(parsed)
	}
	source := paymentmethod.Select(p.selectInput(domain.RoleSource, ec, parsed.PaymentSourceID))
	destination := paymentmethod.Select(p.selectInput(domain.RoleDestination, ec, parsed.PaymentDestinationID))
	if p.fillSource && parsed.PaymentSourceID == "" {
		parsed.PaymentSourceID = source.InstanceID
	}
	if parsed.PaymentDestinationID == "" {
		parsed.PaymentDestinationID = destination.InstanceID
	}

	vctx := metadata.VisibilityContext{
		HasDocument:                parsed.HasDocuments || parsed.HasSourceEmail,
		HasNoLineItems:             len(parsed.LineItems) == 0,
		Options:                    ec.Org.MetadataOptions,
		PaymentSourceType:          source.PaymentType,
		PaymentSourceSchemaID:      source.SchemaID,
		PaymentDestinationType:     destination.PaymentType,
		PaymentDestinationSchemaID: destination.SchemaID,
	}
	visible := metadata.VisibleSchemas(ec.Org.MetadataSchemas, vctx)
	vctx.LineItem = true
	visibleLineItem := metadata.VisibleSchemas(ec.Org.MetadataSchemas, vctx)

	errs = append(errs, metadata.ValidateValues(visible, parsed.Metadata, "metadata")...)
	for i, li := range parsed.LineItems {
		errs = append(errs, metadata.ValidateValues(visibleLineItem, li.Metadata, fmt.Sprintf("lineItems[%d].metadata", i))...)
	}

	approvers := make([]ApproverView, 0, len(parsed.Approvers))
	for _, st := range approval.AssignableSlots(parsed.Approvers, ec.Policies) {
		approvers = append(approvers, ApproverView{
			Slot:       st.Slot,
			Assignable: st.Assignable,
			Options:    approval.Options(st.Slot, parsed.Approvers, ec.Policies, ec.Users),
		})
	}

	fields := lifecycle.Fields{
		Invoice:                parsed,
		Vendor:                 ec.Vendor,
		CounterpartyID:         p.counterparty(parsed),
		VendorCreationDisabled: p.vendorCreationOff(ec.Org),
		LineItemsEnabled:       p.lineItemsEnabled(ec.Org),
		SourceOptional:         p.sourceOptional,
		Policies:               ec.Policies,
		OverrideStatus:         in.OverrideStatus,
		Today:                  ec.Today,
	}
	next := lifecycle.NextStatus(parsed.Status, fields, in.Action)
	if in.Action == lifecycle.ActionNone && !next.Blocked {
		next = holdOnFieldErrors(next, errs)
	}

	totals := rollup.Calculate(rollup.ForInvoice(parsed))
	var minor *int64
	var text string
	if parsed.Currency != "" {
		if m, err := rollup.MajorToMinor(totals.TotalPayment, parsed.Currency, e.mode); err == nil {
			minor = &m
			text = rollup.Format(totals.TotalPayment, parsed.Currency)
		}
	}

	return Evaluation{
		Kind:                    p.kind,
		Invoice:                 parsed,
		VisibleMetadata:         visible,
		VisibleLineItemMetadata: visibleLineItem,
		Source:                  source,
		Destination:             destination,
		Approvers:               approvers,
		Rollup:                  totals,
		TotalPaymentMinor:       minor,
		TotalPaymentText:        text,
		Next:                    next,
		AllowedActions:          lifecycle.AllowedActions(parsed.Status),
		Errors:                  errs,
	}
}

// holdOnFieldErrors folds metadata errors into a forward decision.
func holdOnFieldErrors(d lifecycle.Decision, errs apperrors.FieldErrors) lifecycle.Decision {
	for _, e := range errs {
		if !d.Reasons.Has(e.Field) {
			d.Reasons.Add(e.Field, e.Message)
		}
	}
	if len(d.Reasons) > 0 {
		d.Status = d.From
		d.Advanced = false
		d.Mutation = lifecycle.MutationNone
	}
	return d
}
