// Package service orchestrates the payables engine against the Invoicing
// API: it loads the evaluation context, runs payment method side effects,
// decides transitions and applies exactly one mutation per submission.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/client"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/events"
	"github.com/pesio-ai/be-ap-payables/internal/lifecycle"
	"github.com/pesio-ai/be-ap-payables/internal/ocr"
	"github.com/pesio-ai/be-ap-payables/internal/paymentmethod"
	"github.com/pesio-ai/be-ap-payables/internal/rollup"
)

// Service handles invoice business logic for every document kind.
type Service struct {
	api         client.InvoicingAPI
	engine      *Engine
	provisioner *paymentmethod.Provisioner
	ocr         ocr.Service
	poller      *ocr.Poller
	events      *events.Publisher
	log         zerolog.Logger
	now         func() time.Time
}

// Options carries the optional collaborators of a Service.
type Options struct {
	// Locker serializes off-platform provisioning; nil uses an in-process lock.
	Locker paymentmethod.Locker
	OCR    ocr.Service
	Poll   ocr.PollConfig
	Events *events.Publisher
	// CurrencyMode controls major to minor unit conversion of totals.
	CurrencyMode rollup.MinorUnitMode
	Now          func() time.Time
}

// NewService creates a new Service.
func NewService(api client.InvoicingAPI, opts Options, log zerolog.Logger) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		api:         api,
		engine:      NewEngine(opts.CurrencyMode),
		provisioner: paymentmethod.NewProvisioner(api, opts.Locker, log),
		ocr:         opts.OCR,
		events:      opts.Events,
		log:         log,
		now:         now,
	}
	if opts.OCR != nil {
		s.poller = ocr.NewPoller(opts.OCR, opts.Poll, log)
	}
	return s
}

// Adapter returns the adapter serving kind.
func (s *Service) Adapter(kind Kind) (*Adapter, error) {
	switch kind {
	case KindInvoice:
		return NewInvoiceAdapter(s), nil
	case KindPayable:
		return NewPayableAdapter(s), nil
	case KindReceivable:
		return NewReceivableAdapter(s), nil
	}
	return nil, apperrors.InvalidInput("kind", fmt.Sprintf("unknown document kind '%s'", kind))
}

// EvaluateRequest represents an evaluate request. Invoice carries unsaved
// edits and wins over InvoiceID.
type EvaluateRequest struct {
	EntityID  string          `json:"entityId"`
	InvoiceID string          `json:"invoiceId,omitempty"`
	Invoice   *domain.Invoice `json:"invoice,omitempty"`
	Input
}

// SubmitRequest represents a submit request. Without Invoice the stored
// snapshot of InvoiceID is submitted as is.
type SubmitRequest struct {
	EntityID  string          `json:"entityId"`
	InvoiceID string          `json:"invoiceId,omitempty"`
	Invoice   *domain.Invoice `json:"invoice,omitempty"`
	Input
	Comment string `json:"comment,omitempty"`
	ActorID string `json:"actorId,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// RequestID keys the idempotency of a create.
	RequestID string `json:"requestId,omitempty"`
}

// SubmitResult is the outcome of a submission. Invoice is always the last
// state confirmed by the Invoicing API; it is nil for unsaved drafts and
// deleted invoices.
type SubmitResult struct {
	Invoice    *domain.Invoice    `json:"invoice,omitempty"`
	Decision   lifecycle.Decision `json:"decision"`
	Evaluation *Evaluation        `json:"evaluation,omitempty"`
	Deleted    bool               `json:"deleted,omitempty"`
	// Stale is set when the API rejected the transition because the invoice
	// changed underneath; Invoice then holds the re-fetched state.
	Stale bool `json:"stale,omitempty"`
}

func (s *Service) evaluate(ctx context.Context, p profile, req *EvaluateRequest) (*Evaluation, error) {
	inv, err := s.resolveInvoice(ctx, req.EntityID, req.InvoiceID, req.Invoice)
	if err != nil {
		return nil, err
	}
	ec, err := s.LoadContext(ctx, p, req.EntityID, inv)
	if err != nil {
		return nil, err
	}
	ev := s.engine.evaluate(p, ec, inv, req.Input)
	return &ev, nil
}

func (s *Service) resolveInvoice(ctx context.Context, entityID, invoiceID string, inv *domain.Invoice) (*domain.Invoice, error) {
	if entityID == "" {
		return nil, apperrors.InvalidInput("entityId", "entity id is required")
	}
	if inv != nil {
		out := inv.Clone()
		if out.EntityID == "" {
			out.EntityID = entityID
		}
		return out, nil
	}
	if invoiceID == "" {
		return nil, apperrors.InvalidInput("invoice", "invoice or invoice id is required")
	}
	return s.api.GetInvoice(ctx, entityID, invoiceID)
}

// LoadContext fetches the organization configuration, approval policies,
// users, the payment methods of both parties and the counterparty profile
// for inv.
func (s *Service) LoadContext(ctx context.Context, p profile, entityID string, inv *domain.Invoice) (EvaluationContext, error) {
	ec := EvaluationContext{EntityID: entityID, Today: s.now().UTC()}

	org, err := s.api.GetOrganizationConfig(ctx, entityID)
	if err != nil {
		return ec, err
	}
	ec.Org = *org

	if ec.Policies, err = s.api.GetApprovalPolicies(ctx, entityID); err != nil {
		return ec, err
	}
	if ec.Users, err = s.api.ListEntityUsers(ctx, entityID); err != nil {
		return ec, err
	}
	if ec.PaymentMethods, err = s.api.ListPaymentMethods(ctx, entityID, domain.PaymentMethodFilter{}); err != nil {
		return ec, err
	}

	id := p.counterparty(inv)
	if !knownCounterparty(id) {
		return ec, nil
	}
	ec.CounterpartyID = id
	ec.CounterpartyPaymentMethods, err = s.api.ListPaymentMethods(ctx, id, domain.PaymentMethodFilter{})
	if err != nil && !apperrors.Is(err, apperrors.ErrCodeNotFound) {
		return ec, err
	}
	if !p.vendorCreationOff(ec.Org) {
		vendor, err := s.api.GetVendor(ctx, entityID, id)
		switch {
		case apperrors.Is(err, apperrors.ErrCodeNotFound):
			s.log.Debug().Str("vendor_id", id).Msg("Counterparty not found, treating as new")
		case err != nil:
			return ec, err
		default:
			ec.Vendor = vendor
		}
	}
	return ec, nil
}

func knownCounterparty(id string) bool {
	return id != "" && id != domain.NewVendorID
}

func (s *Service) submit(ctx context.Context, p profile, req *SubmitRequest) (*SubmitResult, error) {
	if req.EntityID == "" {
		return nil, apperrors.InvalidInput("entityId", "entity id is required")
	}
	if req.Invoice == nil && req.InvoiceID == "" {
		return nil, apperrors.InvalidInput("invoice", "invoice or invoice id is required")
	}

	var draft *domain.Invoice
	id := req.InvoiceID
	if req.Invoice != nil {
		draft = req.Invoice.Clone()
		if draft.EntityID == "" {
			draft.EntityID = req.EntityID
		}
		id = draft.ID
	}

	// Status is owned by the system of record, never by the client.
	var confirmed *domain.Invoice
	var err error
	if id != "" {
		if confirmed, err = s.api.GetInvoice(ctx, req.EntityID, id); err != nil {
			return nil, err
		}
		if draft == nil {
			draft = confirmed.Clone()
		}
		draft.Status = confirmed.Status
	} else {
		draft.Status = domain.StatusDraft
	}
	if req.Comment != "" {
		draft.Comment = req.Comment
	}

	ec, err := s.LoadContext(ctx, p, req.EntityID, draft)
	if err != nil {
		return nil, err
	}
	if req.Action == lifecycle.ActionNone {
		if draft, ec, err = s.provisionPaymentMethods(ctx, p, ec, draft); err != nil {
			return &SubmitResult{Invoice: confirmed}, err
		}
	}

	ev := s.engine.evaluate(p, ec, draft, req.Input)
	result := &SubmitResult{Invoice: confirmed, Decision: ev.Next, Evaluation: &ev}

	switch {
	case ev.Next.Blocked:
		return result, ev.Next.Err()
	case ev.Next.Mutation == lifecycle.MutationNone:
		return result, nil
	}
	if draft.ID == "" && ev.Next.Mutation != lifecycle.MutationCreate {
		return result, apperrors.InvalidInput("id", "invoice must be saved before this action")
	}
	if m := ev.Next.Mutation; (m == lifecycle.MutationApprove || m == lifecycle.MutationReject) && req.ActorID == "" {
		return result, apperrors.InvalidInput("actorId", "actor is required to approve or reject")
	}

	saved, err := s.mutate(ctx, ev.Invoice, ev.Next, req)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeStaleTransition) && draft.ID != "" {
			fresh, ferr := s.api.GetInvoice(ctx, req.EntityID, draft.ID)
			if ferr == nil {
				s.log.Warn().
					Str("invoice_id", draft.ID).
					Str("from", string(ev.Next.From)).
					Str("to", string(ev.Next.Status)).
					Str("current", string(fresh.Status)).
					Msg("Stale transition, invoice re-fetched")
				result.Invoice = fresh
				result.Stale = true
				return result, nil
			}
		}
		s.log.Error().Err(err).
			Str("invoice_id", draft.ID).
			Str("mutation", string(ev.Next.Mutation)).
			Msg("Invoice mutation failed, keeping last confirmed state")
		return result, err
	}

	result.Invoice = saved
	result.Deleted = ev.Next.Mutation == lifecycle.MutationDelete

	invoiceID := draft.ID
	if saved != nil {
		invoiceID = saved.ID
	}
	s.log.Info().
		Str("invoice_id", invoiceID).
		Str("entity_id", req.EntityID).
		Str("kind", string(p.kind)).
		Str("from", string(ev.Next.From)).
		Str("to", string(ev.Next.Status)).
		Str("mutation", string(ev.Next.Mutation)).
		Msg("Invoice submitted")

	s.events.Publish(ctx, events.Event{
		EventType:  eventType(ev.Next.Mutation),
		EntityID:   req.EntityID,
		ActorID:    req.ActorID,
		InvoiceID:  invoiceID,
		Kind:       string(p.kind),
		FromStatus: string(ev.Next.From),
		ToStatus:   string(ev.Next.Status),
	})
	return result, nil
}

// mutate runs the single Invoicing API call of d under an idempotency key.
func (s *Service) mutate(ctx context.Context, inv *domain.Invoice, d lifecycle.Decision, req *SubmitRequest) (*domain.Invoice, error) {
	keyID := inv.ID
	if keyID == "" {
		keyID = req.RequestID
	}
	if keyID == "" {
		keyID = uuid.NewString()
	}
	ctx = client.WithIdempotencyKey(ctx, client.IdempotencyKey(keyID, string(d.Mutation), string(d.Status)))

	out := inv.Clone()
	out.Status = d.Status
	switch d.Mutation {
	case lifecycle.MutationCreate:
		return s.api.CreateInvoice(ctx, out)
	case lifecycle.MutationUpdate:
		return s.api.UpdateInvoice(ctx, out)
	case lifecycle.MutationDelete:
		return nil, s.api.DeleteInvoice(ctx, inv.EntityID, inv.ID)
	case lifecycle.MutationApprove:
		return s.api.ApproveInvoice(ctx, inv.EntityID, inv.ID, req.ActorID)
	case lifecycle.MutationReject:
		return s.api.RejectInvoice(ctx, inv.EntityID, inv.ID, req.ActorID, req.Reason)
	}
	return nil, apperrors.Internal(fmt.Sprintf("unsupported mutation '%s'", d.Mutation), nil)
}

func eventType(m lifecycle.Mutation) string {
	switch m {
	case lifecycle.MutationCreate:
		return events.EventInvoiceCreated
	case lifecycle.MutationDelete:
		return events.EventInvoiceDeleted
	case lifecycle.MutationApprove:
		return events.EventInvoiceApproved
	case lifecycle.MutationReject:
		return events.EventInvoiceRejected
	}
	return events.EventInvoiceUpdated
}

// provisionPaymentMethods runs pending selection side effects and fills
// empty payment method ids from the final selections.
func (s *Service) provisionPaymentMethods(ctx context.Context, p profile, ec EvaluationContext, inv *domain.Invoice) (*domain.Invoice, EvaluationContext, error) {
	roles := []domain.PaymentRole{domain.RoleDestination}
	if p.fillSource {
		roles = append([]domain.PaymentRole{domain.RoleSource}, roles...)
	}

	for _, role := range roles {
		current := &inv.PaymentDestinationID
		if role == domain.RoleSource {
			current = &inv.PaymentSourceID
		}
		in := p.selectInput(role, ec, *current)
		sel := paymentmethod.Select(in)
		if !sel.Pending() {
			continue
		}
		sel, instances, err := s.provisioner.Finalize(ctx, in, sel)
		if err != nil {
			return inv, ec, err
		}
		p.setPaymentMethods(role, &ec, instances)
		*current = sel.InstanceID

		s.events.Publish(ctx, events.Event{
			EventType: events.EventPaymentMethodProvisioned,
			EntityID:  ec.EntityID,
			InvoiceID: inv.ID,
			Payload: map[string]any{
				"role":            string(role),
				"ownerId":         in.EntityID,
				"paymentMethodId": sel.InstanceID,
			},
		})
	}
	return inv, ec, nil
}

// SwitchPaymentMethodRequest represents a payment method type change.
type SwitchPaymentMethodRequest struct {
	EntityID string             `json:"entityId"`
	Invoice  *domain.Invoice    `json:"invoice"`
	Role     domain.PaymentRole `json:"role"`
	Type     string             `json:"type"`
}

// SwitchPaymentMethodResult is the draft after a type change.
type SwitchPaymentMethodResult struct {
	Invoice        *domain.Invoice                `json:"invoice"`
	Selection      paymentmethod.Selection        `json:"selection"`
	PaymentMethods []domain.PaymentMethodInstance `json:"paymentMethods"`
}

func (s *Service) switchPaymentMethod(ctx context.Context, p profile, req *SwitchPaymentMethodRequest) (*SwitchPaymentMethodResult, error) {
	if req.Role != domain.RoleSource && req.Role != domain.RoleDestination {
		return nil, apperrors.InvalidInput("role", "role must be source or destination")
	}
	if req.Type == "" {
		return nil, apperrors.InvalidInput("type", "type is required")
	}
	inv, err := s.resolveInvoice(ctx, req.EntityID, "", req.Invoice)
	if err != nil {
		return nil, err
	}

	org, err := s.api.GetOrganizationConfig(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}
	ec := EvaluationContext{EntityID: req.EntityID, Org: *org, CounterpartyID: p.counterparty(inv)}
	owner, _ := p.paymentMethods(req.Role, ec)
	if !knownCounterparty(owner) {
		return nil, apperrors.InvalidInput("counterparty", "counterparty is required to choose its payment method")
	}
	methods, err := s.api.ListPaymentMethods(ctx, owner, domain.PaymentMethodFilter{})
	if err != nil {
		return nil, err
	}

	in := p.selectInput(req.Role, ec, "")
	in.Instances = methods
	sel, instances, err := s.provisioner.Finalize(ctx, in, paymentmethod.SwitchType(in, req.Type))
	if err != nil {
		return nil, err
	}

	if req.Role == domain.RoleSource {
		inv.PaymentSourceID = sel.InstanceID
	} else {
		inv.PaymentDestinationID = sel.InstanceID
		if sel.ClearOptions {
			inv.PaymentDestinationOptions = nil
		}
	}
	return &SwitchPaymentMethodResult{Invoice: inv, Selection: sel, PaymentMethods: instances}, nil
}

// ScanDocumentRequest carries a document to pre-fill a draft from.
type ScanDocumentRequest struct {
	EntityID string
	Invoice  *domain.Invoice
	Document ocr.Document
}

// ScanDocumentResult is the pre-filled draft and its evaluation.
type ScanDocumentResult struct {
	Job        ocr.JobResult `json:"job"`
	Applied    []string      `json:"applied"`
	Evaluation *Evaluation   `json:"evaluation"`
}

func (s *Service) scanDocument(ctx context.Context, p profile, req *ScanDocumentRequest) (*ScanDocumentResult, error) {
	if s.ocr == nil {
		return nil, apperrors.New(apperrors.ErrCodeExternal, "document scanning is not configured")
	}
	draft := req.Invoice
	if draft == nil {
		draft = &domain.Invoice{Status: domain.StatusDraft}
	}
	inv, err := s.resolveInvoice(ctx, req.EntityID, "", draft)
	if err != nil {
		return nil, err
	}

	handle, err := s.ocr.RunOCR(ctx, req.Document)
	if err != nil {
		return nil, err
	}
	job, err := s.poller.Wait(ctx, handle)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, apperrors.External("scan document", err)
	}

	applied := ocr.Prefill(inv, job)
	s.log.Info().
		Str("job", string(handle)).
		Str("status", string(job.Status)).
		Strs("applied", applied).
		Msg("Document scanned")

	ec, err := s.LoadContext(ctx, p, req.EntityID, inv)
	if err != nil {
		return nil, err
	}
	ev := s.engine.evaluate(p, ec, inv, Input{})
	return &ScanDocumentResult{Job: job, Applied: applied, Evaluation: &ev}, nil
}
