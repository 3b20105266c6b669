package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/approval"
	"github.com/pesio-ai/be-ap-payables/internal/client"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/lifecycle"
)

// AssignApproverRequest assigns UserID to SlotID. An empty UserID clears the
// slot. Invoice carries an unsaved draft; otherwise InvoiceID is loaded and
// the result is persisted.
type AssignApproverRequest struct {
	EntityID  string          `json:"entityId"`
	InvoiceID string          `json:"invoiceId,omitempty"`
	Invoice   *domain.Invoice `json:"invoice,omitempty"`
	SlotID    string          `json:"slotId"`
	UserID    string          `json:"userId"`
}

// AssignApproverResult holds the updated approval chain.
type AssignApproverResult struct {
	Invoice     *domain.Invoice       `json:"invoice"`
	Assignments []approval.Assignment `json:"assignments"`
	Approvers   []ApproverView        `json:"approvers"`
	Persisted   bool                  `json:"persisted"`
	Stale       bool                  `json:"stale,omitempty"`
}

// approversEditable lists the statuses in which the chain may still change.
var approversEditable = map[domain.InvoiceStatus]bool{
	domain.StatusDraft: true,
	domain.StatusNew:   true,
}

func (s *Service) assignApprover(ctx context.Context, p profile, req *AssignApproverRequest) (*AssignApproverResult, error) {
	if req.SlotID == "" {
		return nil, apperrors.InvalidInput("slotId", "slot id is required")
	}
	persisted := req.Invoice == nil
	inv, err := s.resolveInvoice(ctx, req.EntityID, req.InvoiceID, req.Invoice)
	if err != nil {
		return nil, err
	}
	if inv.Status == "" {
		inv.Status = domain.StatusDraft
	}
	if !approversEditable[inv.Status] {
		return nil, apperrors.Conflict(fmt.Sprintf("approvers cannot change on a %s invoice", inv.Status))
	}

	policies, err := s.api.GetApprovalPolicies(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}
	users, err := s.api.ListEntityUsers(ctx, req.EntityID)
	if err != nil {
		return nil, err
	}

	var user domain.EntityUser
	if req.UserID != "" {
		found := false
		for _, u := range users {
			if u.ID == req.UserID {
				user, found = u, true
				break
			}
		}
		if !found {
			return nil, apperrors.NotFound("user", req.UserID)
		}
	}

	slots, assignments, err := approval.Assign(user, req.SlotID, inv.Approvers, policies)
	if err != nil {
		return nil, err
	}
	inv.Approvers = slots

	result := &AssignApproverResult{Invoice: inv, Assignments: assignments}
	if persisted {
		key := client.IdempotencyKey(inv.ID, string(lifecycle.MutationUpdate), string(inv.Status))
		saved, err := s.api.UpdateInvoice(client.WithIdempotencyKey(ctx, key), inv)
		switch {
		case apperrors.Is(err, apperrors.ErrCodeStaleTransition):
			fresh, ferr := s.api.GetInvoice(ctx, req.EntityID, inv.ID)
			if ferr != nil {
				return nil, err
			}
			s.log.Warn().Str("invoice_id", inv.ID).Msg("Approver assignment raced another update, invoice re-fetched")
			result.Invoice, result.Assignments, result.Stale = fresh, nil, true
		case err != nil:
			return nil, err
		default:
			result.Invoice = saved
			result.Persisted = true
		}
	}

	s.log.Info().
		Str("invoice_id", inv.ID).
		Str("slot_id", req.SlotID).
		Str("user_id", req.UserID).
		Int("propagated", max(len(assignments)-1, 0)).
		Str("kind", string(p.kind)).
		Msg("Approver assigned")

	for _, st := range approval.AssignableSlots(result.Invoice.Approvers, policies) {
		result.Approvers = append(result.Approvers, ApproverView{
			Slot:       st.Slot,
			Assignable: st.Assignable,
			Options:    approval.Options(st.Slot, result.Invoice.Approvers, policies, users),
		})
	}
	return result, nil
}
