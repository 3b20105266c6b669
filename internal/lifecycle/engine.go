// Package lifecycle computes invoice status transitions from the current
// status, the completeness of the snapshot and explicit user actions.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// Fields is the snapshot a transition is decided over.
type Fields struct {
	Invoice *domain.Invoice
	Vendor  *domain.Vendor
	// CounterpartyID overrides Invoice.VendorID for the vendor check.
	CounterpartyID         string
	VendorCreationDisabled bool
	LineItemsEnabled       bool
	// SourceOptional drops the payment source requirement at Draft -> New.
	SourceOptional bool
	Policies       []domain.ApprovalPolicy
	// OverrideStatus is the target of ActionAdminOverride.
	OverrideStatus domain.InvoiceStatus
	Today          time.Time
}

func (f Fields) counterpartyID() string {
	if f.CounterpartyID != "" {
		return f.CounterpartyID
	}
	return f.Invoice.VendorID
}

func (f Fields) today() time.Time {
	if f.Today.IsZero() {
		return time.Now().UTC()
	}
	return f.Today
}

// Decision is the outcome of NextStatus. A decision either advances with a
// mutation, holds with per-field reasons, or is blocked with a reason.
type Decision struct {
	From     domain.InvoiceStatus  `json:"from"`
	Status   domain.InvoiceStatus  `json:"status"`
	Action   Action                `json:"action,omitempty"`
	Mutation Mutation              `json:"mutation,omitempty"`
	Advanced bool                  `json:"advanced"`
	Blocked  bool                  `json:"blocked"`
	Reasons  apperrors.FieldErrors `json:"reasons,omitempty"`
}

// Held reports a forward submission stopped by missing or inconsistent data.
func (d Decision) Held() bool { return !d.Blocked && len(d.Reasons) > 0 }

// Err converts a held or blocked decision into a coded error.
func (d Decision) Err() error {
	switch {
	case d.Blocked:
		msg := "transition not allowed"
		if len(d.Reasons) > 0 {
			msg = d.Reasons[0].Message
		}
		return apperrors.Conflict(msg)
	case len(d.Reasons) > 0:
		return d.Reasons.Err()
	}
	return nil
}

func hold(current domain.InvoiceStatus, reasons apperrors.FieldErrors) Decision {
	return Decision{From: current, Status: current, Reasons: reasons}
}

func blocked(current domain.InvoiceStatus, action Action, field, msg string) Decision {
	d := Decision{From: current, Status: current, Action: action, Blocked: true}
	d.Reasons.Add(field, msg)
	return d
}

// NextStatus decides the transition for current. Explicit actions are
// applied on their own rules and never consult completeness. Without an
// action the natural forward flow is used.
func NextStatus(current domain.InvoiceStatus, f Fields, action Action) Decision {
	if f.Invoice == nil {
		return blocked(current, action, "invoice", "invoice snapshot is required")
	}
	if action != ActionNone {
		return explicit(current, f, action)
	}
	return forward(current, f)
}

func explicit(current domain.InvoiceStatus, f Fields, action Action) Decision {
	rule, ok := actionRules[action]
	if !ok {
		return blocked(current, action, "action", fmt.Sprintf("unknown action '%s'", action))
	}
	if !rule.allows(current) {
		return blocked(current, action, "status",
			fmt.Sprintf("cannot %s invoice with status '%s'", actionVerb(action), current))
	}

	target := rule.target
	switch action {
	case ActionComment:
		if strings.TrimSpace(f.Invoice.Comment) == "" {
			return blocked(current, action, "comment", "comment is required")
		}
	case ActionAdminOverride:
		if f.OverrideStatus == "" {
			return blocked(current, action, "status", "override status is required")
		}
		if f.OverrideStatus == current {
			return blocked(current, action, "status", fmt.Sprintf("invoice is already '%s'", current))
		}
		target = f.OverrideStatus
	}
	if target == "" {
		target = current
	}

	return Decision{
		From:     current,
		Status:   target,
		Action:   action,
		Mutation: rule.mutation,
		Advanced: target != current,
	}
}

func forward(current domain.InvoiceStatus, f Fields) Decision {
	var target domain.InvoiceStatus
	var reasons apperrors.FieldErrors

	switch current {
	case domain.StatusDraft:
		target = domain.StatusNew
		reasons = NewCompleteness(f)
	case domain.StatusNew:
		target = domain.StatusApproved
	case domain.StatusApproved:
		target = domain.StatusScheduled
		reasons = append(NewCompleteness(f), ScheduleCompleteness(f)...)
	case domain.StatusFailed:
		return blocked(current, ActionNone, "status", "a failed invoice can only be rescheduled with retry")
	default:
		return blocked(current, ActionNone, "status",
			fmt.Sprintf("invoice with status '%s' has no next status", current))
	}

	reasons = append(reasons, SubmissionErrors(f, target, reasons)...)
	if len(reasons) > 0 {
		return hold(current, reasons)
	}

	mutation := MutationUpdate
	if current == domain.StatusDraft && f.Invoice.ID == "" {
		mutation = MutationCreate
	}
	return Decision{From: current, Status: target, Mutation: mutation, Advanced: true}
}

func actionVerb(a Action) string {
	return strings.ToLower(strings.ReplaceAll(string(a), "_", " "))
}
