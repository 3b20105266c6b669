package lifecycle

import (
	"slices"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// Action is an explicit user action. The zero value is a plain "next"
// submission.
type Action string

const (
	ActionNone          Action = ""
	ActionDelete        Action = "DELETE"
	ActionArchive       Action = "ARCHIVE"
	ActionCancel        Action = "CANCEL"
	ActionMarkPaid      Action = "MARK_PAID"
	ActionApprove       Action = "APPROVE"
	ActionReject        Action = "REJECT"
	ActionPrintCheck    Action = "PRINT_CHECK"
	ActionComment       Action = "COMMENT"
	ActionAdminOverride Action = "ADMIN_OVERRIDE"
	ActionRetry         Action = "RETRY"
)

// Mutation is the single Invoicing API call a decision maps to.
type Mutation string

const (
	MutationNone    Mutation = ""
	MutationCreate  Mutation = "create"
	MutationUpdate  Mutation = "update"
	MutationDelete  Mutation = "delete"
	MutationApprove Mutation = "approve"
	MutationReject  Mutation = "reject"
)

// actionRule describes where an explicit action may start and where it lands.
// An empty target keeps the current status.
type actionRule struct {
	from     []domain.InvoiceStatus
	target   domain.InvoiceStatus
	mutation Mutation
}

// anyStatus marks actions allowed from every status.
var anyStatus []domain.InvoiceStatus

var actionRules = map[Action]actionRule{
	ActionDelete: {
		from:     []domain.InvoiceStatus{domain.StatusDraft, domain.StatusNew},
		mutation: MutationDelete,
	},
	ActionArchive: {
		// Canceled and Refused are terminal; only Paid leaves by archiving.
		from:     []domain.InvoiceStatus{domain.StatusDraft, domain.StatusNew, domain.StatusPaid, domain.StatusFailed},
		target:   domain.StatusArchived,
		mutation: MutationUpdate,
	},
	ActionCancel: {
		from:     []domain.InvoiceStatus{domain.StatusNew, domain.StatusApproved, domain.StatusScheduled, domain.StatusFailed},
		target:   domain.StatusCanceled,
		mutation: MutationUpdate,
	},
	ActionMarkPaid: {
		from:     []domain.InvoiceStatus{domain.StatusNew, domain.StatusApproved, domain.StatusScheduled, domain.StatusFailed},
		target:   domain.StatusPaid,
		mutation: MutationUpdate,
	},
	ActionApprove: {
		from:     []domain.InvoiceStatus{domain.StatusNew},
		mutation: MutationApprove,
	},
	ActionReject: {
		from:     []domain.InvoiceStatus{domain.StatusNew},
		target:   domain.StatusRefused,
		mutation: MutationReject,
	},
	ActionPrintCheck: {
		from:     []domain.InvoiceStatus{domain.StatusApproved, domain.StatusScheduled},
		target:   domain.StatusPending,
		mutation: MutationUpdate,
	},
	ActionComment: {
		from:     anyStatus,
		mutation: MutationUpdate,
	},
	ActionAdminOverride: {
		from:     anyStatus,
		mutation: MutationUpdate,
	},
	ActionRetry: {
		from:     []domain.InvoiceStatus{domain.StatusFailed},
		target:   domain.StatusScheduled,
		mutation: MutationUpdate,
	},
}

// ParseAction validates an action name. The empty string is ActionNone.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	if a == ActionNone {
		return a, true
	}
	_, ok := actionRules[a]
	return a, ok
}

func (r actionRule) allows(status domain.InvoiceStatus) bool {
	return r.from == nil || slices.Contains(r.from, status)
}

// AllowedActions lists the explicit actions available from status, in a
// stable order. Admin override is omitted; it is never a user affordance.
func AllowedActions(status domain.InvoiceStatus) []Action {
	order := []Action{
		ActionApprove, ActionReject, ActionPrintCheck, ActionMarkPaid, ActionRetry,
		ActionCancel, ActionArchive, ActionDelete, ActionComment,
	}
	var out []Action
	for _, a := range order {
		if actionRules[a].allows(status) {
			out = append(out, a)
		}
	}
	return out
}
