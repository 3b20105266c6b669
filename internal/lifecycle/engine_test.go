package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

var today = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func day(offset int) *time.Time {
	t := today.AddDate(0, 0, offset)
	return &t
}

func completeFields() Fields {
	return Fields{
		Invoice: &domain.Invoice{
			ID:              "inv_1",
			EntityID:        "ent_1",
			Amount:          decimal.RequireFromString("150.00"),
			Currency:        "USD",
			InvoiceDate:     day(-3),
			DueDate:         day(20),
			VendorID:        "ven_1",
			PaymentSourceID: "pm_src",
		},
		Vendor: &domain.Vendor{
			ID:           "ven_1",
			Email:        "billing@acme.test",
			Kind:         domain.VendorBusiness,
			BusinessName: "Acme Supplies",
		},
		LineItemsEnabled: true,
		Today:            today,
	}
}

func TestDraftToNew(t *testing.T) {
	d := NextStatus(domain.StatusDraft, completeFields(), ActionNone)
	assert.Equal(t, domain.StatusNew, d.Status)
	assert.True(t, d.Advanced)
	assert.Equal(t, MutationUpdate, d.Mutation)
	assert.Empty(t, d.Reasons)

	f := completeFields()
	f.Invoice.ID = ""
	assert.Equal(t, MutationCreate, NextStatus(domain.StatusDraft, f, ActionNone).Mutation)
}

func TestDraftHoldsOnIncompleteFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Fields)
		field  string
	}{
		{"missing vendor", func(f *Fields) { f.Invoice.VendorID = "" }, "vendorId"},
		{"unsaved vendor", func(f *Fields) { f.Invoice.VendorID = domain.NewVendorID }, "vendorId"},
		{"missing amount", func(f *Fields) { f.Invoice.Amount = decimal.Zero }, "amount"},
		{"missing due date", func(f *Fields) { f.Invoice.DueDate = nil }, "dueDate"},
		{"missing currency", func(f *Fields) { f.Invoice.Currency = "" }, "currency"},
		{"missing source", func(f *Fields) { f.Invoice.PaymentSourceID = "" }, "paymentSourceId"},
		{"missing vendor email", func(f *Fields) { f.Vendor.Email = "" }, "vendor.email"},
		{"individual without names", func(f *Fields) {
			f.Vendor.Kind = domain.VendorIndividual
			f.Vendor.BusinessName = ""
		}, "vendor.firstName"},
		{"due before invoice date", func(f *Fields) { f.Invoice.DueDate = day(-10) }, "dueDate"},
		{"amount below minimum", func(f *Fields) {
			f.Invoice.Amount = decimal.RequireFromString("0.001")
		}, "amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := completeFields()
			tt.mutate(&f)
			d := NextStatus(domain.StatusDraft, f, ActionNone)
			assert.Equal(t, domain.StatusDraft, d.Status)
			assert.False(t, d.Advanced)
			assert.True(t, d.Held())
			assert.Equal(t, MutationNone, d.Mutation)
			assert.True(t, d.Reasons.Has(tt.field), d.Reasons.Fields())
		})
	}
}

func TestDraftOneMessagePerField(t *testing.T) {
	f := Fields{Invoice: &domain.Invoice{}, Today: today}
	d := NextStatus(domain.StatusDraft, f, ActionNone)

	seen := map[string]bool{}
	for _, r := range d.Reasons {
		require.False(t, seen[r.Field], "duplicate reason for %s", r.Field)
		seen[r.Field] = true
	}
	assert.True(t, seen["amount"])
	assert.True(t, seen["vendor.email"])
}

func TestVendorProfileSkippedWhenCreationDisabled(t *testing.T) {
	f := completeFields()
	f.Vendor = nil
	assert.True(t, NextStatus(domain.StatusDraft, f, ActionNone).Held())

	f.VendorCreationDisabled = true
	assert.Equal(t, domain.StatusNew, NextStatus(domain.StatusDraft, f, ActionNone).Status)
}

func TestSourceOptionalUsesCounterparty(t *testing.T) {
	f := completeFields()
	f.Invoice.PaymentSourceID = ""
	f.Invoice.VendorID = ""
	f.CounterpartyID = "payer_1"
	f.SourceOptional = true
	assert.Equal(t, domain.StatusNew, NextStatus(domain.StatusDraft, f, ActionNone).Status)
}

func TestLineItemTotalMustMatch(t *testing.T) {
	f := completeFields()
	f.Invoice.LineItems = []domain.LineItem{
		{Description: "Paper", Amount: decimal.RequireFromString("100.00")},
		{Description: "Toner", Amount: decimal.RequireFromString("49.99")},
	}

	for _, status := range []domain.InvoiceStatus{domain.StatusDraft, domain.StatusNew, domain.StatusApproved} {
		g := f
		if status == domain.StatusApproved {
			g.Invoice = f.Invoice.Clone()
			g.Invoice.PaymentDestinationID = "pm_dst"
			g.Invoice.DeductionDate = day(2)
		}
		d := NextStatus(status, g, ActionNone)
		assert.Equal(t, status, d.Status, status)
		assert.True(t, d.Reasons.Has("lineItems"), status)
		assert.True(t, apperrors.Is(d.Err(), apperrors.ErrCodeInvalidInput))
	}

	f.Invoice.LineItems[1].Amount = decimal.RequireFromString("50")
	assert.Equal(t, domain.StatusNew, NextStatus(domain.StatusDraft, f, ActionNone).Status)

	f.LineItemsEnabled = false
	f.Invoice.LineItems[1].Amount = decimal.RequireFromString("1")
	assert.Equal(t, domain.StatusNew, NextStatus(domain.StatusDraft, f, ActionNone).Status)
}

func TestLineItemDescriptionRequired(t *testing.T) {
	f := completeFields()
	f.Invoice.LineItems = []domain.LineItem{{Description: " ", Amount: decimal.RequireFromString("150")}}
	d := NextStatus(domain.StatusDraft, f, ActionNone)
	assert.True(t, d.Reasons.Has("lineItems[0].description"))
}

func TestLineItemAmountMatchesQuantityTimesPrice(t *testing.T) {
	f := completeFields()
	f.Invoice.LineItems = []domain.LineItem{
		{Description: "Widgets", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("40"), Amount: decimal.RequireFromString("120")},
		{Description: "Freight", Amount: decimal.RequireFromString("30")},
	}
	assert.Equal(t, domain.StatusNew, NextStatus(domain.StatusDraft, f, ActionNone).Status)

	f.Invoice.LineItems[0].Amount = decimal.RequireFromString("100")
	f.Invoice.LineItems[1].Amount = decimal.RequireFromString("50")
	d := NextStatus(domain.StatusDraft, f, ActionNone)
	assert.Equal(t, domain.StatusDraft, d.Status)
	assert.Equal(t, []string{"lineItems[0].amount"}, d.Reasons.Fields())
	assert.Equal(t, "amount must equal quantity times unit price (120.00)", d.Reasons[0].Message)
}

func TestNewToApprovedRequiresApprovers(t *testing.T) {
	f := completeFields()
	assert.Equal(t, domain.StatusApproved, NextStatus(domain.StatusNew, f, ActionNone).Status)

	f.Invoice.Approvers = []domain.ApprovalSlot{
		{ApprovalSlotID: "s1", ApprovalPolicyID: "P1", AssignedUserID: "u_1"},
		{ApprovalSlotID: "s2", ApprovalPolicyID: "R1"},
	}
	d := NextStatus(domain.StatusNew, f, ActionNone)
	assert.Equal(t, domain.StatusNew, d.Status)
	assert.Equal(t, []string{"approvers[1]"}, d.Reasons.Fields())

	f.Invoice.Approvers[1].AssignedUserID = "u_1"
	f.Policies = []domain.ApprovalPolicy{{ID: "P1"}, {ID: "R1"}}
	d = NextStatus(domain.StatusNew, f, ActionNone)
	assert.Equal(t, []string{"approvers[1]"}, d.Reasons.Fields(), "duplicate approver")
}

func TestApprovedToScheduled(t *testing.T) {
	f := completeFields()
	f.Invoice.PaymentDestinationID = "pm_dst"
	f.Invoice.DeductionDate = day(1)

	d := NextStatus(domain.StatusApproved, f, ActionNone)
	assert.Equal(t, domain.StatusScheduled, d.Status)
	assert.True(t, d.Advanced)

	f.Invoice.DeductionDate = nil
	d = NextStatus(domain.StatusApproved, f, ActionNone)
	assert.Equal(t, domain.StatusApproved, d.Status)
	assert.Equal(t, []string{"deductionDate"}, d.Reasons.Fields())

	f.Invoice.DeductionDate = day(0)
	d = NextStatus(domain.StatusApproved, f, ActionNone)
	assert.Equal(t, domain.StatusApproved, d.Status)
	assert.Equal(t, "deduction date must be in the future", d.Reasons[0].Message)

	f.Invoice.DeductionDate = day(1)
	f.Invoice.PaymentDestinationID = ""
	d = NextStatus(domain.StatusApproved, f, ActionNone)
	assert.Equal(t, []string{"paymentDestinationId"}, d.Reasons.Fields())
}

func TestNoForwardTransition(t *testing.T) {
	for _, st := range []domain.InvoiceStatus{
		domain.StatusScheduled, domain.StatusPending, domain.StatusPaid, domain.StatusFailed,
		domain.StatusCanceled, domain.StatusArchived, domain.StatusRefused,
	} {
		d := NextStatus(st, completeFields(), ActionNone)
		assert.True(t, d.Blocked, st)
		assert.Equal(t, st, d.Status)
		assert.Equal(t, MutationNone, d.Mutation)
		assert.True(t, apperrors.Is(d.Err(), apperrors.ErrCodeConflict))
	}
}

func TestExplicitActions(t *testing.T) {
	tests := []struct {
		from     domain.InvoiceStatus
		action   Action
		want     domain.InvoiceStatus
		mutation Mutation
	}{
		{domain.StatusDraft, ActionDelete, domain.StatusDraft, MutationDelete},
		{domain.StatusPaid, ActionArchive, domain.StatusArchived, MutationUpdate},
		{domain.StatusScheduled, ActionCancel, domain.StatusCanceled, MutationUpdate},
		{domain.StatusApproved, ActionMarkPaid, domain.StatusPaid, MutationUpdate},
		{domain.StatusNew, ActionApprove, domain.StatusNew, MutationApprove},
		{domain.StatusNew, ActionReject, domain.StatusRefused, MutationReject},
		{domain.StatusApproved, ActionPrintCheck, domain.StatusPending, MutationUpdate},
		{domain.StatusFailed, ActionRetry, domain.StatusScheduled, MutationUpdate},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			// Completeness is never consulted: the snapshot is empty.
			d := NextStatus(tt.from, Fields{Invoice: &domain.Invoice{}}, tt.action)
			assert.False(t, d.Blocked)
			assert.Equal(t, tt.want, d.Status)
			assert.Equal(t, tt.mutation, d.Mutation)
		})
	}
}

func TestExplicitActionsRejectedFromWrongStatus(t *testing.T) {
	d := NextStatus(domain.StatusPaid, Fields{Invoice: &domain.Invoice{}}, ActionApprove)
	assert.True(t, d.Blocked)
	assert.Equal(t, "cannot approve invoice with status 'Paid'", d.Reasons[0].Message)

	assert.True(t, NextStatus(domain.StatusScheduled, Fields{Invoice: &domain.Invoice{}}, ActionRetry).Blocked)
	for _, terminal := range []domain.InvoiceStatus{domain.StatusArchived, domain.StatusCanceled, domain.StatusRefused} {
		d := NextStatus(terminal, Fields{Invoice: &domain.Invoice{}}, ActionArchive)
		assert.True(t, d.Blocked, terminal)
		assert.False(t, d.Advanced, terminal)
		assert.Equal(t, terminal, d.Status, terminal)
		assert.Equal(t, MutationNone, d.Mutation, terminal)
	}
	assert.NotContains(t, AllowedActions(domain.StatusCanceled), ActionArchive)
	assert.NotContains(t, AllowedActions(domain.StatusRefused), ActionArchive)
	assert.True(t, NextStatus(domain.StatusNew, Fields{Invoice: &domain.Invoice{}}, Action("EXPLODE")).Blocked)
}

func TestCommentAndOverride(t *testing.T) {
	f := Fields{Invoice: &domain.Invoice{}}
	assert.True(t, NextStatus(domain.StatusPaid, f, ActionComment).Blocked)

	f.Invoice.Comment = "Called vendor"
	d := NextStatus(domain.StatusPaid, f, ActionComment)
	assert.Equal(t, domain.StatusPaid, d.Status)
	assert.Equal(t, MutationUpdate, d.Mutation)

	assert.True(t, NextStatus(domain.StatusPaid, f, ActionAdminOverride).Blocked)
	f.OverrideStatus = domain.StatusFailed
	d = NextStatus(domain.StatusPaid, f, ActionAdminOverride)
	assert.Equal(t, domain.StatusFailed, d.Status)
	assert.True(t, d.Advanced)
}

func TestAllowedActionsAndParse(t *testing.T) {
	assert.Equal(t, []Action{ActionApprove, ActionReject, ActionMarkPaid, ActionCancel, ActionArchive, ActionDelete, ActionComment},
		AllowedActions(domain.StatusNew))
	assert.Equal(t, []Action{ActionComment}, AllowedActions(domain.StatusArchived))

	a, ok := ParseAction("MARK_PAID")
	assert.True(t, ok)
	assert.Equal(t, ActionMarkPaid, a)
	_, ok = ParseAction("mark_paid")
	assert.False(t, ok)
}
