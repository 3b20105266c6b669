package lifecycle

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/approval"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// MinimumAmount is the smallest amount an invoice may be submitted with.
var MinimumAmount = decimal.New(1, -2)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// newRequirements are the fields a Draft needs before it becomes New.
type newRequirements struct {
	VendorID        string     `json:"vendorId" validate:"required,ne=new"`
	DueDate         *time.Time `json:"dueDate" validate:"required"`
	Currency        string     `json:"currency" validate:"required,len=3"`
	PaymentSourceID string     `json:"paymentSourceId" validate:"required"`
}

// vendorProfile is the KYC-lite data required when vendors may be created
// inline.
type vendorProfile struct {
	Email        string `json:"vendor.email" validate:"required,email"`
	Kind         string `json:"vendor.kind" validate:"required,oneof=business individual"`
	BusinessName string `json:"vendor.businessName" validate:"required_if=Kind business"`
	FirstName    string `json:"vendor.firstName" validate:"required_if=Kind individual"`
	LastName     string `json:"vendor.lastName" validate:"required_if=Kind individual"`
}

// scheduleRequirements are the extra fields Approved needs before Scheduled.
type scheduleRequirements struct {
	PaymentDestinationID string     `json:"paymentDestinationId" validate:"required"`
	DeductionDate        *time.Time `json:"deductionDate" validate:"required"`
}

var fieldLabels = map[string]string{
	"vendorId":             "vendor",
	"dueDate":              "due date",
	"currency":             "currency",
	"paymentSourceId":      "payment source",
	"paymentDestinationId": "payment destination",
	"deductionDate":        "deduction date",
	"vendor.email":         "vendor email",
	"vendor.kind":          "vendor type",
	"vendor.businessName":  "business name",
	"vendor.firstName":     "first name",
	"vendor.lastName":      "last name",
}

func label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

// structErrors runs the validator and converts failures to one message per
// field.
func structErrors(s any) apperrors.FieldErrors {
	var errs apperrors.FieldErrors
	err := validate.Struct(s)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add("invoice", err.Error())
		return errs
	}
	for _, fe := range verrs {
		field := fe.Field()
		if errs.Has(field) {
			continue
		}
		errs.Add(field, message(field, fe))
	}
	return errs
}

func message(field string, fe validator.FieldError) string {
	l := label(field)
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", l)
	case "ne":
		if field == "vendorId" {
			return "vendor must be saved before submitting"
		}
		return fmt.Sprintf("%s is invalid", l)
	case "len":
		return fmt.Sprintf("%s must be %s characters", l, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", l)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", l, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", l)
}

// NewCompleteness reports the fields a Draft is missing before it can become
// New, one message per field.
func NewCompleteness(f Fields) apperrors.FieldErrors {
	inv := f.Invoice
	var errs apperrors.FieldErrors
	if inv.Amount.IsZero() {
		errs.Add("amount", "amount is required")
	}

	req := newRequirements{
		VendorID:        f.counterpartyID(),
		DueDate:         inv.DueDate,
		Currency:        inv.Currency,
		PaymentSourceID: inv.PaymentSourceID,
	}
	if f.SourceOptional {
		req.PaymentSourceID = "-"
	}
	errs = append(errs, structErrors(req)...)

	if !f.VendorCreationDisabled {
		profile := vendorProfile{}
		if f.Vendor != nil {
			profile = vendorProfile{
				Email:        f.Vendor.Email,
				Kind:         string(f.Vendor.Kind),
				BusinessName: f.Vendor.BusinessName,
				FirstName:    f.Vendor.FirstName,
				LastName:     f.Vendor.LastName,
			}
		}
		errs = append(errs, structErrors(profile)...)
	}
	return errs
}

// ScheduleCompleteness reports the fields an Approved invoice is missing
// before it can be Scheduled.
func ScheduleCompleteness(f Fields) apperrors.FieldErrors {
	return structErrors(scheduleRequirements{
		PaymentDestinationID: f.Invoice.PaymentDestinationID,
		DeductionDate:        f.Invoice.DeductionDate,
	})
}

// SubmissionErrors runs the consistency checks every forward transition
// needs. existing carries errors already reported so a field is never
// reported twice.
func SubmissionErrors(f Fields, target domain.InvoiceStatus, existing apperrors.FieldErrors) apperrors.FieldErrors {
	inv := f.Invoice
	var errs apperrors.FieldErrors
	add := func(field, msg string) {
		if existing.Has(field) || errs.Has(field) {
			return
		}
		errs.Add(field, msg)
	}

	if len(inv.Approvers) > 0 {
		for _, e := range approval.UnassignedSlots(inv.Approvers) {
			add(e.Field, e.Message)
		}
		for _, e := range approval.DuplicateAssignments(inv.Approvers, f.Policies) {
			add(e.Field, e.Message)
		}
	}

	if f.LineItemsEnabled && len(inv.LineItems) > 0 {
		for i, li := range inv.LineItems {
			if strings.TrimSpace(li.Description) == "" {
				add(fmt.Sprintf("lineItems[%d].description", i), "description is required")
			}
			if calc, ok := li.CalculatedAmount(); ok && !calc.Equal(li.Amount) {
				add(fmt.Sprintf("lineItems[%d].amount", i), fmt.Sprintf("amount must equal quantity times unit price (%s)", calc.StringFixed(2)))
			}
		}
		if total := inv.LineItemTotal(); !total.Equal(inv.Amount) {
			add("lineItems", fmt.Sprintf("line item total %s does not match invoice amount %s",
				total.StringFixed(2), inv.Amount.StringFixed(2)))
		}
	}

	if inv.Amount.LessThan(MinimumAmount) {
		add("amount", fmt.Sprintf("amount must be at least %s", MinimumAmount.StringFixed(2)))
	}

	if inv.InvoiceDate != nil && inv.DueDate != nil && dateOnly(*inv.DueDate).Before(dateOnly(*inv.InvoiceDate)) {
		add("dueDate", "due date cannot be before invoice date")
	}

	if target == domain.StatusScheduled {
		switch {
		case inv.DeductionDate == nil:
			add("deductionDate", "deduction date is required")
		case dateOnly(*inv.DeductionDate).Before(dateOnly(f.today()).AddDate(0, 0, 1)):
			add("deductionDate", "deduction date must be in the future")
		}
	}
	return errs
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
