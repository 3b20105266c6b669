package client

import (
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// ListPaymentMethodsResponse is the payment method list envelope.
type ListPaymentMethodsResponse struct {
	PaymentMethods []domain.PaymentMethodInstance `json:"paymentMethods"`
}

// ApprovalPoliciesResponse is the approval policy list envelope.
type ApprovalPoliciesResponse struct {
	Policies []domain.ApprovalPolicy `json:"policies"`
}

// EntityUsersResponse is the entity user list envelope.
type EntityUsersResponse struct {
	Users []domain.EntityUser `json:"users"`
}

// ApproveInvoiceRequest records an approval by a user.
type ApproveInvoiceRequest struct {
	UserID string `json:"userId"`
}

// RejectInvoiceRequest records a rejection by a user.
type RejectInvoiceRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse is the error body returned by the Invoicing API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
