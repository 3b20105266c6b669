// Package client holds the Invoicing API collaborators: the interface the
// engine depends on and its REST and gRPC implementations.
package client

import (
	"context"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// InvoicingAPI is the system of record for invoices, payment methods,
// organization configuration and approval policies.
type InvoicingAPI interface {
	GetInvoice(ctx context.Context, entityID, invoiceID string) (*domain.Invoice, error)
	CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, entityID, invoiceID string) error
	ApproveInvoice(ctx context.Context, entityID, invoiceID, userID string) (*domain.Invoice, error)
	RejectInvoice(ctx context.Context, entityID, invoiceID, userID, reason string) (*domain.Invoice, error)

	ListPaymentMethods(ctx context.Context, entityID string, filter domain.PaymentMethodFilter) ([]domain.PaymentMethodInstance, error)
	CreatePaymentMethod(ctx context.Context, entityID string, spec domain.PaymentMethodSpec) (*domain.PaymentMethodInstance, error)

	GetOrganizationConfig(ctx context.Context, entityID string) (*domain.OrganizationConfig, error)
	GetApprovalPolicies(ctx context.Context, entityID string) ([]domain.ApprovalPolicy, error)
	ListEntityUsers(ctx context.Context, entityID string) ([]domain.EntityUser, error)
	GetVendor(ctx context.Context, entityID, vendorID string) (*domain.Vendor, error)
}
