package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// RESTClient is an InvoicingAPI client over HTTP and JSON.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewRESTClient creates a REST Invoicing API client.
func NewRESTClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

var _ InvoicingAPI = (*RESTClient)(nil)

func entityPath(entityID string, parts ...string) string {
	segs := []string{"/v1/entities", url.PathEscape(entityID)}
	for _, p := range parts {
		segs = append(segs, url.PathEscape(p))
	}
	return strings.Join(segs, "/")
}

// GetInvoice retrieves an invoice by ID
func (c *RESTClient) GetInvoice(ctx context.Context, entityID, invoiceID string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := c.do(ctx, http.MethodGet, entityPath(entityID, "invoices", invoiceID), nil, &inv, "get invoice"); err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice creates a new invoice
func (c *RESTClient) CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	var out domain.Invoice
	if err := c.do(ctx, http.MethodPost, entityPath(inv.EntityID, "invoices"), inv, &out, "create invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateInvoice replaces an invoice
func (c *RESTClient) UpdateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	var out domain.Invoice
	if err := c.do(ctx, http.MethodPut, entityPath(inv.EntityID, "invoices", inv.ID), inv, &out, "update invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteInvoice deletes an invoice
func (c *RESTClient) DeleteInvoice(ctx context.Context, entityID, invoiceID string) error {
	return c.do(ctx, http.MethodDelete, entityPath(entityID, "invoices", invoiceID), nil, nil, "delete invoice")
}

// ApproveInvoice records an approval
func (c *RESTClient) ApproveInvoice(ctx context.Context, entityID, invoiceID, userID string) (*domain.Invoice, error) {
	var out domain.Invoice
	req := ApproveInvoiceRequest{UserID: userID}
	if err := c.do(ctx, http.MethodPost, entityPath(entityID, "invoices", invoiceID, "approve"), req, &out, "approve invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectInvoice records a rejection
func (c *RESTClient) RejectInvoice(ctx context.Context, entityID, invoiceID, userID, reason string) (*domain.Invoice, error) {
	var out domain.Invoice
	req := RejectInvoiceRequest{UserID: userID, Reason: reason}
	if err := c.do(ctx, http.MethodPost, entityPath(entityID, "invoices", invoiceID, "reject"), req, &out, "reject invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPaymentMethods lists the entity's payment method instances
func (c *RESTClient) ListPaymentMethods(ctx context.Context, entityID string, filter domain.PaymentMethodFilter) ([]domain.PaymentMethodInstance, error) {
	q := url.Values{}
	if filter.Type != "" {
		q.Set("type", string(filter.Type))
	}
	if filter.SchemaID != "" {
		q.Set("schemaId", filter.SchemaID)
	}
	if filter.Role != "" {
		q.Set("role", string(filter.Role))
	}
	path := entityPath(entityID, "payment-methods")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListPaymentMethodsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, "list payment methods"); err != nil {
		return nil, err
	}
	return resp.PaymentMethods, nil
}

// CreatePaymentMethod creates a payment method instance
func (c *RESTClient) CreatePaymentMethod(ctx context.Context, entityID string, spec domain.PaymentMethodSpec) (*domain.PaymentMethodInstance, error) {
	var out domain.PaymentMethodInstance
	if err := c.do(ctx, http.MethodPost, entityPath(entityID, "payment-methods"), spec, &out, "create payment method"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrganizationConfig retrieves metadata schemas and payment policies
func (c *RESTClient) GetOrganizationConfig(ctx context.Context, entityID string) (*domain.OrganizationConfig, error) {
	var out domain.OrganizationConfig
	if err := c.do(ctx, http.MethodGet, entityPath(entityID, "organization-config"), nil, &out, "get organization config"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetApprovalPolicies lists the entity's approval policies
func (c *RESTClient) GetApprovalPolicies(ctx context.Context, entityID string) ([]domain.ApprovalPolicy, error) {
	var resp ApprovalPoliciesResponse
	if err := c.do(ctx, http.MethodGet, entityPath(entityID, "approval-policies"), nil, &resp, "get approval policies"); err != nil {
		return nil, err
	}
	return resp.Policies, nil
}

// ListEntityUsers lists the users of an entity with their roles
func (c *RESTClient) ListEntityUsers(ctx context.Context, entityID string) ([]domain.EntityUser, error) {
	var resp EntityUsersResponse
	if err := c.do(ctx, http.MethodGet, entityPath(entityID, "users"), nil, &resp, "list entity users"); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetVendor retrieves a vendor by ID
func (c *RESTClient) GetVendor(ctx context.Context, entityID, vendorID string) (*domain.Vendor, error) {
	var out domain.Vendor
	if err := c.do(ctx, http.MethodGet, entityPath(entityID, "vendors", vendorID), nil, &out, "get vendor"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal(fmt.Sprintf("failed to encode %s request", op), err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Internal(fmt.Sprintf("failed to build %s request", op), err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if key := IdempotencyKeyFrom(ctx); key != "" && method != http.MethodGet {
		req.Header.Set(IdempotencyHeader, key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.External(op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.External(op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Invoicing API returned an error")
		return errorFromStatus(op, resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return apperrors.External(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// errorFromStatus maps an Invoicing API error response to a coded error.
func errorFromStatus(op string, status int, payload []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(payload, &body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(body.Field, msg)
	case http.StatusNotFound:
		return apperrors.New(apperrors.ErrCodeNotFound, msg)
	case http.StatusConflict, http.StatusPreconditionFailed:
		if apperrors.Code(body.Code) == apperrors.ErrCodeAlreadyExists {
			return apperrors.AlreadyExists(msg)
		}
		return apperrors.StaleTransition(msg)
	default:
		return apperrors.External(op, fmt.Errorf("status %d: %s", status, msg))
	}
}
