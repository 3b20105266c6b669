package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// InvoicingServiceName is the fully qualified gRPC service name.
const InvoicingServiceName = "invoicing.v1.InvoicingService"

// GRPCClient is an InvoicingAPI client over gRPC. Messages travel as
// google.protobuf.Struct so the client needs no generated stubs.
type GRPCClient struct {
	conn *grpc.ClientConn
	log  zerolog.Logger
}

// NewGRPCClient creates a new Invoicing API gRPC client. Extra dial options
// are appended after the defaults.
func NewGRPCClient(addr, token string, log zerolog.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(forwardMetadata, idempotencyMetadata, bearerToken(token)),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &GRPCClient{conn: conn, log: log}, nil
}

var _ InvoicingAPI = (*GRPCClient)(nil)

// Close closes the gRPC connection
func (c *GRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// GetInvoice retrieves an invoice by ID
func (c *GRPCClient) GetInvoice(ctx context.Context, entityID, invoiceID string) (*domain.Invoice, error) {
	var out domain.Invoice
	req := map[string]any{"entityId": entityID, "invoiceId": invoiceID}
	if err := c.invoke(ctx, "GetInvoice", req, &out, "get invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateInvoice creates a new invoice
func (c *GRPCClient) CreateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	var out domain.Invoice
	req := map[string]any{"entityId": inv.EntityID, "invoice": inv}
	if err := c.invoke(ctx, "CreateInvoice", req, &out, "create invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateInvoice replaces an invoice
func (c *GRPCClient) UpdateInvoice(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	var out domain.Invoice
	req := map[string]any{"entityId": inv.EntityID, "invoiceId": inv.ID, "invoice": inv}
	if err := c.invoke(ctx, "UpdateInvoice", req, &out, "update invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteInvoice deletes an invoice
func (c *GRPCClient) DeleteInvoice(ctx context.Context, entityID, invoiceID string) error {
	req := map[string]any{"entityId": entityID, "invoiceId": invoiceID}
	return c.invoke(ctx, "DeleteInvoice", req, nil, "delete invoice")
}

// ApproveInvoice records an approval
func (c *GRPCClient) ApproveInvoice(ctx context.Context, entityID, invoiceID, userID string) (*domain.Invoice, error) {
	var out domain.Invoice
	req := map[string]any{"entityId": entityID, "invoiceId": invoiceID, "userId": userID}
	if err := c.invoke(ctx, "ApproveInvoice", req, &out, "approve invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectInvoice records a rejection
func (c *GRPCClient) RejectInvoice(ctx context.Context, entityID, invoiceID, userID, reason string) (*domain.Invoice, error) {
	var out domain.Invoice
	req := map[string]any{"entityId": entityID, "invoiceId": invoiceID, "userId": userID, "reason": reason}
	if err := c.invoke(ctx, "RejectInvoice", req, &out, "reject invoice"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPaymentMethods lists the entity's payment method instances
func (c *GRPCClient) ListPaymentMethods(ctx context.Context, entityID string, filter domain.PaymentMethodFilter) ([]domain.PaymentMethodInstance, error) {
	var resp ListPaymentMethodsResponse
	req := map[string]any{"entityId": entityID, "filter": filter}
	if err := c.invoke(ctx, "ListPaymentMethods", req, &resp, "list payment methods"); err != nil {
		return nil, err
	}
	return resp.PaymentMethods, nil
}

// CreatePaymentMethod creates a payment method instance
func (c *GRPCClient) CreatePaymentMethod(ctx context.Context, entityID string, spec domain.PaymentMethodSpec) (*domain.PaymentMethodInstance, error) {
	var out domain.PaymentMethodInstance
	req := map[string]any{"entityId": entityID, "paymentMethod": spec}
	if err := c.invoke(ctx, "CreatePaymentMethod", req, &out, "create payment method"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrganizationConfig retrieves metadata schemas and payment policies
func (c *GRPCClient) GetOrganizationConfig(ctx context.Context, entityID string) (*domain.OrganizationConfig, error) {
	var out domain.OrganizationConfig
	if err := c.invoke(ctx, "GetOrganizationConfig", map[string]any{"entityId": entityID}, &out, "get organization config"); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetApprovalPolicies lists the entity's approval policies
func (c *GRPCClient) GetApprovalPolicies(ctx context.Context, entityID string) ([]domain.ApprovalPolicy, error) {
	var resp ApprovalPoliciesResponse
	if err := c.invoke(ctx, "GetApprovalPolicies", map[string]any{"entityId": entityID}, &resp, "get approval policies"); err != nil {
		return nil, err
	}
	return resp.Policies, nil
}

// ListEntityUsers lists the users of an entity with their roles
func (c *GRPCClient) ListEntityUsers(ctx context.Context, entityID string) ([]domain.EntityUser, error) {
	var resp EntityUsersResponse
	if err := c.invoke(ctx, "ListEntityUsers", map[string]any{"entityId": entityID}, &resp, "list entity users"); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// GetVendor retrieves a vendor by ID
func (c *GRPCClient) GetVendor(ctx context.Context, entityID, vendorID string) (*domain.Vendor, error) {
	var out domain.Vendor
	req := map[string]any{"entityId": entityID, "vendorId": vendorID}
	if err := c.invoke(ctx, "GetVendor", req, &out, "get vendor"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req map[string]any, out any, op string) error {
	in, err := toStruct(req)
	if err != nil {
		return apperrors.Internal(fmt.Sprintf("failed to encode %s request", op), err)
	}

	reply := &structpb.Struct{}
	fullMethod := "/" + InvoicingServiceName + "/" + method
	if err := c.conn.Invoke(ctx, fullMethod, in, reply); err != nil {
		c.log.Debug().Err(err).Str("method", fullMethod).Msg("Invoicing API call failed")
		return errorFromGRPC(op, err)
	}

	if out == nil {
		return nil
	}
	if err := fromStruct(reply, out); err != nil {
		return apperrors.External(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// toStruct converts a JSON-shaped value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// fromStruct decodes a protobuf Struct into a JSON-tagged Go value.
func fromStruct(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// errorFromGRPC maps a gRPC status to a coded error.
func errorFromGRPC(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return apperrors.External(op, err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return apperrors.InvalidInput("", st.Message())
	case codes.NotFound:
		return apperrors.New(apperrors.ErrCodeNotFound, st.Message())
	case codes.AlreadyExists:
		return apperrors.AlreadyExists(st.Message())
	case codes.FailedPrecondition, codes.Aborted:
		return apperrors.StaleTransition(st.Message())
	default:
		return apperrors.External(op, err)
	}
}
