package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/logger"
)

func newTestREST(t *testing.T, h http.HandlerFunc) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL, "svc-token", 5*time.Second, logger.Nop())
}

func TestRESTGetInvoice(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/entities/ent_1/invoices/inv_1", r.URL.Path)
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get(IdempotencyHeader))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"inv_1","entityId":"ent_1","status":"New","amount":"125.50","currency":"USD",
			"metadata":{"po":"PO-9","tags":["a","b"]}}`))
	})

	inv, err := c.GetInvoice(context.Background(), "ent_1", "inv_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, inv.Status)
	assert.True(t, inv.Amount.Equal(decimal.RequireFromString("125.5")))
	assert.Equal(t, []string{"a", "b"}, inv.Metadata["tags"].Raw())
}

func TestRESTMutationsSendIdempotencyKey(t *testing.T) {
	var got http.Header
	var body map[string]any
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/v1/entities/ent_1/invoices/inv_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"inv_1","entityId":"ent_1","status":"Approved","amount":"10","currency":"USD"}`))
	})

	ctx := WithIdempotencyKey(context.Background(), IdempotencyKey("inv_1", "update", "Approved"))
	out, err := c.UpdateInvoice(ctx, &domain.Invoice{ID: "inv_1", EntityID: "ent_1", Status: domain.StatusApproved, Amount: decimal.NewFromInt(10), Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, out.Status)
	assert.Equal(t, "inv_1:update:Approved", got.Get(IdempotencyHeader))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "10", body["amount"])
}

func TestRESTListPaymentMethodsFilter(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/entities/ent_1/payment-methods", r.URL.Path)
		assert.Equal(t, "offPlatform", r.URL.Query().Get("type"))
		assert.Equal(t, "source", r.URL.Query().Get("role"))
		_, _ = w.Write([]byte(`{"paymentMethods":[{"id":"pm_1","type":"offPlatform","isDefaultSource":true}]}`))
	})

	list, err := c.ListPaymentMethods(context.Background(), "ent_1", domain.PaymentMethodFilter{Type: domain.PaymentMethodOffPlatform, Role: domain.RoleSource})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDefaultFor(domain.RoleSource))
}

func TestRESTDeleteWithEmptyBody(t *testing.T) {
	c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteInvoice(context.Background(), "ent_1", "inv_1"))
}

func TestRESTErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperrors.Code
		field  string
	}{
		{"bad request", http.StatusBadRequest, `{"message":"bad","field":"dueDate"}`, apperrors.ErrCodeInvalidInput, "dueDate"},
		{"unprocessable", http.StatusUnprocessableEntity, `{}`, apperrors.ErrCodeInvalidInput, ""},
		{"not found", http.StatusNotFound, `{"message":"no invoice"}`, apperrors.ErrCodeNotFound, ""},
		{"stale", http.StatusConflict, `{"message":"status changed"}`, apperrors.ErrCodeStaleTransition, ""},
		{"already exists", http.StatusConflict, `{"code":"ALREADY_EXISTS"}`, apperrors.ErrCodeAlreadyExists, ""},
		{"server error", http.StatusBadGateway, `oops`, apperrors.ErrCodeExternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetVendor(context.Background(), "ent_1", "v_1")
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.CodeOf(err))
			if tt.field != "" {
				var appErr *apperrors.Error
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.field, appErr.Field)
			}
		})
	}
}

func TestRESTTransportFailureIsExternal(t *testing.T) {
	c := NewRESTClient("http://127.0.0.1:1", "", time.Second, logger.Nop())
	_, err := c.GetOrganizationConfig(context.Background(), "ent_1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeExternal))
}
