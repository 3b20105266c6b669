package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
	"github.com/pesio-ai/be-ap-payables/internal/lifecycle"
	"github.com/pesio-ai/be-ap-payables/internal/service"
)

const draftSnapshot = `{
  "kind": "payable",
  "context": {
    "entityId": "ent_1",
    "org": {"paymentMethodPolicies": {"disableVendorCreation": true, "lineItemsEnabled": false}},
    "paymentMethods": [{"id": "pm_1", "type": "bankAccount", "isDefaultSource": true, "isDefaultDestination": true}],
    "counterpartyPaymentMethods": [{"id": "vpm_1", "type": "check", "isDefaultDestination": true}],
    "today": "2026-03-10T00:00:00Z"
  },
  "invoice": {
    "entityId": "ent_1",
    "amount": "120.00",
    "currency": "USD",
    "dueDate": "2026-04-01T00:00:00Z",
    "vendorId": "ven_1"
  }
}`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEvaluateFromStdin(t *testing.T) {
	out, err := run(t, draftSnapshot, "evaluate")
	require.NoError(t, err)

	var ev service.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, domain.StatusNew, ev.Next.Status)
	assert.Equal(t, "pm_1", ev.Invoice.PaymentSourceID)
	assert.Equal(t, "vpm_1", ev.Invoice.PaymentDestinationID)
	require.NotNil(t, ev.TotalPaymentMinor)
	assert.Equal(t, int64(12000), *ev.TotalPaymentMinor)
}

func TestNextStatusOverrides(t *testing.T) {
	out, err := run(t, draftSnapshot, "next-status", "--action", "DELETE")
	require.NoError(t, err)
	var d lifecycle.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, lifecycle.MutationDelete, d.Mutation)

	_, err = run(t, draftSnapshot, "next-status", "--action", "APPROVE", "--strict")
	assert.Error(t, err, "approve is blocked on a draft")

	_, err = run(t, draftSnapshot, "next-status", "--kind", "orders")
	assert.Error(t, err)

	_, err = run(t, `{"kind":"payable"}`, "evaluate")
	assert.ErrorContains(t, err, "no invoice")
}

func TestRollupCommand(t *testing.T) {
	out, err := run(t, "", "rollup", "--amount", "100", "--destination-fee", "2.5", "--remaining", "80", "--currency", "JPY", "--currency-mode", "iso")
	require.NoError(t, err)

	var res struct {
		TotalPayment      string `json:"totalPayment"`
		TotalPaymentMinor int64  `json:"totalPaymentMinor"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "82.5", res.TotalPayment)
	assert.Equal(t, int64(83), res.TotalPaymentMinor)

	_, err = run(t, "", "rollup", "--amount", "abc")
	assert.Error(t, err)
}
