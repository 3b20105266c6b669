// Package metadata decides which organization-defined custom fields apply to
// an invoice snapshot and parses their values.
package metadata

import (
	"slices"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// VisibilityContext is everything ShouldShow may consult.
type VisibilityContext struct {
	HasDocument    bool
	HasNoLineItems bool
	// Options holds entity-provided candidate values keyed by schema key.
	Options map[string][]string
	// LineItem is true when evaluating fields for a line item row.
	LineItem bool

	PaymentSourceType          domain.PaymentMethodType
	PaymentSourceSchemaID      string
	PaymentDestinationType     domain.PaymentMethodType
	PaymentDestinationSchemaID string
}

// ShouldShow reports whether schema is visible in ctx. Every applicable
// condition must hold.
func ShouldShow(schema domain.MetadataSchema, ctx VisibilityContext) bool {
	hasOptions := len(ctx.Options[schema.Key]) > 0

	if schema.LineItem != ctx.LineItem {
		return false
	}
	if schema.Type == domain.MetadataKeyValue && !hasOptions {
		return false
	}

	cond := schema.ShowConditions
	if cond == nil {
		return true
	}
	if cond.HasDocument && !ctx.HasDocument {
		return false
	}
	if cond.HasNoLineItems && !ctx.HasNoLineItems {
		return false
	}
	if cond.HasOptions && !hasOptions {
		return false
	}
	if !railAllowed(cond.PaymentDestinationTypes, cond.PaymentDestinationCustomSchemaIDs, ctx.PaymentDestinationType, ctx.PaymentDestinationSchemaID) {
		return false
	}
	if !railAllowed(cond.PaymentSourceTypes, cond.PaymentSourceCustomSchemaIDs, ctx.PaymentSourceType, ctx.PaymentSourceSchemaID) {
		return false
	}
	return true
}

// railAllowed applies a payment type condition. An empty list allows any rail.
// A custom rail must additionally match one of the listed schema ids.
func railAllowed(types []domain.PaymentMethodType, customSchemaIDs []string, current domain.PaymentMethodType, schemaID string) bool {
	if len(types) == 0 {
		return true
	}
	if !slices.Contains(types, current) {
		return false
	}
	if current == domain.PaymentMethodCustom {
		return slices.Contains(customSchemaIDs, schemaID)
	}
	return true
}

// VisibleSchemas filters schemas, keeping their order.
func VisibleSchemas(schemas []domain.MetadataSchema, ctx VisibilityContext) []domain.MetadataSchema {
	out := make([]domain.MetadataSchema, 0, len(schemas))
	for _, s := range schemas {
		if ShouldShow(s, ctx) {
			out = append(out, s)
		}
	}
	return out
}
