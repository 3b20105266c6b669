package metadata

import (
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// ParseValues resolves wire metadata against the organization's schemas.
// Keys without a schema are kept as String values. Values that do not parse
// are dropped from the result and reported per field under prefix.
func ParseValues(schemas []domain.MetadataSchema, values domain.MetadataValues, prefix string) (domain.MetadataValues, apperrors.FieldErrors) {
	var errs apperrors.FieldErrors
	if values == nil {
		return nil, nil
	}
	byKey := make(map[string]domain.MetadataSchema, len(schemas))
	for _, s := range schemas {
		byKey[s.Key] = s
	}

	out := make(domain.MetadataValues, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		v := values[key]
		if v.IsResolved() {
			out[key] = v
			continue
		}
		schema, ok := byKey[key]
		if !ok {
			parsed, _ := domain.ParseMetadataValue(domain.MetadataString, v.Multiple, v.Raw())
			out[key] = parsed
			continue
		}
		parsed, err := domain.ParseMetadataValue(schema.Type, schema.AllowMultiple || v.Multiple, v.Raw())
		if err != nil {
			errs.Add(fieldName(prefix, key), fmt.Sprintf("%s: %v", displayName(schema), err))
			continue
		}
		out[key] = parsed
	}
	return out, errs
}

// ParseInvoice resolves invoice and line item metadata in place on a copy.
func ParseInvoice(schemas []domain.MetadataSchema, inv *domain.Invoice) (*domain.Invoice, apperrors.FieldErrors) {
	out := inv.Clone()
	var errs apperrors.FieldErrors

	values, fe := ParseValues(schemas, out.Metadata, "metadata")
	out.Metadata = values
	errs = append(errs, fe...)

	for i := range out.LineItems {
		values, fe := ParseValues(schemas, out.LineItems[i].Metadata, fmt.Sprintf("lineItems[%d].metadata", i))
		out.LineItems[i].Metadata = values
		errs = append(errs, fe...)
	}
	return out, errs
}

// ValidateValues checks the values of the visible schemas: required fields,
// cardinality and validation rules.
func ValidateValues(visible []domain.MetadataSchema, values domain.MetadataValues, prefix string) apperrors.FieldErrors {
	var errs apperrors.FieldErrors
	for _, schema := range visible {
		field := fieldName(prefix, schema.Key)
		v, ok := values[schema.Key]
		if !ok || v.IsEmpty() {
			if schema.Required {
				errs.Add(field, fmt.Sprintf("%s is required", displayName(schema)))
			}
			continue
		}
		raw := v.Raw()
		if !schema.AllowMultiple && len(raw) > 1 {
			errs.Add(field, fmt.Sprintf("%s accepts a single value", displayName(schema)))
			continue
		}
		if msg, bad := checkRule(schema, raw); bad {
			errs.Add(field, msg)
		}
	}
	return errs
}

func checkRule(schema domain.MetadataSchema, raw []string) (string, bool) {
	rule := schema.ValidationRules
	if rule == nil || rule.Regex == "" {
		return "", false
	}
	re, err := regexp.Compile(rule.Regex)
	if err != nil {
		// A broken organization rule must not block submission.
		return "", false
	}
	for _, r := range raw {
		if !re.MatchString(r) {
			if rule.ErrorMessage != "" {
				return rule.ErrorMessage, true
			}
			return fmt.Sprintf("%s has an invalid format", displayName(schema)), true
		}
	}
	return "", false
}

func fieldName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func displayName(s domain.MetadataSchema) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Key
}
