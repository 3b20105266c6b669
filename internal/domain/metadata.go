package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MetadataType is the declared type of a custom field.
type MetadataType string

const (
	MetadataString   MetadataType = "String"
	MetadataNumber   MetadataType = "Number"
	MetadataBoolean  MetadataType = "Boolean"
	MetadataDate     MetadataType = "Date"
	MetadataKeyValue MetadataType = "KeyValue"
)

// MetadataDateLayout is the wire layout of Date values.
const MetadataDateLayout = "2006-01-02"

// ShowConditions gates the visibility of a metadata field.
type ShowConditions struct {
	HasDocument                       bool                `json:"hasDocument,omitempty"`
	HasNoLineItems                    bool                `json:"hasNoLineItems,omitempty"`
	HasOptions                        bool                `json:"hasOptions,omitempty"`
	PaymentSourceTypes                []PaymentMethodType `json:"paymentSourceTypes,omitempty"`
	PaymentDestinationTypes           []PaymentMethodType `json:"paymentDestinationTypes,omitempty"`
	PaymentSourceCustomSchemaIDs      []string            `json:"paymentSourceCustomSchemaIds,omitempty"`
	PaymentDestinationCustomSchemaIDs []string            `json:"paymentDestinationCustomSchemaIds,omitempty"`
}

// ValidationRules constrains the textual form of a value.
type ValidationRules struct {
	Regex        string `json:"regex,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// MetadataSchema is an organization-defined custom field.
type MetadataSchema struct {
	Key             string           `json:"key"`
	DisplayName     string           `json:"displayName"`
	Type            MetadataType     `json:"type"`
	AllowMultiple   bool             `json:"allowMultiple"`
	LineItem        bool             `json:"lineItem"`
	Required        bool             `json:"required,omitempty"`
	ShowConditions  *ShowConditions  `json:"showConditions,omitempty"`
	ValidationRules *ValidationRules `json:"validationRules,omitempty"`
}

// KeyValuePair is one entry of a KeyValue field.
type KeyValuePair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MetadataScalar holds one item of a metadata value. Which field is
// meaningful is determined by the owning MetadataValue's Type.
type MetadataScalar struct {
	Text   string
	Number decimal.Decimal
	Bool   bool
	Date   time.Time
	Pair   KeyValuePair
}

// MetadataValue is a tagged metadata value. A value decoded from the wire
// without a schema has an empty Type and keeps its raw text until
// ParseMetadataValue resolves it.
type MetadataValue struct {
	Type     MetadataType
	Multiple bool
	Items    []MetadataScalar

	raw []string
}

// StringValue builds a single String value.
func StringValue(s string) MetadataValue {
	return MetadataValue{Type: MetadataString, Items: []MetadataScalar{{Text: s}}}
}

// StringsValue builds a multi-valued String value.
func StringsValue(ss ...string) MetadataValue {
	items := make([]MetadataScalar, len(ss))
	for i, s := range ss {
		items[i] = MetadataScalar{Text: s}
	}
	return MetadataValue{Type: MetadataString, Multiple: true, Items: items}
}

// NumberValue builds a Number value.
func NumberValue(d decimal.Decimal) MetadataValue {
	return MetadataValue{Type: MetadataNumber, Items: []MetadataScalar{{Number: d}}}
}

// BoolValue builds a Boolean value.
func BoolValue(b bool) MetadataValue {
	return MetadataValue{Type: MetadataBoolean, Items: []MetadataScalar{{Bool: b}}}
}

// DateValue builds a Date value.
func DateValue(t time.Time) MetadataValue {
	return MetadataValue{Type: MetadataDate, Items: []MetadataScalar{{Date: t}}}
}

// KeyValueValue builds a KeyValue value; more than one pair makes it multiple.
func KeyValueValue(pairs ...KeyValuePair) MetadataValue {
	items := make([]MetadataScalar, len(pairs))
	for i, p := range pairs {
		items[i] = MetadataScalar{Pair: p}
	}
	return MetadataValue{Type: MetadataKeyValue, Multiple: len(pairs) > 1, Items: items}
}

// RawValue builds an unresolved wire value.
func RawValue(multiple bool, raw ...string) MetadataValue {
	return MetadataValue{Multiple: multiple, raw: append([]string(nil), raw...)}
}

// IsResolved reports whether the value has been parsed against a schema.
func (v MetadataValue) IsResolved() bool { return v.Type != "" }

// IsEmpty reports whether the value carries no items.
func (v MetadataValue) IsEmpty() bool {
	if !v.IsResolved() {
		for _, r := range v.raw {
			if r != "" {
				return false
			}
		}
		return true
	}
	return len(v.Items) == 0
}

// Raw returns the wire text of the value, one entry per item.
func (v MetadataValue) Raw() []string {
	if !v.IsResolved() {
		return append([]string(nil), v.raw...)
	}
	out := make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		out = append(out, encodeScalar(v.Type, it))
	}
	return out
}

// Text returns the first item's wire text.
func (v MetadataValue) Text() string {
	raw := v.Raw()
	if len(raw) == 0 {
		return ""
	}
	return raw[0]
}

func encodeScalar(t MetadataType, it MetadataScalar) string {
	switch t {
	case MetadataNumber:
		return it.Number.String()
	case MetadataBoolean:
		return strconv.FormatBool(it.Bool)
	case MetadataDate:
		return it.Date.Format(MetadataDateLayout)
	case MetadataKeyValue:
		b, _ := json.Marshal(it.Pair)
		return string(b)
	default:
		return it.Text
	}
}

// ParseMetadataValue resolves wire text against a declared type.
func ParseMetadataValue(t MetadataType, multiple bool, raw []string) (MetadataValue, error) {
	out := MetadataValue{Type: t, Multiple: multiple}
	for _, r := range raw {
		if r == "" {
			continue
		}
		it, err := parseScalar(t, r)
		if err != nil {
			return MetadataValue{}, err
		}
		out.Items = append(out.Items, it)
	}
	return out, nil
}

func parseScalar(t MetadataType, r string) (MetadataScalar, error) {
	switch t {
	case MetadataString, "":
		return MetadataScalar{Text: r}, nil
	case MetadataNumber:
		d, err := decimal.NewFromString(strings.TrimSpace(r))
		if err != nil {
			return MetadataScalar{}, fmt.Errorf("%q is not a number", r)
		}
		return MetadataScalar{Number: d}, nil
	case MetadataBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(r))
		if err != nil {
			return MetadataScalar{}, fmt.Errorf("%q is not a boolean", r)
		}
		return MetadataScalar{Bool: b}, nil
	case MetadataDate:
		d, err := time.Parse(MetadataDateLayout, r)
		if err != nil {
			d, err = time.Parse(time.RFC3339, r)
			if err != nil {
				return MetadataScalar{}, fmt.Errorf("%q is not a date", r)
			}
		}
		return MetadataScalar{Date: d}, nil
	case MetadataKeyValue:
		var p KeyValuePair
		if err := json.Unmarshal([]byte(r), &p); err != nil || p.Key == "" {
			return MetadataScalar{}, fmt.Errorf("%q is not a key/value pair", r)
		}
		return MetadataScalar{Pair: p}, nil
	}
	return MetadataScalar{}, fmt.Errorf("unsupported metadata type %q", t)
}

// MarshalJSON encodes the wire shape: a string, or an array of strings for
// multi-valued fields.
func (v MetadataValue) MarshalJSON() ([]byte, error) {
	raw := v.Raw()
	if v.Multiple {
		if raw == nil {
			raw = []string{}
		}
		return json.Marshal(raw)
	}
	if len(raw) == 0 {
		return json.Marshal("")
	}
	return json.Marshal(raw[0])
}

// UnmarshalJSON accepts a string or an array of strings and leaves the value
// unresolved.
func (v *MetadataValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ss []string
		if err := json.Unmarshal(data, &ss); err != nil {
			return err
		}
		*v = RawValue(true, ss...)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = RawValue(false, s)
	return nil
}

// MetadataValues maps schema keys to values.
type MetadataValues map[string]MetadataValue

// Clone copies the map and the item slices.
func (m MetadataValues) Clone() MetadataValues {
	if m == nil {
		return nil
	}
	out := make(MetadataValues, len(m))
	for k, v := range m {
		v.Items = append([]MetadataScalar(nil), v.Items...)
		v.raw = append([]string(nil), v.raw...)
		out[k] = v
	}
	return out
}
