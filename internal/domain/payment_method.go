package domain

import "encoding/json"

// PaymentMethodType is the rail of a payment method instance.
type PaymentMethodType string

const (
	PaymentMethodBankAccount PaymentMethodType = "bankAccount"
	PaymentMethodCard        PaymentMethodType = "card"
	PaymentMethodCheck       PaymentMethodType = "check"
	PaymentMethodCustom      PaymentMethodType = "custom"
	PaymentMethodOffPlatform PaymentMethodType = "offPlatform"
)

// IsBuiltin reports whether t is one of the fixed rails.
func (t PaymentMethodType) IsBuiltin() bool {
	switch t {
	case PaymentMethodBankAccount, PaymentMethodCard, PaymentMethodCheck, PaymentMethodCustom, PaymentMethodOffPlatform:
		return true
	}
	return false
}

// PaymentRole distinguishes the payer side from the vendor side.
type PaymentRole string

const (
	RoleSource      PaymentRole = "source"
	RoleDestination PaymentRole = "destination"
)

// PaymentMethodInstance is a concrete payment method owned by an entity.
type PaymentMethodInstance struct {
	ID                   string            `json:"id"`
	EntityID             string            `json:"entityId,omitempty"`
	Type                 PaymentMethodType `json:"type"`
	SchemaID             string            `json:"schemaId,omitempty"`
	IsDefaultSource      bool              `json:"isDefaultSource"`
	IsDefaultDestination bool              `json:"isDefaultDestination"`
	Payload              json.RawMessage   `json:"payload,omitempty"`
}

// TypeValue is the selector value for the instance: its schema id for custom
// instances, otherwise its type.
func (p PaymentMethodInstance) TypeValue() string {
	if p.Type == PaymentMethodCustom && p.SchemaID != "" {
		return p.SchemaID
	}
	return string(p.Type)
}

// IsDefaultFor reports whether the instance is flagged default for role.
func (p PaymentMethodInstance) IsDefaultFor(role PaymentRole) bool {
	if role == RoleSource {
		return p.IsDefaultSource
	}
	return p.IsDefaultDestination
}

// PaymentMethodFilter narrows ListPaymentMethods.
type PaymentMethodFilter struct {
	Type     PaymentMethodType `json:"type,omitempty"`
	SchemaID string            `json:"schemaId,omitempty"`
	Role     PaymentRole       `json:"role,omitempty"`
}

// Matches applies the filter locally.
func (f PaymentMethodFilter) Matches(p PaymentMethodInstance) bool {
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.SchemaID != "" && p.SchemaID != f.SchemaID {
		return false
	}
	return true
}

// PaymentMethodSpec describes a payment method to create.
type PaymentMethodSpec struct {
	Type                 PaymentMethodType `json:"type"`
	SchemaID             string            `json:"schemaId,omitempty"`
	IsDefaultSource      bool              `json:"isDefaultSource,omitempty"`
	IsDefaultDestination bool              `json:"isDefaultDestination,omitempty"`
	Payload              json.RawMessage   `json:"payload,omitempty"`
}
