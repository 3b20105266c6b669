// Package paymentmethod picks the payment method type and instance for the
// payer (source) and vendor (destination) sides of an invoice.
package paymentmethod

import (
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// priority is the fixed fallback order when no instance is current or
// default. Custom instances follow, then off-platform.
var priority = []domain.PaymentMethodType{
	domain.PaymentMethodBankAccount,
	domain.PaymentMethodCard,
	domain.PaymentMethodCheck,
}

// SelectInput is the snapshot a selection is computed over.
type SelectInput struct {
	Role      domain.PaymentRole
	Instances []domain.PaymentMethodInstance
	// EntityID owns Instances: the payer for sources, the counterparty for
	// payable destinations.
	EntityID               string
	CurrentPaymentMethodID string
	Org                    domain.OrganizationConfig
}

// TypeOption is one entry of the type picker.
type TypeOption struct {
	Value    string                   `json:"value"`
	Type     domain.PaymentMethodType `json:"type"`
	SchemaID string                   `json:"schemaId,omitempty"`
	// Backup marks a backup-disbursement rail with no instance yet.
	Backup      bool `json:"backup,omitempty"`
	HasInstance bool `json:"hasInstance"`
}

// SideEffectKind names a follow-up the caller must run before the selection
// is final.
type SideEffectKind string

const SideEffectCreateOffPlatform SideEffectKind = "createOffPlatform"

// SideEffect is a required follow-up of a selection.
type SideEffect struct {
	Kind     SideEffectKind     `json:"kind"`
	EntityID string             `json:"entityId"`
	Role     domain.PaymentRole `json:"role"`
}

// Selection is the outcome of Select. An empty InstanceID with Incomplete set
// means the caller must prompt for a new instance of Type.
type Selection struct {
	Role            domain.PaymentRole       `json:"role"`
	Type            string                   `json:"type"`
	PaymentType     domain.PaymentMethodType `json:"paymentType,omitempty"`
	SchemaID        string                   `json:"schemaId,omitempty"`
	InstanceID      string                   `json:"instanceId,omitempty"`
	SelectableTypes []TypeOption             `json:"selectableTypes"`
	SideEffects     []SideEffect             `json:"sideEffects,omitempty"`
	Incomplete      bool                     `json:"incomplete"`
	// ClearOptions tells the caller to drop type-specific destination options.
	ClearOptions bool `json:"clearOptions,omitempty"`
}

// Pending reports whether side effects must run before the selection is final.
func (s Selection) Pending() bool { return len(s.SideEffects) > 0 }

// Select resolves the type and instance for in.Role. First match wins:
// the current instance, the role's default, then bankAccount, card, check
// and the first custom instance.
func Select(in SelectInput) Selection {
	sel := Selection{Role: in.Role, SelectableTypes: selectableTypes(in)}

	if in.CurrentPaymentMethodID != "" {
		for _, inst := range in.Instances {
			if inst.ID == in.CurrentPaymentMethodID {
				return withInstance(sel, inst)
			}
		}
	}
	for _, inst := range in.Instances {
		if inst.IsDefaultFor(in.Role) {
			return withInstance(sel, inst)
		}
	}
	for _, t := range priority {
		for _, inst := range in.Instances {
			if inst.Type == t {
				return withInstance(sel, inst)
			}
		}
	}
	for _, inst := range in.Instances {
		if inst.Type == domain.PaymentMethodCustom {
			return withInstance(sel, inst)
		}
	}
	for _, inst := range in.Instances {
		if inst.Type == domain.PaymentMethodOffPlatform {
			return withInstance(sel, inst)
		}
	}

	// No instance at all: fall back to the first rail the organization enables.
	for _, opt := range sel.SelectableTypes {
		if !opt.Backup {
			return withoutInstance(sel, in, opt)
		}
	}
	sel.Incomplete = true
	return sel
}

// SwitchType handles a user picking a different type value. The previous
// instance and type-specific options are cleared, and instance selection is
// re-run over instances of the new type only.
func SwitchType(in SelectInput, value string) Selection {
	sel := Selection{Role: in.Role, SelectableTypes: selectableTypes(in), ClearOptions: true}

	var matching []domain.PaymentMethodInstance
	for _, inst := range in.Instances {
		if inst.TypeValue() == value {
			matching = append(matching, inst)
		}
	}
	for _, inst := range matching {
		if inst.IsDefaultFor(in.Role) {
			return keepClear(withInstance(sel, inst))
		}
	}
	if len(matching) > 0 {
		return keepClear(withInstance(sel, matching[0]))
	}

	for _, opt := range sel.SelectableTypes {
		if opt.Value == value {
			return keepClear(withoutInstance(sel, in, opt))
		}
	}
	if t := domain.PaymentMethodType(value); t.IsBuiltin() {
		return keepClear(withoutInstance(sel, in, TypeOption{Value: value, Type: t}))
	}
	// Anything else names a custom schema.
	return keepClear(withoutInstance(sel, in, TypeOption{Value: value, Type: domain.PaymentMethodCustom, SchemaID: value}))
}

// Provisioned finalizes a pending off-platform selection with the instance
// returned by the provisioner.
func Provisioned(sel Selection, inst domain.PaymentMethodInstance) Selection {
	sel.SideEffects = nil
	sel.InstanceID = inst.ID
	sel.Incomplete = false
	return sel
}

func keepClear(sel Selection) Selection {
	sel.ClearOptions = true
	return sel
}

func withInstance(sel Selection, inst domain.PaymentMethodInstance) Selection {
	sel.Type = inst.TypeValue()
	sel.PaymentType = inst.Type
	sel.SchemaID = inst.SchemaID
	sel.InstanceID = inst.ID
	return sel
}

func withoutInstance(sel Selection, in SelectInput, opt TypeOption) Selection {
	sel.Type = opt.Value
	sel.PaymentType = opt.Type
	sel.SchemaID = opt.SchemaID
	sel.InstanceID = ""
	// An off-platform placeholder needs a known owner to be created under.
	if opt.Type == domain.PaymentMethodOffPlatform && in.EntityID != "" && in.EntityID != domain.NewVendorID {
		sel.SideEffects = []SideEffect{{Kind: SideEffectCreateOffPlatform, EntityID: in.EntityID, Role: in.Role}}
		return sel
	}
	sel.Incomplete = true
	return sel
}

// selectableTypes lists instance rails in priority order, then enabled
// policy rails, then for destinations the active backup disbursements that
// no instance covers.
func selectableTypes(in SelectInput) []TypeOption {
	var out []TypeOption
	seen := map[string]bool{}
	add := func(opt TypeOption) {
		if opt.Value == "" || seen[opt.Value] {
			return
		}
		seen[opt.Value] = true
		out = append(out, opt)
	}

	order := append(append([]domain.PaymentMethodType{}, priority...), domain.PaymentMethodCustom, domain.PaymentMethodOffPlatform)
	for _, t := range order {
		for _, inst := range in.Instances {
			if inst.Type == t {
				add(TypeOption{Value: inst.TypeValue(), Type: inst.Type, SchemaID: inst.SchemaID, HasInstance: true})
			}
		}
	}

	for _, t := range in.Org.PaymentMethodPolicies.TypesFor(in.Role) {
		if t == domain.PaymentMethodCustom {
			continue
		}
		add(TypeOption{Value: string(t), Type: t})
	}

	if in.Role == domain.RoleDestination {
		for _, b := range in.Org.BackupDisbursements {
			if !b.Active {
				continue
			}
			add(TypeOption{Value: b.TypeValue(), Type: b.Type, SchemaID: b.SchemaID, Backup: true})
		}
	}
	return out
}
