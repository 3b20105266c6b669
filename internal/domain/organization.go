package domain

// PaymentMethodPolicies are the organization's enabled rails per role.
type PaymentMethodPolicies struct {
	SourceTypes           []PaymentMethodType `json:"sourceTypes,omitempty"`
	DestinationTypes      []PaymentMethodType `json:"destinationTypes,omitempty"`
	DisableVendorCreation bool                `json:"disableVendorCreation,omitempty"`
	LineItemsEnabled      bool                `json:"lineItemsEnabled"`
}

// TypesFor returns the enabled rails for role.
func (p PaymentMethodPolicies) TypesFor(role PaymentRole) []PaymentMethodType {
	if role == RoleSource {
		return p.SourceTypes
	}
	return p.DestinationTypes
}

// BackupDisbursement is a fallback rail offered to vendors without a native
// instance of that rail.
type BackupDisbursement struct {
	Type     PaymentMethodType `json:"type"`
	SchemaID string            `json:"schemaId,omitempty"`
	Active   bool              `json:"active"`
}

// TypeValue mirrors PaymentMethodInstance.TypeValue.
func (b BackupDisbursement) TypeValue() string {
	if b.Type == PaymentMethodCustom && b.SchemaID != "" {
		return b.SchemaID
	}
	return string(b.Type)
}

// OrganizationConfig is the organization-wide configuration snapshot.
type OrganizationConfig struct {
	MetadataSchemas       []MetadataSchema      `json:"metadataSchemas"`
	PaymentMethodPolicies PaymentMethodPolicies `json:"paymentMethodPolicies"`
	BackupDisbursements   []BackupDisbursement  `json:"backupDisbursements"`
	// MetadataOptions lists entity-provided candidate values per schema key.
	MetadataOptions map[string][]string `json:"metadataOptions,omitempty"`
}
