package domain

// ApprovalAction is the decision recorded on a slot.
type ApprovalAction string

const (
	ApprovalActionNone    ApprovalAction = "NONE"
	ApprovalActionApprove ApprovalAction = "APPROVE"
	ApprovalActionReject  ApprovalAction = "REJECT"
)

// ApprovalSlot is one seat in an invoice's approval chain.
type ApprovalSlot struct {
	ApprovalSlotID   string         `json:"approvalSlotId"`
	ApprovalPolicyID string         `json:"approvalPolicyId"`
	UpstreamPolicyID string         `json:"upstreamPolicyId,omitempty"`
	EligibleRoles    []string       `json:"eligibleRoles,omitempty"`
	EligibleUserIDs  []string       `json:"eligibleUserIds,omitempty"`
	AssignedUserID   string         `json:"assignedUserId,omitempty"`
	Action           ApprovalAction `json:"action,omitempty"`
}

// IsAssigned reports whether a user holds the slot.
func (s ApprovalSlot) IsAssigned() bool { return s.AssignedUserID != "" }

// IsEligible reports whether user may hold the slot, by role or by explicit id.
func (s ApprovalSlot) IsEligible(user EntityUser) bool {
	for _, id := range s.EligibleUserIDs {
		if id == user.ID {
			return true
		}
	}
	return user.HasAnyRole(s.EligibleRoles)
}

// Clone copies the slot including its eligibility sets.
func (s ApprovalSlot) Clone() ApprovalSlot {
	out := s
	if s.EligibleRoles != nil {
		out.EligibleRoles = append([]string(nil), s.EligibleRoles...)
	}
	if s.EligibleUserIDs != nil {
		out.EligibleUserIDs = append([]string(nil), s.EligibleUserIDs...)
	}
	return out
}

// ApprovalPolicy is a node of the approval policy forest.
type ApprovalPolicy struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	UpstreamPolicyID string `json:"upstreamPolicyId,omitempty"`
}
