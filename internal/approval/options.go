package approval

import (
	"sort"

	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// UserOption is one entry of an approver picker.
type UserOption struct {
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Disabled bool   `json:"disabled"`
}

// Options lists the users eligible for slot. Users holding a conflicting slot
// are included but disabled. Enabled options come first, then by name.
func Options(slot domain.ApprovalSlot, slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy, users []domain.EntityUser) []UserOption {
	seen := make(map[string]bool, len(users))
	out := make([]UserOption, 0, len(users))
	for _, u := range users {
		if seen[u.ID] || !slot.IsEligible(u) {
			continue
		}
		seen[u.ID] = true
		out = append(out, UserOption{
			UserID:   u.ID,
			Name:     u.Name,
			Disabled: Conflicts(u.ID, slot, slots, policies),
		})
	}

	// Explicitly listed ids unknown to the directory are still selectable.
	for _, id := range slot.EligibleUserIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, UserOption{UserID: id, Name: id, Disabled: Conflicts(id, slot, slots, policies)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Disabled != out[j].Disabled {
			return !out[i].Disabled
		}
		return out[i].Name < out[j].Name
	})
	return out
}
