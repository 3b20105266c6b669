// Package approval resolves approval slot eligibility over the approval
// policy forest and propagates assignments to downstream policies.
package approval

import (
	"fmt"
	"sort"

	"github.com/pesio-ai/be-ap-payables/internal/apperrors"
	"github.com/pesio-ai/be-ap-payables/internal/domain"
)

// Assignment places a user in a slot.
type Assignment struct {
	SlotID string `json:"slotId"`
	UserID string `json:"userId"`
}

// graph indexes policies by id. Lookups tolerate unknown ids.
type graph struct {
	policies map[string]domain.ApprovalPolicy
}

func newGraph(policies []domain.ApprovalPolicy) graph {
	g := graph{policies: make(map[string]domain.ApprovalPolicy, len(policies))}
	for _, p := range policies {
		g.policies[p.ID] = p
	}
	return g
}

// upstreamOf prefers the policy graph and falls back to the slot's own
// upstream reference.
func (g graph) upstreamOf(slot domain.ApprovalSlot) string {
	if p, ok := g.policies[slot.ApprovalPolicyID]; ok {
		return p.UpstreamPolicyID
	}
	return slot.UpstreamPolicyID
}

// ancestors returns the policy ids above policyID, nearest first.
func (g graph) ancestors(policyID string) []string {
	var out []string
	seen := map[string]bool{policyID: true}
	cur := g.policies[policyID].UpstreamPolicyID
	for cur != "" && !seen[cur] {
		out = append(out, cur)
		seen[cur] = true
		p, ok := g.policies[cur]
		if !ok {
			break
		}
		cur = p.UpstreamPolicyID
	}
	return out
}

func (g graph) depth(policyID string) int {
	return len(g.ancestors(policyID))
}

// children returns the policies whose upstream is policyID, in input order.
func children(policies []domain.ApprovalPolicy, policyID string) []domain.ApprovalPolicy {
	var out []domain.ApprovalPolicy
	for _, p := range policies {
		if p.UpstreamPolicyID == policyID && p.ID != policyID {
			out = append(out, p)
		}
	}
	return out
}

func slotsOfPolicy(slots []domain.ApprovalSlot, policyID string) []int {
	var idx []int
	for i, s := range slots {
		if s.ApprovalPolicyID == policyID {
			idx = append(idx, i)
		}
	}
	return idx
}

// IsAssignable reports whether slot is unlocked. Root slots and slots whose
// upstream policy is unknown are always assignable. Otherwise the slot is
// assignable when its current assignee already fills an upstream slot, or
// when every upstream slot is assigned. The check is one level deep and
// callers evaluate slots top-down after every assignment.
func IsAssignable(slot domain.ApprovalSlot, slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy) bool {
	g := newGraph(policies)
	upstream := g.upstreamOf(slot)
	if upstream == "" {
		return true
	}
	if _, ok := g.policies[upstream]; !ok {
		return true
	}

	allAssigned := true
	for _, i := range slotsOfPolicy(slots, upstream) {
		up := slots[i]
		if slot.AssignedUserID != "" && up.AssignedUserID == slot.AssignedUserID {
			return true
		}
		if !up.IsAssigned() {
			allAssigned = false
		}
	}
	return allAssigned
}

// SlotState is a slot paired with its assignability.
type SlotState struct {
	Slot       domain.ApprovalSlot `json:"slot"`
	Assignable bool                `json:"assignable"`
}

// AssignableSlots evaluates every slot, roots first.
func AssignableSlots(slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy) []SlotState {
	g := newGraph(policies)
	ordered := make([]domain.ApprovalSlot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return g.depth(ordered[i].ApprovalPolicyID) < g.depth(ordered[j].ApprovalPolicyID)
	})

	out := make([]SlotState, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, SlotState{Slot: s, Assignable: IsAssignable(s, slots, policies)})
	}
	return out
}

// Conflicts reports whether holding target would give userID two slots on the
// invoice. Slots on one ancestor chain count as a single seat when the user
// holds every policy between them.
func Conflicts(userID string, target domain.ApprovalSlot, slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy) bool {
	if userID == "" {
		return false
	}
	g := newGraph(policies)
	for _, s := range slots {
		if s.ApprovalSlotID == target.ApprovalSlotID || s.AssignedUserID != userID {
			continue
		}
		if !g.chained(userID, s.ApprovalPolicyID, target.ApprovalPolicyID, slots) {
			return true
		}
	}
	return false
}

// chained reports whether policies a and b lie on one ancestor chain whose
// intermediate policies are all held by userID.
func (g graph) chained(userID, a, b string, slots []domain.ApprovalSlot) bool {
	if a == b {
		return false
	}
	return g.chainedUp(userID, a, b, slots) || g.chainedUp(userID, b, a, slots)
}

func (g graph) chainedUp(userID, ancestor, descendant string, slots []domain.ApprovalSlot) bool {
	for _, p := range g.ancestors(descendant) {
		if p == ancestor {
			return true
		}
		if !holdsPolicy(userID, p, slots) {
			return false
		}
	}
	return false
}

func holdsPolicy(userID, policyID string, slots []domain.ApprovalSlot) bool {
	for _, i := range slotsOfPolicy(slots, policyID) {
		if slots[i].AssignedUserID == userID {
			return true
		}
	}
	return false
}

// Propagate pre-fills downstream slots for user after they were assigned to
// slot. It walks child policies recursively, stopping at any slot the user is
// not eligible for, that someone else holds, or that would conflict. A slot
// the user already holds produces no assignment but is walked through.
func Propagate(user domain.EntityUser, slot domain.ApprovalSlot, slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy) []Assignment {
	working := cloneSlots(slots)
	for i := range working {
		if working[i].ApprovalSlotID == slot.ApprovalSlotID {
			working[i].AssignedUserID = user.ID
		}
	}

	var out []Assignment
	visited := map[string]bool{}
	var walk func(policyID string)
	walk = func(policyID string) {
		if visited[policyID] {
			return
		}
		visited[policyID] = true

		for _, child := range children(policies, policyID) {
			for _, i := range slotsOfPolicy(working, child.ID) {
				s := working[i]
				if !s.IsEligible(user) {
					continue
				}
				if s.AssignedUserID == user.ID {
					walk(child.ID)
					continue
				}
				if s.IsAssigned() || Conflicts(user.ID, s, working, policies) {
					continue
				}
				working[i].AssignedUserID = user.ID
				out = append(out, Assignment{SlotID: s.ApprovalSlotID, UserID: user.ID})
				walk(child.ID)
			}
		}
	}
	walk(slot.ApprovalPolicyID)
	return out
}

// Apply returns a copy of slots with assignments applied.
func Apply(slots []domain.ApprovalSlot, assignments []Assignment) []domain.ApprovalSlot {
	out := cloneSlots(slots)
	for _, a := range assignments {
		for i := range out {
			if out[i].ApprovalSlotID == a.SlotID {
				out[i].AssignedUserID = a.UserID
			}
		}
	}
	return out
}

// Assign validates a direct assignment of user to slotID and returns the
// updated slots with downstream propagation applied. An empty user id clears
// the slot without propagation.
func Assign(user domain.EntityUser, slotID string, slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy) ([]domain.ApprovalSlot, []Assignment, error) {
	idx := -1
	for i, s := range slots {
		if s.ApprovalSlotID == slotID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, apperrors.NotFound("approval slot", slotID)
	}
	slot := slots[idx]
	field := fmt.Sprintf("approvers[%d]", idx)

	if user.ID == "" {
		return Apply(slots, []Assignment{{SlotID: slotID}}), nil, nil
	}
	if !slot.IsEligible(user) {
		return nil, nil, apperrors.InvalidInput(field, fmt.Sprintf("user '%s' is not eligible for this approval step", user.ID))
	}
	candidate := slot
	candidate.AssignedUserID = user.ID
	if !IsAssignable(candidate, slots, policies) {
		return nil, nil, apperrors.InvalidInput(field, "the upstream approval step must be assigned first")
	}
	if Conflicts(user.ID, slot, slots, policies) {
		return nil, nil, apperrors.InvalidInput(field, fmt.Sprintf("user '%s' is already assigned to another approval step", user.ID))
	}

	root := Assignment{SlotID: slotID, UserID: user.ID}
	downstream := Propagate(user, slot, slots, policies)
	all := append([]Assignment{root}, downstream...)
	return Apply(slots, all), all, nil
}

// DuplicateAssignments reports slots whose assignee already holds an earlier,
// unchained slot.
func DuplicateAssignments(slots []domain.ApprovalSlot, policies []domain.ApprovalPolicy) apperrors.FieldErrors {
	var errs apperrors.FieldErrors
	g := newGraph(policies)
	for i, s := range slots {
		if !s.IsAssigned() {
			continue
		}
		for j := 0; j < i; j++ {
			prev := slots[j]
			if prev.AssignedUserID != s.AssignedUserID {
				continue
			}
			if !g.chained(s.AssignedUserID, prev.ApprovalPolicyID, s.ApprovalPolicyID, slots) {
				errs.Add(fmt.Sprintf("approvers[%d]", i), fmt.Sprintf("user '%s' is assigned to more than one approval step", s.AssignedUserID))
				break
			}
		}
	}
	return errs
}

// UnassignedSlots reports every slot without an assignee.
func UnassignedSlots(slots []domain.ApprovalSlot) apperrors.FieldErrors {
	var errs apperrors.FieldErrors
	for i, s := range slots {
		if !s.IsAssigned() {
			errs.Add(fmt.Sprintf("approvers[%d]", i), "an approver must be assigned")
		}
	}
	return errs
}

func cloneSlots(slots []domain.ApprovalSlot) []domain.ApprovalSlot {
	out := make([]domain.ApprovalSlot, len(slots))
	for i, s := range slots {
		out[i] = s.Clone()
	}
	return out
}
