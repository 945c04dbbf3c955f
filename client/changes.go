package client

import (
	"redeem.dev/kit/protocol"
)

type ChangeOp int

const (
	OpAdd ChangeOp = iota
	OpRemove
)

func (op ChangeOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// IngredientChangeRequest asks for one group's escrow to hold TargetAsset
// (Add) or to be emptied back to the wallet (Remove). For Remove a zero
// TargetAsset means whatever the escrow holds.
type IngredientChangeRequest struct {
	GroupID     string
	TargetAsset protocol.Pubkey
	Op          ChangeOp
}

// ChangeList accumulates pending dish edits for one session. onChain maps
// group ids to the mint currently escrowed.
type ChangeList struct {
	onChain map[string]protocol.Pubkey
	pending []IngredientChangeRequest
}

func NewChangeList(onChain []DishIngredient) *ChangeList {
	cl := &ChangeList{onChain: make(map[string]protocol.Pubkey, len(onChain))}
	for _, d := range onChain {
		cl.onChain[d.GroupID] = d.Mint
	}
	return cl
}

func (cl *ChangeList) find(group string) int {
	for i, c := range cl.pending {
		if c.GroupID == group {
			return i
		}
	}
	return -1
}

// Add queues mint for group, replacing an earlier pending add for the same
// group. It reports whether a previous pending mint was replaced.
func (cl *ChangeList) Add(group string, mint protocol.Pubkey) (bool, error) {
	if _, ok := cl.onChain[group]; ok {
		return false, errf(protocol.ERR_ALREADY_PRESENT, "ingredient %s has already been added to this dish", group)
	}
	i := cl.find(group)
	if i < 0 {
		cl.pending = append(cl.pending, IngredientChangeRequest{GroupID: group, TargetAsset: mint, Op: OpAdd})
		return false, nil
	}
	if cl.pending[i].Op != OpAdd {
		return false, errf(protocol.ERR_DUPLICATE_CHANGE, "ingredient %s: cannot recover and add a mint", group)
	}
	if cl.pending[i].TargetAsset == mint {
		return false, nil
	}
	cl.pending[i].TargetAsset = mint
	return true, nil
}

// Recover queues a removal of the mint escrowed for group.
func (cl *ChangeList) Recover(group string) error {
	mint, ok := cl.onChain[group]
	if !ok {
		return errf(protocol.ERR_NOTHING_TO_RECOVER, "ingredient %s is not part of this dish", group)
	}
	if i := cl.find(group); i >= 0 {
		if cl.pending[i].Op != OpRemove || cl.pending[i].TargetAsset != mint {
			return errf(protocol.ERR_DUPLICATE_CHANGE, "ingredient %s: cannot recover and add a mint", group)
		}
		return nil
	}
	cl.pending = append(cl.pending, IngredientChangeRequest{GroupID: group, TargetAsset: mint, Op: OpRemove})
	return nil
}

func (cl *ChangeList) Cancel(group string) error {
	i := cl.find(group)
	if i < 0 {
		return errf(protocol.ERR_INVALID_STATE, "ingredient %s is not part of the change-list", group)
	}
	cl.pending = append(cl.pending[:i], cl.pending[i+1:]...)
	return nil
}

func (cl *ChangeList) Len() int { return len(cl.pending) }

// Requests returns a copy of the pending changes in insertion order.
func (cl *ChangeList) Requests() []IngredientChangeRequest {
	return append([]IngredientChangeRequest(nil), cl.pending...)
}

func (cl *ChangeList) Reset() { cl.pending = nil }
