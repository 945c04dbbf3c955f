package protocol

import (
	"bytes"
	"fmt"
)

const (
	merkleLeafTag = 0x00
	merkleNodeTag = 0x01
)

// MerkleTree is an immutable binary Keccak-256 tree over fixed-size leaves.
//
// Sibling pairs are sorted before hashing, so a proof carries no left/right
// flags. An unpaired last node at any level is promoted unchanged; Proof
// emits no sibling for that level and VerifyMerkleProof never sees one.
type MerkleTree struct {
	leaves [][]byte
	layers [][][32]byte // layers[0] holds leaf hashes; the last layer holds the root.
}

func hashLeaf(leaf []byte) [32]byte {
	return keccak256([]byte{merkleLeafTag}, leaf)
}

func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return keccak256([]byte{merkleNodeTag}, a[:], b[:])
}

func BuildMerkleTree(leaves [][]byte) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, perr(ERR_EMPTY_INPUT, "merkle: empty leaf list")
	}
	size := len(leaves[0])
	if size == 0 {
		return nil, perr(ERR_LEAF_SIZE, "merkle: zero-length leaf")
	}

	owned := make([][]byte, len(leaves))
	level := make([][32]byte, 0, len(leaves))
	for i, leaf := range leaves {
		if len(leaf) != size {
			return nil, perr(ERR_LEAF_SIZE, fmt.Sprintf("merkle: leaf %d is %d bytes, want %d", i, len(leaf), size))
		}
		owned[i] = append([]byte(nil), leaf...)
		level = append(level, hashLeaf(leaf))
	}

	layers := [][][32]byte{level}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i == len(level)-1 {
				// Odd promotion rule: carry forward unchanged.
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		layers = append(layers, next)
		level = next
	}
	return &MerkleTree{leaves: owned, layers: layers}, nil
}

func (t *MerkleTree) Root() [32]byte {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

func (t *MerkleTree) Len() int { return len(t.leaves) }

func (t *MerkleTree) Leaf(i int) ([]byte, error) {
	if i < 0 || i >= len(t.leaves) {
		return nil, perr(ERR_INDEX_OUT_OF_RANGE, fmt.Sprintf("merkle: leaf index %d out of range [0,%d)", i, len(t.leaves)))
	}
	return append([]byte(nil), t.leaves[i]...), nil
}

// Proof returns the sibling hashes from the leaf layer up to, but excluding,
// the root.
func (t *MerkleTree) Proof(i int) ([][32]byte, error) {
	if i < 0 || i >= len(t.leaves) {
		return nil, perr(ERR_INDEX_OUT_OF_RANGE, fmt.Sprintf("merkle: leaf index %d out of range [0,%d)", i, len(t.leaves)))
	}
	proof := make([][32]byte, 0, len(t.layers)-1)
	idx := i
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyMerkleProof folds leaf with each sibling using the construction rule
// and compares against root.
func VerifyMerkleProof(leaf []byte, proof [][32]byte, root [32]byte) bool {
	h := hashLeaf(leaf)
	for _, sibling := range proof {
		h = hashPair(h, sibling)
	}
	return h == root
}

func MerkleRoot(leaves [][]byte) ([32]byte, error) {
	t, err := BuildMerkleTree(leaves)
	if err != nil {
		return [32]byte{}, err
	}
	return t.Root(), nil
}
