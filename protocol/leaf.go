package protocol

import (
	"encoding/binary"
	"fmt"
)

// ClaimLeafBytes is the fixed size of an encoded distribution leaf.
const ClaimLeafBytes = 8 + 32 + 32 + 8 + 8

// ClaimLeaf is one allow-listed claim entry of a distribution.
type ClaimLeaf struct {
	Index   uint64
	Secret  Pubkey // claimant wallet, or the pin-derived claimant address
	Mint    Pubkey // asset group: master mint for edition claims
	Amount  uint64
	Edition uint64
}

// Layout:
// index u64le | secret 32 | mint 32 | amount u64le | edition u64le
func EncodeClaimLeaf(l ClaimLeaf) []byte {
	out := make([]byte, ClaimLeafBytes)
	binary.LittleEndian.PutUint64(out[0:8], l.Index)
	copy(out[8:40], l.Secret[:])
	copy(out[40:72], l.Mint[:])
	binary.LittleEndian.PutUint64(out[72:80], l.Amount)
	binary.LittleEndian.PutUint64(out[80:88], l.Edition)
	return out
}

func DecodeClaimLeaf(b []byte) (ClaimLeaf, error) {
	if len(b) != ClaimLeafBytes {
		return ClaimLeaf{}, perr(ERR_LEAF_SIZE, fmt.Sprintf("claim leaf must be %d bytes (got %d)", ClaimLeafBytes, len(b)))
	}
	var l ClaimLeaf
	l.Index = binary.LittleEndian.Uint64(b[0:8])
	copy(l.Secret[:], b[8:40])
	copy(l.Mint[:], b[40:72])
	l.Amount = binary.LittleEndian.Uint64(b[72:80])
	l.Edition = binary.LittleEndian.Uint64(b[80:88])
	return l, nil
}

// MintLeaves turns an ingredient group's member list into tree leaves.
func MintLeaves(mints []Pubkey) [][]byte {
	out := make([][]byte, len(mints))
	for i := range mints {
		out[i] = mints[i].Bytes()
	}
	return out
}
