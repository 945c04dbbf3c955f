package protocol

import (
	"fmt"

	"filippo.io/edwards25519"
)

const (
	MaxSeedBytes = 32
	MaxSeeds     = 16
)

var pdaMarker = []byte("ProgramDerivedAddress")

// IsOnCurve reports whether b decodes to a point on the ed25519 curve, and so
// could be controlled by a private key.
func IsOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return perr(ERR_SEEDS_TOO_LONG, fmt.Sprintf("pda: %d seeds exceeds max %d", len(seeds), MaxSeeds))
	}
	total := 0
	for i, s := range seeds {
		if len(s) > MaxSeedBytes {
			return perr(ERR_SEEDS_TOO_LONG, fmt.Sprintf("pda: seed %d is %d bytes, max %d", i, len(s), MaxSeedBytes))
		}
		total += len(s)
	}
	if total > MaxSeeds*MaxSeedBytes {
		return perr(ERR_SEEDS_TOO_LONG, fmt.Sprintf("pda: concatenated seeds are %d bytes", total))
	}
	return nil
}

// CreateProgramAddress hashes seeds under program and rejects results that
// land on the curve.
func CreateProgramAddress(seeds [][]byte, program Pubkey) (Pubkey, error) {
	if err := checkSeeds(seeds); err != nil {
		return Pubkey{}, err
	}
	parts := make([][]byte, 0, len(seeds)+2)
	parts = append(parts, seeds...)
	parts = append(parts, program[:], pdaMarker)
	h := sha256Parts(parts...)
	if IsOnCurve(h[:]) {
		return Pubkey{}, perr(ERR_ON_CURVE, "pda: derived address is on curve")
	}
	return Pubkey(h), nil
}

// FindProgramAddress tries bumps 255 down to 0 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, program Pubkey) (Pubkey, uint8, error) {
	// The bump occupies one seed slot.
	if len(seeds)+1 > MaxSeeds {
		return Pubkey{}, 0, perr(ERR_SEEDS_TOO_LONG, fmt.Sprintf("pda: %d seeds leaves no room for bump", len(seeds)))
	}
	if err := checkSeeds(seeds); err != nil {
		return Pubkey{}, 0, err
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := []byte{0}
	withBump[len(seeds)] = bump
	for b := 255; b >= 0; b-- {
		bump[0] = byte(b)
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(b), nil
		}
		if !HasCode(err, ERR_ON_CURVE) {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, perr(ERR_NO_VALID_BUMP, "pda: no off-curve bump found")
}

// ChunkSeed splits b into seeds of at most size bytes. An empty input
// yields no seeds.
func ChunkSeed(b []byte, size int) [][]byte {
	if size <= 0 {
		size = MaxSeedBytes
	}
	var out [][]byte
	for len(b) > 0 {
		n := min(size, len(b))
		out = append(out, b[:n])
		b = b[n:]
	}
	return out
}
