package protocol

import (
	"crypto/sha256"

	"golang.org/x/crypto/sha3"
)

func keccak256(parts ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Keccak256 is the Merkle hash used by every allow-list tree.
func Keccak256(b []byte) [32]byte { return keccak256(b) }

func sha256Parts(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
