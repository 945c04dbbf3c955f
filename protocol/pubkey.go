package protocol

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

const PubkeyBytes = 32

// Pubkey is a 32-byte account address, rendered in base58.
type Pubkey [PubkeyBytes]byte

// DefaultPubkey is the all-zero key. Distributions use it to mean "no
// temporal signer configured".
var DefaultPubkey Pubkey

func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var out Pubkey
	if len(b) != PubkeyBytes {
		return out, perr(ERR_PARSE, fmt.Sprintf("pubkey must be %d bytes (got %d)", PubkeyBytes, len(b)))
	}
	copy(out[:], b)
	return out, nil
}

func ParsePubkey(s string) (Pubkey, error) {
	if s == "" {
		return Pubkey{}, perr(ERR_PARSE, "empty pubkey")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Pubkey{}, perr(ERR_PARSE, fmt.Sprintf("pubkey %q: %v", s, err))
	}
	return PubkeyFromBytes(raw)
}

// MustPubkey is for package-level constants only.
func MustPubkey(s string) Pubkey {
	k, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Pubkey) String() string { return base58.Encode(k[:]) }

func (k Pubkey) Bytes() []byte { return append([]byte(nil), k[:]...) }

func (k Pubkey) IsZero() bool { return k == DefaultPubkey }

func (k Pubkey) Equal(o Pubkey) bool { return k == o }

func (k Pubkey) Compare(o Pubkey) int { return bytes.Compare(k[:], o[:]) }

func (k Pubkey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Pubkey) UnmarshalText(b []byte) error {
	parsed, err := ParsePubkey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Hash32 is a 32-byte digest with base58 text form, used for Merkle roots,
// proof elements and blockhashes.
type Hash32 [32]byte

func ParseHash32(s string) (Hash32, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Hash32{}, perr(ERR_PARSE, fmt.Sprintf("hash %q: %v", s, err))
	}
	if len(raw) != 32 {
		return Hash32{}, perr(ERR_PARSE, fmt.Sprintf("hash must be 32 bytes (got %d)", len(raw)))
	}
	var out Hash32
	copy(out[:], raw)
	return out, nil
}

func (h Hash32) String() string { return base58.Encode(h[:]) }

func (h Hash32) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash32) UnmarshalText(b []byte) error {
	parsed, err := ParseHash32(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
