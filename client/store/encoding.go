package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

// Wrapped mint key layout:
// layout u8 | pubkey 32 | wrapped_len u16le | wrapped
func encodeWrappedKey(w *crypto.WrappedKey) ([]byte, error) {
	if w == nil {
		return nil, fmt.Errorf("mint key: nil")
	}
	if w.Version != crypto.WrappedKeyVersion || w.WrapAlg != crypto.WrapAlgAESKW {
		return nil, fmt.Errorf("mint key: unsupported %s/%s", w.Version, w.WrapAlg)
	}
	if len(w.Wrapped) > math.MaxUint16 {
		return nil, fmt.Errorf("mint key: wrapped blob too large")
	}
	out := make([]byte, 0, 1+32+2+len(w.Wrapped))
	out = append(out, mintKeyLayoutV1)
	out = append(out, w.Pubkey[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(w.Wrapped))) // #nosec G115 -- bounded above.
	return append(out, w.Wrapped...), nil
}

func decodeWrappedKey(b []byte) (*crypto.WrappedKey, error) {
	if len(b) < 1+32+2 {
		return nil, fmt.Errorf("mint key: truncated")
	}
	if b[0] != mintKeyLayoutV1 {
		return nil, fmt.Errorf("mint key: unknown layout %d", b[0])
	}
	n := int(binary.LittleEndian.Uint16(b[33:35]))
	if len(b) != 35+n {
		return nil, fmt.Errorf("mint key: length mismatch")
	}
	return &crypto.WrappedKey{
		Version: crypto.WrappedKeyVersion,
		Pubkey:  protocol.Pubkey(b[1:33]),
		WrapAlg: crypto.WrapAlgAESKW,
		Wrapped: append([]byte(nil), b[35:]...),
	}, nil
}

// Claim record layout:
// layout u8 | updated_unix_ms i64le | failed_index i32le | state_len u8 | state |
// txid_count u16le | (txid_len u8 | txid)*
func encodeClaimRecord(rec ClaimRecord) ([]byte, error) {
	if len(rec.State) > math.MaxUint8 {
		return nil, fmt.Errorf("claim record: state too long")
	}
	if len(rec.Txids) > math.MaxUint16 {
		return nil, fmt.Errorf("claim record: too many txids")
	}
	out := []byte{claimLayoutV1}
	out = binary.LittleEndian.AppendUint64(out, uint64(rec.UpdatedAt.UnixMilli())) // #nosec G115 -- round-tripped as int64.
	out = binary.LittleEndian.AppendUint32(out, uint32(rec.FailedIndex))           // #nosec G115 -- round-tripped as int32.
	out = append(out, byte(len(rec.State)))
	out = append(out, rec.State...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(rec.Txids))) // #nosec G115 -- bounded above.
	for _, id := range rec.Txids {
		if len(id) > math.MaxUint8 {
			return nil, fmt.Errorf("claim record: txid too long")
		}
		out = append(out, byte(len(id)))
		out = append(out, id...)
	}
	return out, nil
}

func decodeClaimRecord(b []byte) (*ClaimRecord, error) {
	r := reader{b: b}
	if v := r.u8(); r.err == nil && v != claimLayoutV1 {
		return nil, fmt.Errorf("claim record: unknown layout %d", v)
	}
	rec := &ClaimRecord{}
	rec.UpdatedAt = time.UnixMilli(int64(r.u64())) // #nosec G115 -- written from int64.
	rec.FailedIndex = int32(r.u32())               // #nosec G115 -- written from int32.
	rec.State = string(r.take(int(r.u8())))
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		rec.Txids = append(rec.Txids, string(r.take(int(r.u8()))))
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(b) {
		return nil, fmt.Errorf("claim record: trailing bytes")
	}
	return rec, nil
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("claim record: truncated")
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
