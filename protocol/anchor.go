package protocol

import (
	"encoding/binary"
	"fmt"
)

// AnchorDiscriminator is the 8-byte prefix selecting a program method:
// sha256("<namespace>:<name>")[:8].
func AnchorDiscriminator(namespace, name string) [8]byte {
	h := sha256Parts([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], h[:8])
	return out
}

// borshWriter appends little-endian borsh primitives.
type borshWriter struct {
	buf []byte
}

func newMethodData(method string) *borshWriter {
	d := AnchorDiscriminator("global", method)
	return &borshWriter{buf: append([]byte(nil), d[:]...)}
}

func (w *borshWriter) u8(v uint8) *borshWriter {
	w.buf = append(w.buf, v)
	return w
}

func (w *borshWriter) u32(v uint32) *borshWriter {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *borshWriter) u64(v uint64) *borshWriter {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *borshWriter) pubkey(k Pubkey) *borshWriter {
	w.buf = append(w.buf, k[:]...)
	return w
}

func (w *borshWriter) hashes(hs [][32]byte) *borshWriter {
	w.u32(uint32(len(hs))) // #nosec G115 -- proof depth is bounded by tree height.
	for _, h := range hs {
		w.buf = append(w.buf, h[:]...)
	}
	return w
}

func (w *borshWriter) bytes() []byte { return w.buf }

// borshReader reads the account layouts this client decodes.
type borshReader struct {
	b   []byte
	off int
	err error
}

func (r *borshReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = perr(ERR_PARSE, fmt.Sprintf("account: truncated reading %s", what))
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *borshReader) u8(what string) uint8 {
	b := r.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *borshReader) u64(what string) uint64 {
	b := r.take(8, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *borshReader) pubkey(what string) Pubkey {
	var k Pubkey
	if b := r.take(32, what); b != nil {
		copy(k[:], b)
	}
	return k
}
