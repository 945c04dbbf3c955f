package protocol

import "fmt"

// CompactU16 is the length prefix used throughout the transaction wire
// format: little-endian base-128, at most three bytes.
type CompactU16 uint16

func (c CompactU16) Encode() []byte {
	return AppendCompactU16(nil, int(c))
}

// AppendCompactU16 appends n; callers guarantee 0 <= n <= 0xffff.
func AppendCompactU16(dst []byte, n int) []byte {
	v := uint32(n) // #nosec G115 -- callers bound n by 0xffff.
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// CompactU16Len is the encoded size of n.
func CompactU16Len(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	default:
		return 3
	}
}

func DecodeCompactU16(b []byte) (CompactU16, int, error) {
	var v uint32
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, perr(ERR_PARSE, "compact-u16: truncated")
		}
		c := b[i]
		v |= uint32(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			if i > 0 && c == 0 {
				return 0, 0, perr(ERR_PARSE, "compact-u16: non-minimal")
			}
			if v > 0xffff {
				return 0, 0, perr(ERR_PARSE, fmt.Sprintf("compact-u16: value %d overflows", v))
			}
			return CompactU16(v), i + 1, nil
		}
	}
	return 0, 0, perr(ERR_PARSE, "compact-u16: too long")
}
