package crypto

import (
	"crypto/aes"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// AES-256 Key Wrap (RFC 3394 / NIST SP 800-38F), used to keep in-flight
// mint keys at rest between claim attempts.

const KEKBytes = 32

var kwDefaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// AESKeyWrapRFC3394 wraps key material. kek must be 32 bytes; keyIn must be
// 16..4096 bytes and a multiple of 8.
func AESKeyWrapRFC3394(kek, keyIn []byte) ([]byte, error) {
	if len(kek) != KEKBytes {
		return nil, errors.New("aeskw: kek must be 32 bytes (AES-256)")
	}
	if len(keyIn) < 16 || len(keyIn) > 4096 || len(keyIn)%8 != 0 {
		return nil, errors.New("aeskw: keyIn must be 16..4096 bytes and multiple of 8")
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(keyIn) / 8
	r := make([][8]byte, n)
	for i := range r {
		copy(r[i][:], keyIn[i*8:(i+1)*8])
	}
	a := kwDefaultIV
	var b [16]byte
	for j := 0; j < 6; j++ {
		for i := 0; i < n; i++ {
			copy(b[0:8], a[:])
			copy(b[8:16], r[i][:])
			block.Encrypt(b[:], b[:])
			copy(a[:], b[0:8])
			xorCounter(&a, uint64(n*j+i+1))
			copy(r[i][:], b[8:16])
		}
	}

	out := make([]byte, 0, 8+len(keyIn))
	out = append(out, a[:]...)
	for i := range r {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

// AESKeyUnwrapRFC3394 reverses AESKeyWrapRFC3394 and checks the integrity
// vector.
func AESKeyUnwrapRFC3394(kek, wrapped []byte) ([]byte, error) {
	if len(kek) != KEKBytes {
		return nil, errors.New("aeskw: kek must be 32 bytes (AES-256)")
	}
	if len(wrapped) < 24 || len(wrapped) > 4104 || len(wrapped)%8 != 0 {
		return nil, errors.New("aeskw: wrapped must be 24..4104 bytes and multiple of 8")
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}

	n := len(wrapped)/8 - 1
	var a [8]byte
	copy(a[:], wrapped[0:8])
	r := make([][8]byte, n)
	for i := range r {
		copy(r[i][:], wrapped[(i+1)*8:(i+2)*8])
	}
	var b [16]byte
	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			xorCounter(&a, uint64(n*j+i+1))
			copy(b[0:8], a[:])
			copy(b[8:16], r[i][:])
			block.Decrypt(b[:], b[:])
			copy(a[:], b[0:8])
			copy(r[i][:], b[8:16])
		}
	}
	if a != kwDefaultIV {
		return nil, errors.New("aeskw: integrity check failed")
	}

	out := make([]byte, 0, n*8)
	for i := range r {
		out = append(out, r[i][:]...)
	}
	return out, nil
}

func xorCounter(a *[8]byte, t uint64) {
	for k := 0; k < 8; k++ {
		a[k] ^= byte(t >> (56 - 8*k))
	}
}

// DeriveKEK expands secret into a wrapping key bound to info.
func DeriveKEK(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) < 16 {
		return nil, errors.New("kek: secret too short")
	}
	kek := make([]byte, KEKBytes)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), kek); err != nil {
		return nil, errors.Wrap(err, "kek: derive")
	}
	return kek, nil
}
