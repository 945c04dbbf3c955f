package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESKWRoundtrip(t *testing.T) {
	kek := bytes.Repeat([]byte{0x11}, 32)
	keyIn := bytes.Repeat([]byte{0x22}, 64)
	wrapped, err := AESKeyWrapRFC3394(kek, keyIn)
	require.NoError(t, err)
	assert.Len(t, wrapped, 72)
	plain, err := AESKeyUnwrapRFC3394(kek, wrapped)
	require.NoError(t, err)
	assert.Equal(t, keyIn, plain)

	wrapped[5] ^= 1
	_, err = AESKeyUnwrapRFC3394(kek, wrapped)
	assert.Error(t, err)
}

// RFC 3394 section 4.6: 256-bit key data with a 256-bit KEK.
func TestAESKWKnownAnswer(t *testing.T) {
	kek, _ := hex.DecodeString("000102030405060708090A0B0C0D0E0F101112131415161718191A1B1C1D1E1F")
	key, _ := hex.DecodeString("00112233445566778899AABBCCDDEEFF000102030405060708090A0B0C0D0E0F")
	want, _ := hex.DecodeString("28C9F404C4B810F4CBCCB35CFB87F8263F5786E2D80ED326CBC7F0E71A99F43BFB988B9B7A02DD21")
	got, err := AESKeyWrapRFC3394(kek, key)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAESKWRejectsSizes(t *testing.T) {
	_, err := AESKeyWrapRFC3394(make([]byte, 16), make([]byte, 32))
	assert.Error(t, err)
	_, err = AESKeyWrapRFC3394(make([]byte, 32), make([]byte, 12))
	assert.Error(t, err)
	_, err = AESKeyUnwrapRFC3394(make([]byte, 32), make([]byte, 16))
	assert.Error(t, err)
}

func TestDeriveKEK(t *testing.T) {
	secret := bytes.Repeat([]byte{7}, 32)
	a, err := DeriveKEK(secret, nil, "mint")
	require.NoError(t, err)
	b, err := DeriveKEK(secret, nil, "mint")
	require.NoError(t, err)
	c, err := DeriveKEK(secret, nil, "other")
	require.NoError(t, err)
	assert.Len(t, a, KEKBytes)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = DeriveKEK([]byte{1}, nil, "mint")
	assert.Error(t, err)
}

func TestWrapKeypair(t *testing.T) {
	kek := bytes.Repeat([]byte{0x33}, 32)
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)

	w, err := WrapKeypair(kek, kp)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), w.Pubkey)

	back, err := UnwrapKeypair(kek, w)
	require.NoError(t, err)
	assert.Equal(t, kp.Bytes(), back.Bytes())

	_, err = UnwrapKeypair(bytes.Repeat([]byte{0x34}, 32), w)
	assert.Error(t, err)

	w.Version = "RDKSv0"
	_, err = UnwrapKeypair(kek, w)
	assert.Error(t, err)
}
