package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairSignVerify(t *testing.T) {
	kp, err := GenerateKeypair(nil)
	require.NoError(t, err)
	msg := []byte("message bytes")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	assert.True(t, Verify(kp.Pubkey(), msg, sig))
	assert.False(t, Verify(kp.Pubkey(), []byte("other"), sig))

	var _ Signer = kp
}

func TestKeypairFromBytes(t *testing.T) {
	kp, err := KeypairFromSeed(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	back, err := KeypairFromBytes(kp.Bytes())
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), back.Pubkey())

	bad := kp.Bytes()
	bad[40] ^= 0xff
	_, err = KeypairFromBytes(bad)
	assert.Error(t, err)
	_, err = KeypairFromBytes(bad[:10])
	assert.Error(t, err)
}

func TestKeypairFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "id.json")
	kp, err := GenerateKeypair(nil)
	require.NoError(t, err)
	require.NoError(t, SaveKeypairFile(path, kp))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('['), raw[0])

	back, err := LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Pubkey(), back.Pubkey())
}

func TestLoadKeypairFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1, 2, 300]`), 0o600))
	_, err := LoadKeypairFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = LoadKeypairFile(path)
	assert.Error(t, err)

	_, err = LoadKeypairFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
