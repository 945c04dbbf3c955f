package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"github.com/pkg/errors"

	"redeem.dev/kit/protocol"
)

// Signer produces ed25519 signatures for one account key.
type Signer interface {
	Pubkey() protocol.Pubkey
	Sign(msg []byte) ([protocol.SignatureBytes]byte, error)
}

// Keypair is a locally held ed25519 key.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  protocol.Pubkey
}

func GenerateKeypair(r io.Reader) (*Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, errors.Wrap(err, "generate keypair")
	}
	return keypairFromPrivate(priv), nil
}

func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("keypair seed must be %d bytes (got %d)", ed25519.SeedSize, len(seed))
	}
	return keypairFromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// KeypairFromBytes accepts the 64-byte seed||pubkey form and checks that the
// public half matches the seed.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("keypair must be %d bytes (got %d)", ed25519.PrivateKeySize, len(b))
	}
	kp, err := KeypairFromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if !kp.pub.Equal(protocol.Pubkey(b[ed25519.SeedSize:])) {
		return nil, errors.New("keypair public key does not match seed")
	}
	return kp, nil
}

func keypairFromPrivate(priv ed25519.PrivateKey) *Keypair {
	kp := &Keypair{priv: priv}
	copy(kp.pub[:], priv.Public().(ed25519.PublicKey))
	return kp
}

func (k *Keypair) Pubkey() protocol.Pubkey { return k.pub }

func (k *Keypair) Sign(msg []byte) ([protocol.SignatureBytes]byte, error) {
	var out [protocol.SignatureBytes]byte
	copy(out[:], ed25519.Sign(k.priv, msg))
	return out, nil
}

// Seed returns a copy of the 32-byte private seed.
func (k *Keypair) Seed() []byte { return k.priv.Seed() }

// Bytes returns a copy of the 64-byte seed||pubkey form.
func (k *Keypair) Bytes() []byte { return append([]byte(nil), k.priv...) }

func Verify(pub protocol.Pubkey, msg []byte, sig [protocol.SignatureBytes]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}
