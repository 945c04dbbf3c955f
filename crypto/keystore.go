package crypto

import (
	"github.com/pkg/errors"

	"redeem.dev/kit/protocol"
)

const (
	WrappedKeyVersion = "RDKSv1"
	WrapAlgAESKW      = "AES-256-KW"
)

// WrappedKey is a keypair sealed under a KEK for storage.
type WrappedKey struct {
	Version string          `json:"version"`
	Pubkey  protocol.Pubkey `json:"pubkey"`
	WrapAlg string          `json:"wrap_alg"`
	Wrapped []byte          `json:"wrapped"`
}

func WrapKeypair(kek []byte, kp *Keypair) (*WrappedKey, error) {
	wrapped, err := AESKeyWrapRFC3394(kek, kp.Bytes())
	if err != nil {
		return nil, err
	}
	return &WrappedKey{
		Version: WrappedKeyVersion,
		Pubkey:  kp.Pubkey(),
		WrapAlg: WrapAlgAESKW,
		Wrapped: wrapped,
	}, nil
}

func UnwrapKeypair(kek []byte, w *WrappedKey) (*Keypair, error) {
	if w == nil {
		return nil, errors.New("keystore: nil wrapped key")
	}
	if w.Version != WrappedKeyVersion {
		return nil, errors.Errorf("keystore: unsupported version %q", w.Version)
	}
	if w.WrapAlg != WrapAlgAESKW {
		return nil, errors.Errorf("keystore: unsupported wrap_alg %q", w.WrapAlg)
	}
	raw, err := AESKeyUnwrapRFC3394(kek, w.Wrapped)
	if err != nil {
		return nil, err
	}
	kp, err := KeypairFromBytes(raw)
	if err != nil {
		return nil, errors.Wrap(err, "keystore")
	}
	if !kp.Pubkey().Equal(w.Pubkey) {
		return nil, errors.New("keystore: pubkey mismatch")
	}
	return kp, nil
}
