package client

import (
	"context"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

// LocalWallet signs batches with a key held by this process.
type LocalWallet struct {
	signer crypto.Signer
}

func NewLocalWallet(s crypto.Signer) *LocalWallet { return &LocalWallet{signer: s} }

func (w *LocalWallet) Pubkey() protocol.Pubkey { return w.signer.Pubkey() }

// SignBatches signs every batch that requires the wallet and passes the
// others through unchanged.
func (w *LocalWallet) SignBatches(ctx context.Context, batches []*Batch) ([]*Batch, error) {
	out := make([]*Batch, len(batches))
	for i, b := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !b.Requires(w.signer.Pubkey()) {
			out[i] = b
			continue
		}
		signed, err := AttachLocalSignature(b, w.signer)
		if err != nil {
			return nil, err
		}
		out[i] = signed
	}
	return out, nil
}
