package client

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeem.dev/kit/protocol"
)

var testBlockhash = protocol.Hash32(testKey("blockhash"))

func memo(payer protocol.Pubkey, tag byte, size int, signers ...protocol.Pubkey) protocol.Instruction {
	metas := []protocol.AccountMeta{protocol.Writable(payer, true)}
	for _, s := range signers {
		metas = append(metas, protocol.Readonly(s, true))
	}
	return protocol.Instruction{
		ProgramID: testKey("memo"),
		Accounts:  metas,
		Data:      bytes.Repeat([]byte{tag}, size),
		FeePayer:  payer,
	}
}

func TestBatchNeverReorders(t *testing.T) {
	payer := testKey("payer")
	var instrs []protocol.Instruction
	for i := 0; i < 5; i++ {
		instrs = append(instrs, memo(payer, byte(i), 8))
	}
	batches, err := NewBatcher(payer, testBlockhash).Batch(instrs, 2)
	require.NoError(t, err)
	require.Len(t, batches, 3)

	var got []byte
	for _, b := range batches {
		assert.Equal(t, payer, b.FeePayer())
		assert.Equal(t, testBlockhash, b.Blockhash())
		for _, ix := range b.Instructions() {
			got = append(got, ix.Data[0])
		}
	}
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, got)
	assert.Len(t, batches[2].Instructions(), 1)
}

func TestBatchPacketLimit(t *testing.T) {
	payer := testKey("payer")
	instrs := []protocol.Instruction{memo(payer, 1, 500), memo(payer, 2, 500), memo(payer, 3, 500)}
	batches, err := NewBatcher(payer, testBlockhash).Batch(instrs, 10)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Instructions(), 2)
	assert.Len(t, batches[1].Instructions(), 1)
	for _, b := range batches {
		assert.LessOrEqual(t, b.Size(), protocol.PacketDataSize)
	}
}

func TestBatchInstructionTooLarge(t *testing.T) {
	payer := testKey("payer")
	_, err := NewBatcher(payer, testBlockhash).Batch([]protocol.Instruction{memo(payer, 1, 1300)}, 1)
	requireCode(t, err, protocol.ERR_INSTRUCTION_TOO_BIG)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageBatch, se.Stage)
}

func TestBatchFeePayers(t *testing.T) {
	a, b := testKey("a"), testKey("b")
	_, err := NewBatcher(protocol.Pubkey{}, testBlockhash).Batch([]protocol.Instruction{memo(a, 1, 4), memo(b, 2, 4)}, 2)
	requireCode(t, err, protocol.ERR_CONFLICTING_PAYER)

	undeclared := memo(a, 1, 4)
	undeclared.FeePayer = protocol.Pubkey{}
	_, err = NewBatcher(protocol.Pubkey{}, testBlockhash).Batch([]protocol.Instruction{undeclared}, 1)
	requireCode(t, err, protocol.ERR_MISSING_FEE_PAYER)

	batches, err := NewBatcher(b, testBlockhash).Batch([]protocol.Instruction{undeclared}, 1)
	require.NoError(t, err)
	assert.Equal(t, b, batches[0].FeePayer())
	assert.Equal(t, []protocol.Pubkey{b, a}, batches[0].Signers())

	_, err = NewBatcher(b, testBlockhash).Batch(nil, 0)
	assert.Error(t, err)
}

func TestBatchSignatures(t *testing.T) {
	payer := testKeypair(t, "payer")
	cosigner := testKeypair(t, "cosigner")
	stranger := testKeypair(t, "stranger")

	batches, err := NewBatcher(payer.Pubkey(), testBlockhash).Batch([]protocol.Instruction{memo(payer.Pubkey(), 1, 16, cosigner.Pubkey())}, 1)
	require.NoError(t, err)
	b := batches[0]
	assert.Equal(t, []protocol.Pubkey{payer.Pubkey(), cosigner.Pubkey()}, b.MissingSigners())
	_, err = b.Serialize()
	requireCode(t, err, protocol.ERR_MISSING_SIGNATURE)

	_, err = AttachLocalSignature(b, stranger)
	requireCode(t, err, protocol.ERR_UNEXPECTED_SIGNER)

	signed, err := AttachLocalSignature(b, payer)
	require.NoError(t, err)
	again, err := AttachLocalSignature(signed, payer)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Pubkey{cosigner.Pubkey()}, again.MissingSigners())
	assert.Len(t, b.MissingSigners(), 2, "original batch is unchanged")

	wrong, err := stranger.Sign(b.MessageBytes())
	require.NoError(t, err)
	_, err = again.WithSignature(cosigner.Pubkey(), wrong[:])
	requireCode(t, err, protocol.ERR_SIGNATURE_INVALID)
	_, err = again.WithSignature(cosigner.Pubkey(), wrong[:10])
	requireCode(t, err, protocol.ERR_SIGNATURE_INVALID)

	detached, err := cosigner.Sign(b.MessageBytes())
	require.NoError(t, err)
	_, err = again.WithSignature(stranger.Pubkey(), detached[:])
	requireCode(t, err, protocol.ERR_UNEXPECTED_SIGNER)
	full, err := again.WithSignature(cosigner.Pubkey(), detached[:])
	require.NoError(t, err)
	assert.True(t, full.Complete())

	raw, err := full.Serialize()
	require.NoError(t, err)
	assert.Len(t, raw, full.Size())
	assert.Equal(t, byte(2), raw[0])
	paySig, _ := full.Signature(payer.Pubkey())
	assert.Equal(t, paySig[:], raw[1:65])
	assert.Equal(t, b.MessageBytes(), raw[1+2*protocol.SignatureBytes:])
}

func TestLocalWalletSignsRequiredBatches(t *testing.T) {
	wallet := testKeypair(t, "wallet")
	other := testKeypair(t, "other")
	bt := NewBatcher(wallet.Pubkey(), testBlockhash)
	mine, err := bt.Batch([]protocol.Instruction{memo(wallet.Pubkey(), 1, 4)}, 1)
	require.NoError(t, err)
	theirs, err := bt.Batch([]protocol.Instruction{memo(other.Pubkey(), 2, 4)}, 1)
	require.NoError(t, err)

	out, err := NewLocalWallet(wallet).SignBatches(t.Context(), []*Batch{mine[0], theirs[0]})
	require.NoError(t, err)
	assert.True(t, out[0].Complete())
	assert.Same(t, theirs[0], out[1])
}
