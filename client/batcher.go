package client

import (
	"crypto/ed25519"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

// Batch is one compiled, size-bounded transaction. It is immutable: every
// signature attachment returns a new Batch sharing the compiled message.
type Batch struct {
	instrs   []protocol.Instruction
	msg      *protocol.Message
	msgBytes []byte
	sigs     map[protocol.Pubkey][protocol.SignatureBytes]byte
}

func newBatch(payer protocol.Pubkey, blockhash protocol.Hash32, instrs []protocol.Instruction) (*Batch, error) {
	msg, err := protocol.CompileMessage(payer, blockhash, instrs)
	if err != nil {
		return nil, err
	}
	return &Batch{
		instrs:   append([]protocol.Instruction(nil), instrs...),
		msg:      msg,
		msgBytes: msg.Serialize(),
		sigs:     map[protocol.Pubkey][protocol.SignatureBytes]byte{},
	}, nil
}

func (b *Batch) Instructions() []protocol.Instruction {
	return append([]protocol.Instruction(nil), b.instrs...)
}

func (b *Batch) FeePayer() protocol.Pubkey { return b.msg.AccountKeys[0] }

func (b *Batch) Blockhash() protocol.Hash32 { return b.msg.RecentBlockhash }

// MessageBytes are the exact bytes every signer signs.
func (b *Batch) MessageBytes() []byte { return append([]byte(nil), b.msgBytes...) }

// Signers lists required signers in signature-slot order, fee payer first.
func (b *Batch) Signers() []protocol.Pubkey { return b.msg.Signers() }

func (b *Batch) Requires(k protocol.Pubkey) bool {
	for _, s := range b.msg.Signers() {
		if s == k {
			return true
		}
	}
	return false
}

func (b *Batch) Signature(k protocol.Pubkey) ([protocol.SignatureBytes]byte, bool) {
	sig, ok := b.sigs[k]
	return sig, ok
}

func (b *Batch) MissingSigners() []protocol.Pubkey {
	var out []protocol.Pubkey
	for _, s := range b.msg.Signers() {
		if _, ok := b.sigs[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func (b *Batch) Complete() bool { return len(b.MissingSigners()) == 0 }

// Size is the serialized transaction size once fully signed.
func (b *Batch) Size() int { return b.msg.TransactionLen() }

func (b *Batch) with(k protocol.Pubkey, sig [protocol.SignatureBytes]byte) *Batch {
	sigs := make(map[protocol.Pubkey][protocol.SignatureBytes]byte, len(b.sigs)+1)
	for pk, s := range b.sigs {
		sigs[pk] = s
	}
	sigs[k] = sig
	return &Batch{instrs: b.instrs, msg: b.msg, msgBytes: b.msgBytes, sigs: sigs}
}

// WithSignature attaches a detached signature produced elsewhere, such as by
// a co-signing service. The signature must verify over MessageBytes.
func (b *Batch) WithSignature(k protocol.Pubkey, sig []byte) (*Batch, error) {
	if !b.Requires(k) {
		return nil, errf(protocol.ERR_UNEXPECTED_SIGNER, "%s is not a required signer", k)
	}
	if len(sig) != protocol.SignatureBytes {
		return nil, errf(protocol.ERR_SIGNATURE_INVALID, "signature for %s is %d bytes", k, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(k[:]), b.msgBytes, sig) {
		return nil, errf(protocol.ERR_SIGNATURE_INVALID, "signature for %s does not verify", k)
	}
	return b.with(k, [protocol.SignatureBytes]byte(sig)), nil
}

// Serialize produces the wire transaction. Every required signature must be
// present.
func (b *Batch) Serialize() ([]byte, error) {
	signers := b.msg.Signers()
	sigs := make([][protocol.SignatureBytes]byte, len(signers))
	for i, s := range signers {
		sig, ok := b.sigs[s]
		if !ok {
			return nil, errf(protocol.ERR_MISSING_SIGNATURE, "missing signature for %s", s)
		}
		sigs[i] = sig
	}
	return protocol.SerializeTransaction(b.msg, sigs)
}

// AttachLocalSignature signs b with a key this process holds. Signing twice
// with the same key replaces the earlier signature.
func AttachLocalSignature(b *Batch, signer crypto.Signer) (*Batch, error) {
	k := signer.Pubkey()
	if !b.Requires(k) {
		return nil, errf(protocol.ERR_UNEXPECTED_SIGNER, "%s is not a required signer", k)
	}
	sig, err := signer.Sign(b.msgBytes)
	if err != nil {
		return nil, err
	}
	return b.with(k, sig), nil
}

// Batcher packs instructions into transactions under one recent blockhash.
type Batcher struct {
	// DefaultPayer pays for batches whose instructions declare no payer.
	DefaultPayer protocol.Pubkey
	Blockhash    protocol.Hash32
	// PacketLimit bounds the signed transaction size.
	PacketLimit int
}

func NewBatcher(defaultPayer protocol.Pubkey, blockhash protocol.Hash32) *Batcher {
	return &Batcher{DefaultPayer: defaultPayer, Blockhash: blockhash, PacketLimit: protocol.PacketDataSize}
}

func declaredPayer(instrs []protocol.Instruction) (protocol.Pubkey, error) {
	var payer protocol.Pubkey
	for _, ix := range instrs {
		if ix.FeePayer.IsZero() {
			continue
		}
		if payer.IsZero() {
			payer = ix.FeePayer
			continue
		}
		if ix.FeePayer != payer {
			return protocol.Pubkey{}, errf(protocol.ERR_CONFLICTING_PAYER, "fee payers %s and %s in one batch", payer, ix.FeePayer)
		}
	}
	return payer, nil
}

func (bt *Batcher) compile(instrs []protocol.Instruction) (*Batch, error) {
	payer, err := declaredPayer(instrs)
	if err != nil {
		return nil, err
	}
	if payer.IsZero() {
		payer = bt.DefaultPayer
	}
	if payer.IsZero() {
		return nil, errf(protocol.ERR_MISSING_FEE_PAYER, "no fee payer for batch")
	}
	return newBatch(payer, bt.Blockhash, instrs)
}

// Batch splits instrs greedily and in order. A batch closes when it holds
// maxPerBatch instructions or when the next instruction would push the
// signed transaction past the packet limit.
func (bt *Batcher) Batch(instrs []protocol.Instruction, maxPerBatch int) ([]*Batch, error) {
	if maxPerBatch <= 0 {
		return nil, stageErr(StageBatch, errf(protocol.ERR_PARSE, "max instructions per batch must be > 0"))
	}
	limit := bt.PacketLimit
	if limit <= 0 {
		limit = protocol.PacketDataSize
	}
	var (
		out     []*Batch
		cur     []protocol.Instruction
		current *Batch
	)
	for i, ix := range instrs {
		if len(cur) < maxPerBatch {
			next, err := bt.compile(append(cur[:len(cur):len(cur)], ix))
			if err != nil {
				return nil, stageErr(StageBatch, err)
			}
			if next.Size() <= limit {
				cur = append(cur, ix)
				current = next
				continue
			}
		}
		if current != nil {
			out = append(out, current)
		}
		alone, err := bt.compile([]protocol.Instruction{ix})
		if err != nil {
			return nil, stageErr(StageBatch, err)
		}
		if alone.Size() > limit {
			return nil, stageErr(StageBatch, errf(protocol.ERR_INSTRUCTION_TOO_BIG,
				"instruction %d needs %d bytes, limit %d", i, alone.Size(), limit))
		}
		cur = []protocol.Instruction{ix}
		current = alone
	}
	if current != nil {
		out = append(out, current)
	}
	return out, nil
}
