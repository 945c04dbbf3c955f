package protocol

import (
	"fmt"
)

const (
	// PacketDataSize is the largest serialized transaction one network
	// message can carry.
	PacketDataSize = 1232
	SignatureBytes = 64
	maxAccountKeys = 256
)

type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is the signed portion of a transaction. AccountKeys are ordered
// fee payer first, then writable signers, readonly signers, writable
// non-signers and readonly non-signers, each group in first-seen order.
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash Hash32
	Instructions    []CompiledInstruction
}

type keyFlags struct {
	signer   bool
	writable bool
	order    int
}

func CompileMessage(payer Pubkey, blockhash Hash32, instrs []Instruction) (*Message, error) {
	if payer.IsZero() {
		return nil, perr(ERR_MISSING_FEE_PAYER, "message: fee payer required")
	}
	flags := map[Pubkey]*keyFlags{payer: {signer: true, writable: true, order: 0}}
	next := 1
	touch := func(k Pubkey, signer, writable bool) {
		f, ok := flags[k]
		if !ok {
			f = &keyFlags{order: next}
			next++
			flags[k] = f
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range instrs {
		for _, m := range ix.Accounts {
			touch(m.Pubkey, m.IsSigner, m.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}
	if len(flags) > maxAccountKeys {
		return nil, perr(ERR_INSTRUCTION_TOO_BIG, fmt.Sprintf("message: %d account keys exceeds %d", len(flags), maxAccountKeys))
	}

	ordered := make([]Pubkey, len(flags))
	for k, f := range flags {
		ordered[f.order] = k
	}
	keys := make([]Pubkey, 0, len(ordered))
	keys = append(keys, payer)
	var hdr MessageHeader
	for _, group := range []struct{ signer, writable bool }{
		{true, true}, {true, false}, {false, true}, {false, false},
	} {
		for _, k := range ordered[1:] {
			f := flags[k]
			if f.signer != group.signer || f.writable != group.writable {
				continue
			}
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		f := flags[k]
		switch {
		case f.signer && !f.writable:
			hdr.NumRequiredSignatures++
			hdr.NumReadonlySignedAccounts++
		case f.signer:
			hdr.NumRequiredSignatures++
		case !f.writable:
			hdr.NumReadonlyUnsignedAccounts++
		}
	}

	index := make(map[Pubkey]uint8, len(keys))
	for i, k := range keys {
		index[k] = uint8(i) // #nosec G115 -- len(keys) <= 256 checked above.
	}
	compiled := make([]CompiledInstruction, 0, len(instrs))
	for _, ix := range instrs {
		ci := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           append([]byte(nil), ix.Data...),
		}
		for j, m := range ix.Accounts {
			ci.Accounts[j] = index[m.Pubkey]
		}
		compiled = append(compiled, ci)
	}
	return &Message{
		Header:          hdr,
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    compiled,
	}, nil
}

// Signers returns the keys whose signatures the message requires, in
// signature-slot order.
func (m *Message) Signers() []Pubkey {
	return append([]Pubkey(nil), m.AccountKeys[:m.Header.NumRequiredSignatures]...)
}

// Serialize encodes the message in legacy wire format.
func (m *Message) Serialize() []byte {
	out := make([]byte, 0, m.SerializedLen())
	out = append(out, m.Header.NumRequiredSignatures, m.Header.NumReadonlySignedAccounts, m.Header.NumReadonlyUnsignedAccounts)
	out = AppendCompactU16(out, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		out = append(out, k[:]...)
	}
	out = append(out, m.RecentBlockhash[:]...)
	out = AppendCompactU16(out, len(m.Instructions))
	for _, ci := range m.Instructions {
		out = append(out, ci.ProgramIDIndex)
		out = AppendCompactU16(out, len(ci.Accounts))
		out = append(out, ci.Accounts...)
		out = AppendCompactU16(out, len(ci.Data))
		out = append(out, ci.Data...)
	}
	return out
}

func (m *Message) SerializedLen() int {
	n := 3 + CompactU16Len(len(m.AccountKeys)) + 32*len(m.AccountKeys) + 32
	n += CompactU16Len(len(m.Instructions))
	for _, ci := range m.Instructions {
		n += 1 + CompactU16Len(len(ci.Accounts)) + len(ci.Accounts)
		n += CompactU16Len(len(ci.Data)) + len(ci.Data)
	}
	return n
}

// TransactionLen is the size of the message once every signature slot is
// filled.
func (m *Message) TransactionLen() int {
	sigs := int(m.Header.NumRequiredSignatures)
	return CompactU16Len(sigs) + sigs*SignatureBytes + m.SerializedLen()
}

// SerializeTransaction prefixes the message with its signatures, which must
// be in signature-slot order.
func SerializeTransaction(m *Message, sigs [][SignatureBytes]byte) ([]byte, error) {
	if len(sigs) != int(m.Header.NumRequiredSignatures) {
		return nil, perr(ERR_MISSING_SIGNATURE, fmt.Sprintf("transaction: %d signatures, want %d", len(sigs), m.Header.NumRequiredSignatures))
	}
	out := make([]byte, 0, m.TransactionLen())
	out = AppendCompactU16(out, len(sigs))
	for _, s := range sigs {
		out = append(out, s[:]...)
	}
	return append(out, m.Serialize()...), nil
}
