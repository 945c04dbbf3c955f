package protocol

import "fmt"

const (
	TokenAccountBytes = 165
	MintAccountBytes  = 82

	masterEditionV2Key = 6
)

// TokenAccount is the prefix of an SPL token account this client needs.
type TokenAccount struct {
	Mint   Pubkey
	Owner  Pubkey
	Amount uint64
}

func DecodeTokenAccount(b []byte) (TokenAccount, error) {
	if len(b) < 72 {
		return TokenAccount{}, perr(ERR_PARSE, fmt.Sprintf("token account: %d bytes", len(b)))
	}
	r := &borshReader{b: b}
	acct := TokenAccount{
		Mint:   r.pubkey("mint"),
		Owner:  r.pubkey("owner"),
		Amount: r.u64("amount"),
	}
	return acct, r.err
}

type MasterEdition struct {
	Supply    uint64
	MaxSupply uint64
	HasMax    bool
}

func DecodeMasterEdition(b []byte) (MasterEdition, error) {
	r := &borshReader{b: b}
	if key := r.u8("key"); r.err == nil && key != masterEditionV2Key {
		return MasterEdition{}, perr(ERR_PARSE, fmt.Sprintf("master edition: unexpected key %d", key))
	}
	var me MasterEdition
	me.Supply = r.u64("supply")
	if r.u8("max_supply tag") == 1 {
		me.HasMax = true
		me.MaxSupply = r.u64("max_supply")
	}
	return me, r.err
}

// NextEdition returns the edition number a new print would take.
func (me MasterEdition) NextEdition() (uint64, error) {
	next := me.Supply + 1
	if me.HasMax && next > me.MaxSupply {
		return 0, perr(ERR_EDITIONS_EXHAUSTED, fmt.Sprintf("edition %d exceeds max supply %d", next, me.MaxSupply))
	}
	return next, nil
}

// Remaining is the number of editions left, or false when supply is unbounded.
func (me MasterEdition) Remaining() (uint64, bool) {
	if !me.HasMax {
		return 0, false
	}
	if me.Supply >= me.MaxSupply {
		return 0, true
	}
	return me.MaxSupply - me.Supply, true
}

// Distributor is the on-chain record of one gumdrop distribution.
type Distributor struct {
	Base     Pubkey
	Bump     uint8
	Root     [32]byte
	Temporal Pubkey
}

// Layout after the 8-byte account discriminator:
// base 32 | bump u8 | root 32 | temporal 32
func DecodeDistributor(b []byte) (Distributor, error) {
	r := &borshReader{b: b}
	r.take(8, "discriminator")
	var d Distributor
	d.Base = r.pubkey("base")
	d.Bump = r.u8("bump")
	d.Root = [32]byte(r.pubkey("root"))
	d.Temporal = r.pubkey("temporal")
	return d, r.err
}

func EncodeDistributor(d Distributor) []byte {
	disc := AnchorDiscriminator("account", "MerkleDistributor")
	out := make([]byte, 0, 8+32+1+32+32)
	out = append(out, disc[:]...)
	out = append(out, d.Base[:]...)
	out = append(out, d.Bump)
	out = append(out, d.Root[:]...)
	return append(out, d.Temporal[:]...)
}

func EncodeTokenAccount(a TokenAccount) []byte {
	out := make([]byte, TokenAccountBytes)
	copy(out[0:32], a.Mint[:])
	copy(out[32:64], a.Owner[:])
	w := &borshWriter{}
	copy(out[64:72], w.u64(a.Amount).bytes())
	out[108] = 1 // state: initialized
	return out
}

func EncodeMasterEdition(me MasterEdition) []byte {
	w := &borshWriter{}
	w.u8(masterEditionV2Key).u64(me.Supply)
	if me.HasMax {
		w.u8(1).u64(me.MaxSupply)
	} else {
		w.u8(0)
	}
	return w.bytes()
}
