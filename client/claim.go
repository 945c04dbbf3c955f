package client

import (
	"context"

	"github.com/pkg/errors"

	"redeem.dev/kit/protocol"
)

// CoSignMode is how a distribution's temporal check is satisfied.
type CoSignMode int

const (
	// CoSignDisabled: the distribution's temporal key is the default key, so
	// the program skips the check and the wallet stands in.
	CoSignDisabled CoSignMode = iota
	// CoSignSelf: the claimant identity is the connected wallet, which
	// signs as its own temporal key.
	CoSignSelf
	// CoSignRequired: the distribution's temporal key must co-sign, after
	// one-time-code verification.
	CoSignRequired
)

func (m CoSignMode) String() string {
	switch m {
	case CoSignDisabled:
		return "disabled"
	case CoSignSelf:
		return "self"
	case CoSignRequired:
		return "required"
	default:
		return "unknown"
	}
}

// ResolveClaimant applies the wallet-or-PDA rule. Wallet-gated handles must
// name the connected wallet. Pin-gated identities are derived from
// (base, handle, pin) and need not match the wallet; the returned seeds
// are what the co-signing service re-derives the identity from.
func ResolveClaimant(gumdrop, wallet protocol.Pubkey, q *ClaimQuery, base protocol.Pubkey) (protocol.Pubkey, [][]byte, error) {
	if !q.PinGated {
		k, err := protocol.ParsePubkey(q.Handle)
		if err != nil {
			return protocol.Pubkey{}, nil, errf(protocol.ERR_HANDLE_MISMATCH, "invalid claimant wallet handle %q", q.Handle)
		}
		if k != wallet {
			return protocol.Pubkey{}, nil, errf(protocol.ERR_HANDLE_MISMATCH, "claimant wallet handle %s does not match connected wallet %s", k, wallet)
		}
		return k, nil, nil
	}
	return protocol.ClaimantAddress(gumdrop, base, q.Handle, q.Pin)
}

// EditionClaim is the instruction set that prints one edition to the
// wallet. Setup is empty when the new mint already exists on the ledger.
type EditionClaim struct {
	Claimant   protocol.Pubkey
	Seeds      [][]byte
	Leaf       []byte
	Mode       CoSignMode
	Temporal   protocol.Pubkey
	ClaimCount protocol.Pubkey
	NewMint    protocol.Pubkey
	Setup      []protocol.Instruction
	Claim      []protocol.Instruction
}

// ClaimBuilder assembles gumdrop edition claims.
type ClaimBuilder struct {
	programs Programs
}

func NewClaimBuilder(p Programs) *ClaimBuilder {
	return &ClaimBuilder{programs: p}
}

// BuildEditionClaim checks the leaf against the distributor root and the
// claim marker, then builds setup (mint creation) and claim instructions.
func (c *ClaimBuilder) BuildEditionClaim(ctx context.Context, q *ClaimQuery, wallet, newMint protocol.Pubkey, ledger LedgerSnapshotReader, rent RentOracle) (*EditionClaim, error) {
	if q.Type != ClaimEdition {
		return nil, errf(protocol.ERR_UNSUPPORTED_CLAIM, "unsupported claim type %s", q.Type)
	}
	claimant, seeds, err := ResolveClaimant(c.programs.Gumdrop, wallet, q, q.Master)
	if err != nil {
		return nil, err
	}
	claimCount, claimBump, err := protocol.ClaimCountAddress(c.programs.Gumdrop, q.Distributor, q.Index)
	if err != nil {
		return nil, err
	}

	snapshot, err := ledger.GetAccounts(ctx, []protocol.Pubkey{q.Distributor, claimCount, newMint})
	if err != nil {
		return nil, errors.Wrap(err, "read distributor snapshot")
	}
	raw, ok := snapshot[q.Distributor]
	if !ok {
		return nil, errf(protocol.ERR_ACCOUNT_MISSING, "distributor %s not found", q.Distributor)
	}
	dist, err := protocol.DecodeDistributor(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode distributor")
	}

	leaf := protocol.EncodeClaimLeaf(protocol.ClaimLeaf{
		Index:   q.Index,
		Secret:  claimant,
		Mint:    q.Master,
		Amount:  q.Amount,
		Edition: q.Edition,
	})
	if !protocol.VerifyMerkleProof(leaf, q.Proof, dist.Root) {
		return nil, errf(protocol.ERR_PROOF_MISMATCH, "gumdrop merkle proof does not match")
	}
	if _, claimed := snapshot[claimCount]; claimed {
		return nil, errf(protocol.ERR_ALREADY_CLAIMED, "edition %d at index %d was already claimed", q.Edition, q.Index)
	}

	out := &EditionClaim{
		Claimant:   claimant,
		Seeds:      seeds,
		Leaf:       leaf,
		ClaimCount: claimCount,
		NewMint:    newMint,
	}
	switch {
	case dist.Temporal.IsZero():
		out.Mode, out.Temporal = CoSignDisabled, wallet
	case claimant == wallet:
		out.Mode, out.Temporal = CoSignSelf, wallet
	default:
		if dist.Temporal != c.programs.Temporal {
			return nil, errf(protocol.ERR_UNEXPECTED_SIGNER, "distributor temporal key %s is not the configured co-signer", dist.Temporal)
		}
		out.Mode, out.Temporal = CoSignRequired, dist.Temporal
	}

	if _, exists := snapshot[newMint]; !exists {
		lamports, err := rent.MinimumBalanceForRentExemption(ctx, protocol.MintAccountBytes)
		if err != nil {
			return nil, errors.Wrap(err, "mint rent")
		}
		if out.Setup, err = protocol.NewMintInstructions(wallet, newMint, lamports); err != nil {
			return nil, err
		}
	}

	accts, err := editionPrintAccounts(wallet, q.Master, newMint, q.Edition)
	if err != nil {
		return nil, err
	}
	if accts.MasterTokenAccount, err = protocol.AssociatedTokenAddress(q.Distributor, q.Master); err != nil {
		return nil, err
	}
	out.Claim = []protocol.Instruction{protocol.ClaimEdition(c.programs.Gumdrop, protocol.ClaimEditionArgs{
		ClaimBump: claimBump,
		Index:     q.Index,
		Amount:    q.Amount,
		Edition:   q.Edition,
		Secret:    claimant,
		Proof:     q.Proof,
	}, protocol.ClaimEditionAccounts{
		Distributor: q.Distributor,
		ClaimCount:  claimCount,
		Temporal:    out.Temporal,
		Payer:       wallet,
		Print:       accts,
	})}
	return out, nil
}

// editionPrintAccounts fills everything but the master token account, which
// depends on who holds the master edition.
func editionPrintAccounts(wallet, master, newMint protocol.Pubkey, edition uint64) (protocol.EditionPrintAccounts, error) {
	var p protocol.EditionPrintAccounts
	var err error
	if p.NewMetadata, err = protocol.MetadataAddress(newMint); err != nil {
		return p, err
	}
	if p.NewEdition, err = protocol.EditionAddress(newMint); err != nil {
		return p, err
	}
	if p.MasterEdition, err = protocol.EditionAddress(master); err != nil {
		return p, err
	}
	if p.EditionMarker, err = protocol.EditionMarkerAddress(master, edition); err != nil {
		return p, err
	}
	if p.MasterMetadata, err = protocol.MetadataAddress(master); err != nil {
		return p, err
	}
	p.NewMint = newMint
	p.NewMintAuthority = wallet
	p.NewUpdateAuthority = wallet
	p.MasterMint = master
	return p, nil
}
