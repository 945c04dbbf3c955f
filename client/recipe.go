package client

import (
	"bytes"
	"context"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

// MakeDishPlan is a dish plan that finishes with printing the recipe yield.
// Mint creates the yield mint in the wallet and runs make_dish.
type MakeDishPlan struct {
	*Plan
	MasterMint protocol.Pubkey
	NewMint    protocol.Pubkey
	Edition    uint64
	Mint       []protocol.Instruction
}

// PlanMakeDish plans desired and then the yield print. Every group must be
// filled once desired is applied, and the yield master edition must have
// supply left.
func (r *Reconciler) PlanMakeDish(ctx context.Context, desired []IngredientChangeRequest, session Session, ledger LedgerSnapshotReader, groups []IngredientGroup, masterMint, newMint protocol.Pubkey, rent RentOracle) (*MakeDishPlan, error) {
	plan, err := r.Plan(ctx, desired, session, ledger, groups)
	if err != nil {
		return nil, err
	}
	out, err := r.planMakeDish(ctx, plan, session, ledger, masterMint, newMint, rent)
	return out, stageErr(StagePlan, err)
}

func (r *Reconciler) planMakeDish(ctx context.Context, plan *Plan, session Session, ledger LedgerSnapshotReader, masterMint, newMint protocol.Pubkey, rent RentOracle) (*MakeDishPlan, error) {
	if !plan.Complete() {
		missing := 0
		for _, f := range plan.Filled {
			if !f {
				missing++
			}
		}
		return nil, errf(protocol.ERR_INVALID_STATE, "dish is missing %d of %d ingredients", missing, len(plan.Filled))
	}

	masterEdition, err := protocol.EditionAddress(masterMint)
	if err != nil {
		return nil, err
	}
	snapshot, err := ledger.GetAccounts(ctx, []protocol.Pubkey{masterEdition})
	if err != nil {
		return nil, errors.Wrap(err, "read master edition")
	}
	raw, ok := snapshot[masterEdition]
	if !ok {
		return nil, errf(protocol.ERR_ACCOUNT_MISSING, "master edition for %s not found", masterMint)
	}
	me, err := protocol.DecodeMasterEdition(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode master edition")
	}
	edition, err := me.NextEdition()
	if err != nil {
		return nil, err
	}

	lamports, err := rent.MinimumBalanceForRentExemption(ctx, protocol.MintAccountBytes)
	if err != nil {
		return nil, errors.Wrap(err, "mint rent")
	}
	mintIxs, err := protocol.NewMintInstructions(session.Wallet, newMint, lamports)
	if err != nil {
		return nil, err
	}

	owner, ownerBump, err := protocol.RecipeMintOwnerAddress(r.fireball, session.Recipe)
	if err != nil {
		return nil, err
	}
	accts, err := editionPrintAccounts(session.Wallet, masterMint, newMint, edition)
	if err != nil {
		return nil, err
	}
	if accts.MasterTokenAccount, err = protocol.AssociatedTokenAddress(owner, masterMint); err != nil {
		return nil, err
	}
	mintIxs = append(mintIxs, protocol.MakeDish(r.fireball, ownerBump, edition, protocol.MakeDishAccounts{
		Recipe:           session.Recipe,
		Dish:             session.Dish,
		Payer:            session.Wallet,
		MasterTokenOwner: owner,
		Print:            accts,
	}))

	r.log.Debug("planned make dish",
		zap.Stringer("dish", session.Dish),
		zap.Stringer("master", masterMint),
		zap.Uint64("edition", edition))
	return &MakeDishPlan{
		Plan:       plan,
		MasterMint: masterMint,
		NewMint:    newMint,
		Edition:    edition,
		Mint:       mintIxs,
	}, nil
}

// BatchMakeDish puts each dish instruction in its own batch, then the mint
// and make_dish instructions together, signed by mint.
func BatchMakeDish(bt *Batcher, p *MakeDishPlan, mint crypto.Signer) ([]*Batch, error) {
	if mint.Pubkey() != p.NewMint {
		return nil, stageErr(StageBatch, errf(protocol.ERR_UNEXPECTED_SIGNER, "mint signer %s does not match planned mint %s", mint.Pubkey(), p.NewMint))
	}
	var batches []*Batch
	if len(p.Instructions) > 0 {
		changes, err := bt.Batch(p.Instructions, 1)
		if err != nil {
			return nil, err
		}
		batches = append(batches, changes...)
	}
	tail, err := bt.Batch(p.Mint, len(p.Mint))
	if err != nil {
		return nil, err
	}
	for i, b := range tail {
		if !b.Requires(p.NewMint) {
			continue
		}
		if tail[i], err = AttachLocalSignature(b, mint); err != nil {
			return nil, stageErr(StageBatch, err)
		}
	}
	return append(batches, tail...), nil
}

// RecipeYield is one master mint held by a recipe's mint owner. Remaining
// and MaxSupply are meaningful only when Bounded.
type RecipeYield struct {
	MasterMint protocol.Pubkey
	Supply     uint64
	Remaining  uint64
	MaxSupply  uint64
	Bounded    bool
}

// FetchRecipeYields lists the master mints the recipe can print from, in
// mint order. Held mints without a master edition are logged and skipped.
func (r *Reconciler) FetchRecipeYields(ctx context.Context, session Session, ledger LedgerSnapshotReader, lister TokenAccountLister) ([]RecipeYield, error) {
	owner, _, err := protocol.RecipeMintOwnerAddress(r.fireball, session.Recipe)
	if err != nil {
		return nil, err
	}
	held, err := lister.TokenAccountsByOwner(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "list recipe yields")
	}
	var masters []protocol.Pubkey
	for _, acct := range held {
		if acct.Amount > 0 && !slices.Contains(masters, acct.Mint) {
			masters = append(masters, acct.Mint)
		}
	}
	slices.SortFunc(masters, func(a, b protocol.Pubkey) int { return bytes.Compare(a[:], b[:]) })
	if len(masters) == 0 {
		return nil, nil
	}

	editions := make([]protocol.Pubkey, len(masters))
	for i, m := range masters {
		if editions[i], err = protocol.EditionAddress(m); err != nil {
			return nil, err
		}
	}
	snapshot, err := ledger.GetAccounts(ctx, editions)
	if err != nil {
		return nil, errors.Wrap(err, "read master editions")
	}
	out := make([]RecipeYield, 0, len(masters))
	for i, m := range masters {
		raw, ok := snapshot[editions[i]]
		if !ok {
			r.log.Warn("recipe yield has no master edition", zap.Stringer("mint", m))
			continue
		}
		me, err := protocol.DecodeMasterEdition(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode master edition of %s", m)
		}
		y := RecipeYield{MasterMint: m, Supply: me.Supply, MaxSupply: me.MaxSupply}
		y.Remaining, y.Bounded = me.Remaining()
		out = append(out, y)
	}
	return out, nil
}
