package client

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeem.dev/kit/protocol"
)

func (f *dishFixture) masterEdition(t *testing.T, master protocol.Pubkey, me protocol.MasterEdition) {
	t.Helper()
	addr, err := protocol.EditionAddress(master)
	require.NoError(t, err)
	f.ledger.set(addr, protocol.EncodeMasterEdition(me))
}

func TestPlanMakeDish(t *testing.T) {
	hat, shoe := testGroup(t, "hat", 4), testGroup(t, "shoe", 4)
	f := newDishFixture(t, true, hat, shoe)
	f.escrow(t, 0, hat.Members[1])
	master := testKey("yield-master")
	f.masterEdition(t, master, protocol.MasterEdition{Supply: 4, MaxSupply: 10, HasMax: true})
	mint := testKeypair(t, "yield-mint")

	p, err := f.r.PlanMakeDish(context.Background(),
		[]IngredientChangeRequest{{GroupID: "shoe", TargetAsset: shoe.Members[2], Op: OpAdd}},
		f.session, f.ledger, f.groups, master, mint.Pubkey(), fixedRent(1461600))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), p.Edition)
	require.Len(t, p.Instructions, 1)
	require.Len(t, p.Mint, 5)
	assert.Equal(t, methodPrefix("make_dish"), p.Mint[4].Data[:8])

	batches, err := BatchMakeDish(NewBatcher(f.session.Wallet, testBlockhash), p, mint)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Instructions(), 1)
	last := batches[1]
	assert.True(t, last.Requires(mint.Pubkey()))
	_, signed := last.Signature(mint.Pubkey())
	assert.True(t, signed)
	assert.Equal(t, []protocol.Pubkey{f.session.Wallet}, last.MissingSigners())

	_, err = BatchMakeDish(NewBatcher(f.session.Wallet, testBlockhash), p, testKeypair(t, "other-mint"))
	requireCode(t, err, protocol.ERR_UNEXPECTED_SIGNER)
}

func TestPlanMakeDishRequiresAllIngredients(t *testing.T) {
	hat, shoe := testGroup(t, "hat", 4), testGroup(t, "shoe", 4)
	f := newDishFixture(t, true, hat, shoe)
	f.escrow(t, 0, hat.Members[1])
	master := testKey("yield-master")
	f.masterEdition(t, master, protocol.MasterEdition{Supply: 0})

	_, err := f.r.PlanMakeDish(context.Background(), nil, f.session, f.ledger, f.groups, master, testKey("mint"), fixedRent(1))
	requireCode(t, err, protocol.ERR_INVALID_STATE)
}

func TestPlanMakeDishEditionChecks(t *testing.T) {
	hat := testGroup(t, "hat", 2)
	f := newDishFixture(t, true, hat)
	f.escrow(t, 0, hat.Members[0])
	master := testKey("yield-master")

	_, err := f.r.PlanMakeDish(context.Background(), nil, f.session, f.ledger, f.groups, master, testKey("mint"), fixedRent(1))
	requireCode(t, err, protocol.ERR_ACCOUNT_MISSING)

	f.masterEdition(t, master, protocol.MasterEdition{Supply: 3, MaxSupply: 3, HasMax: true})
	_, err = f.r.PlanMakeDish(context.Background(), nil, f.session, f.ledger, f.groups, master, testKey("mint"), fixedRent(1))
	requireCode(t, err, protocol.ERR_EDITIONS_EXHAUSTED)
}

// ownerLister serves token accounts only for one owner.
type ownerLister struct {
	owner    protocol.Pubkey
	accounts map[protocol.Pubkey]protocol.TokenAccount
}

func (l ownerLister) TokenAccountsByOwner(_ context.Context, owner protocol.Pubkey) (map[protocol.Pubkey]protocol.TokenAccount, error) {
	if owner != l.owner {
		return nil, nil
	}
	return l.accounts, nil
}

func TestFetchRecipeYields(t *testing.T) {
	f := newDishFixture(t, true)
	owner, _, err := protocol.RecipeMintOwnerAddress(testFireball, f.session.Recipe)
	require.NoError(t, err)
	bounded, open, spent, noEdition := testKey("yield-bounded"), testKey("yield-open"), testKey("yield-spent"), testKey("yield-no-edition")
	f.masterEdition(t, bounded, protocol.MasterEdition{Supply: 4, MaxSupply: 10, HasMax: true})
	f.masterEdition(t, open, protocol.MasterEdition{Supply: 7})
	f.masterEdition(t, spent, protocol.MasterEdition{Supply: 5, MaxSupply: 5, HasMax: true})
	lister := ownerLister{owner: owner, accounts: map[protocol.Pubkey]protocol.TokenAccount{
		testKey("acct-1"): {Mint: bounded, Owner: owner, Amount: 1},
		testKey("acct-2"): {Mint: open, Owner: owner, Amount: 1},
		testKey("acct-3"): {Mint: spent, Owner: owner, Amount: 1},
		testKey("acct-4"): {Mint: noEdition, Owner: owner, Amount: 1},
		testKey("acct-5"): {Mint: testKey("yield-empty"), Owner: owner, Amount: 0},
	}}

	yields, err := f.r.FetchRecipeYields(context.Background(), f.session, f.ledger, lister)
	require.NoError(t, err)
	require.Len(t, yields, 3)
	for i := 1; i < len(yields); i++ {
		assert.Negative(t, bytes.Compare(yields[i-1].MasterMint[:], yields[i].MasterMint[:]), "sorted by mint")
	}
	byMint := map[protocol.Pubkey]RecipeYield{}
	for _, y := range yields {
		byMint[y.MasterMint] = y
	}
	assert.Equal(t, RecipeYield{MasterMint: bounded, Supply: 4, Remaining: 6, MaxSupply: 10, Bounded: true}, byMint[bounded])
	assert.Equal(t, RecipeYield{MasterMint: open, Supply: 7}, byMint[open])
	assert.Equal(t, RecipeYield{MasterMint: spent, Supply: 5, MaxSupply: 5, Bounded: true}, byMint[spent])
	assert.Equal(t, 1, f.ledger.calls, "one read for every master edition")

	none, err := f.r.FetchRecipeYields(context.Background(), f.session, f.ledger, ownerLister{owner: testKey("elsewhere")})
	require.NoError(t, err)
	assert.Empty(t, none)
}
