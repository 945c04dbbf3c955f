package client

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"redeem.dev/kit/protocol"
)

const treeCacheSize = 128

// IngredientGroup is one allow-listed set of mints a recipe accepts at a
// fixed position. Root is the published commitment over Members.
type IngredientGroup struct {
	ID      string
	Members []protocol.Pubkey
	Root    [32]byte
}

// Session identifies one wallet's dish for one recipe.
type Session struct {
	Recipe   protocol.Pubkey
	Wallet   protocol.Pubkey
	Dish     protocol.Pubkey
	DishBump uint8
}

func NewSession(fireball, recipe, wallet protocol.Pubkey) (Session, error) {
	dish, bump, err := protocol.DishAddress(fireball, recipe, wallet)
	if err != nil {
		return Session{}, err
	}
	return Session{Recipe: recipe, Wallet: wallet, Dish: dish, DishBump: bump}, nil
}

// PlannedChange is the resolved form of one change request.
type PlannedChange struct {
	GroupIndex int
	GroupID    string
	Op         ChangeOp
	Mint       protocol.Pubkey
	Store      protocol.Pubkey
	Proof      [][32]byte
}

type Plan struct {
	Instructions  []protocol.Instruction
	Changes       []PlannedChange
	StartsSession bool
	// Filled reports, per group, whether the escrow is occupied once the
	// plan has been applied.
	Filled []bool
}

// Empty is true when the plan has nothing to submit.
func (p *Plan) Empty() bool { return len(p.Instructions) == 0 }

// Complete is true when every group's escrow is occupied after the plan.
func (p *Plan) Complete() bool {
	for _, f := range p.Filled {
		if !f {
			return false
		}
	}
	return len(p.Filled) > 0
}

// Reconciler turns desired dish contents into fireball instructions. It is
// safe for concurrent use.
type Reconciler struct {
	fireball protocol.Pubkey
	trees    *lru.Cache[[32]byte, *protocol.MerkleTree]
	log      *zap.Logger
}

func NewReconciler(fireball protocol.Pubkey, log *zap.Logger) *Reconciler {
	trees, err := lru.New[[32]byte, *protocol.MerkleTree](treeCacheSize)
	if err != nil {
		panic(err)
	}
	return &Reconciler{fireball: fireball, trees: trees, log: orNop(log)}
}

type groupStore struct {
	addr protocol.Pubkey
	bump uint8
}

func (r *Reconciler) storeAddresses(session Session, groups []IngredientGroup) ([]groupStore, error) {
	out := make([]groupStore, len(groups))
	for i := range groups {
		addr, bump, err := protocol.IngredientStoreAddress(r.fireball, session.Dish, uint64(i))
		if err != nil {
			return nil, err
		}
		out[i] = groupStore{addr: addr, bump: bump}
	}
	return out, nil
}

func indexRequests(desired []IngredientChangeRequest, groups []IngredientGroup) (map[int]IngredientChangeRequest, error) {
	byID := make(map[string]int, len(groups))
	for i, g := range groups {
		if _, dup := byID[g.ID]; dup {
			return nil, errf(protocol.ERR_DUPLICATE_CHANGE, "group %q listed twice", g.ID)
		}
		byID[g.ID] = i
	}
	out := make(map[int]IngredientChangeRequest, len(desired))
	for _, req := range desired {
		i, ok := byID[req.GroupID]
		if !ok {
			return nil, errf(protocol.ERR_UNKNOWN_GROUP, "unknown ingredient group %q", req.GroupID)
		}
		if _, dup := out[i]; dup {
			return nil, errf(protocol.ERR_DUPLICATE_CHANGE, "more than one change for group %q", req.GroupID)
		}
		if req.Op != OpAdd && req.Op != OpRemove {
			return nil, errf(protocol.ERR_PARSE, "unknown change operation %d", req.Op)
		}
		out[i] = req
	}
	return out, nil
}

// Plan diffs desired against the ledger. The session record and every
// group escrow are read in one snapshot; instructions follow groups order.
func (r *Reconciler) Plan(ctx context.Context, desired []IngredientChangeRequest, session Session, ledger LedgerSnapshotReader, groups []IngredientGroup) (*Plan, error) {
	plan, err := r.plan(ctx, desired, session, ledger, groups)
	return plan, stageErr(StagePlan, err)
}

func (r *Reconciler) plan(ctx context.Context, desired []IngredientChangeRequest, session Session, ledger LedgerSnapshotReader, groups []IngredientGroup) (*Plan, error) {
	if session.Wallet.IsZero() {
		return nil, errf(protocol.ERR_MISSING_FEE_PAYER, "session has no wallet")
	}
	requests, err := indexRequests(desired, groups)
	if err != nil {
		return nil, err
	}
	stores, err := r.storeAddresses(session, groups)
	if err != nil {
		return nil, err
	}
	keys := make([]protocol.Pubkey, 0, len(stores)+1)
	keys = append(keys, session.Dish)
	for _, s := range stores {
		keys = append(keys, s.addr)
	}
	snapshot, err := ledger.GetAccounts(ctx, keys)
	if err != nil {
		return nil, errors.Wrap(err, "read dish snapshot")
	}

	plan := &Plan{Filled: make([]bool, len(groups))}
	if _, ok := snapshot[session.Dish]; !ok {
		plan.StartsSession = true
		plan.Instructions = append(plan.Instructions, protocol.StartDish(r.fireball, session.DishBump, protocol.StartDishAccounts{
			Recipe: session.Recipe,
			Dish:   session.Dish,
			Payer:  session.Wallet,
		}))
	}

	for i, g := range groups {
		escrow, occupied := snapshot[stores[i].addr]
		plan.Filled[i] = occupied
		req, ok := requests[i]
		if !ok {
			continue
		}
		var change PlannedChange
		switch req.Op {
		case OpAdd:
			if occupied {
				return nil, errf(protocol.ERR_ALREADY_PRESENT, "ingredient %s has already been added to this dish", g.ID)
			}
			proof, err := r.proveMember(g, req.TargetAsset)
			if err != nil {
				return nil, err
			}
			change = PlannedChange{Op: OpAdd, Mint: req.TargetAsset, Proof: proof}
		case OpRemove:
			if !occupied {
				return nil, errf(protocol.ERR_NOTHING_TO_RECOVER, "ingredient %s is not in this dish", g.ID)
			}
			held, err := protocol.DecodeTokenAccount(escrow)
			if err != nil {
				return nil, errors.Wrapf(err, "decode escrow for %s", g.ID)
			}
			if !req.TargetAsset.IsZero() && req.TargetAsset != held.Mint {
				return nil, errf(protocol.ERR_ESCROW_MISMATCH, "ingredient %s escrow holds %s, not %s", g.ID, held.Mint, req.TargetAsset)
			}
			change = PlannedChange{Op: OpRemove, Mint: held.Mint}
		}
		change.GroupIndex = i
		change.GroupID = g.ID
		change.Store = stores[i].addr

		ix, err := r.changeInstruction(session, change, stores[i].bump)
		if err != nil {
			return nil, err
		}
		plan.Instructions = append(plan.Instructions, ix)
		plan.Changes = append(plan.Changes, change)
		plan.Filled[i] = change.Op == OpAdd
	}

	r.log.Debug("planned dish changes",
		zap.Stringer("dish", session.Dish),
		zap.Int("changes", len(plan.Changes)),
		zap.Bool("starts_session", plan.StartsSession))
	return plan, nil
}

func (r *Reconciler) changeInstruction(session Session, c PlannedChange, storeBump uint8) (protocol.Instruction, error) {
	walletATA, err := protocol.AssociatedTokenAddress(session.Wallet, c.Mint)
	if err != nil {
		return protocol.Instruction{}, err
	}
	group := uint64(c.GroupIndex)
	if c.Op == OpAdd {
		return protocol.AddIngredient(r.fireball, storeBump, group, c.Proof, protocol.AddIngredientAccounts{
			Recipe:          session.Recipe,
			Dish:            session.Dish,
			IngredientMint:  c.Mint,
			IngredientStore: c.Store,
			Payer:           session.Wallet,
			From:            walletATA,
		}), nil
	}
	return protocol.RemoveIngredient(r.fireball, storeBump, group, protocol.RemoveIngredientAccounts{
		Dish:            session.Dish,
		IngredientMint:  c.Mint,
		IngredientStore: c.Store,
		Payer:           session.Wallet,
		To:              walletATA,
	}), nil
}

// proveMember builds (or reuses) the group tree and returns the inclusion
// proof of mint, checked against the published root.
func (r *Reconciler) proveMember(g IngredientGroup, mint protocol.Pubkey) ([][32]byte, error) {
	idx := -1
	for i, m := range g.Members {
		if m == mint {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errf(protocol.ERR_NOT_A_MEMBER, "mint %s is not in ingredient group %s", mint, g.ID)
	}
	tree, err := r.tree(g)
	if err != nil {
		return nil, err
	}
	if tree.Root() != g.Root {
		return nil, errf(protocol.ERR_ROOT_MISMATCH, "ingredient group %s: members do not hash to the published root", g.ID)
	}
	proof, err := tree.Proof(idx)
	if err != nil {
		return nil, err
	}
	if !protocol.VerifyMerkleProof(mint[:], proof, g.Root) {
		return nil, errf(protocol.ERR_PROOF_MISMATCH, "ingredient group %s: proof for %s does not verify", g.ID, mint)
	}
	return proof, nil
}

func (r *Reconciler) tree(g IngredientGroup) (*protocol.MerkleTree, error) {
	leaves := protocol.MintLeaves(g.Members)
	key := protocol.Keccak256(concat(leaves))
	if t, ok := r.trees.Get(key); ok {
		return t, nil
	}
	t, err := protocol.BuildMerkleTree(leaves)
	if err != nil {
		return nil, errors.Wrapf(err, "ingredient group %s", g.ID)
	}
	r.trees.Add(key, t)
	return t, nil
}

func concat(parts [][]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// DishIngredient is a mint currently escrowed in a dish.
type DishIngredient struct {
	GroupIndex int
	GroupID    string
	Mint       protocol.Pubkey
}

// RelevantMint is a wallet-held mint that belongs to one of the groups.
type RelevantMint struct {
	GroupID string
	Mint    protocol.Pubkey
	Account protocol.Pubkey
}

// TokenAccountLister enumerates the token accounts a wallet owns.
type TokenAccountLister interface {
	TokenAccountsByOwner(ctx context.Context, owner protocol.Pubkey) (map[protocol.Pubkey]protocol.TokenAccount, error)
}

// FetchDishIngredients reads every escrow of the dish and reports which
// mint each occupied group holds, in groups order.
func (r *Reconciler) FetchDishIngredients(ctx context.Context, session Session, ledger LedgerSnapshotReader, groups []IngredientGroup) ([]DishIngredient, error) {
	stores, err := r.storeAddresses(session, groups)
	if err != nil {
		return nil, err
	}
	keys := make([]protocol.Pubkey, len(stores))
	for i, s := range stores {
		keys[i] = s.addr
	}
	snapshot, err := ledger.GetAccounts(ctx, keys)
	if err != nil {
		return nil, errors.Wrap(err, "read escrows")
	}
	var out []DishIngredient
	for i, s := range stores {
		raw, ok := snapshot[s.addr]
		if !ok {
			continue
		}
		acct, err := protocol.DecodeTokenAccount(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode escrow for %s", groups[i].ID)
		}
		out = append(out, DishIngredient{GroupIndex: i, GroupID: groups[i].ID, Mint: acct.Mint})
	}
	return out, nil
}

// FetchWalletIngredients reads the dish escrows and the wallet's holdings
// concurrently. Relevant mints are those with a positive balance that
// belong to some group, in groups order.
func (r *Reconciler) FetchWalletIngredients(ctx context.Context, session Session, ledger LedgerSnapshotReader, lister TokenAccountLister, groups []IngredientGroup) ([]DishIngredient, []RelevantMint, error) {
	var (
		onChain []DishIngredient
		owned   map[protocol.Pubkey]protocol.TokenAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		onChain, err = r.FetchDishIngredients(gctx, session, ledger, groups)
		return err
	})
	g.Go(func() error {
		var err error
		owned, err = lister.TokenAccountsByOwner(gctx, session.Wallet)
		return errors.Wrap(err, "list wallet token accounts")
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	held := make(map[protocol.Pubkey]protocol.Pubkey, len(owned))
	for addr, acct := range owned {
		if acct.Amount > 0 {
			held[acct.Mint] = addr
		}
	}
	var relevant []RelevantMint
	for _, grp := range groups {
		for _, m := range grp.Members {
			if addr, ok := held[m]; ok {
				relevant = append(relevant, RelevantMint{GroupID: grp.ID, Mint: m, Account: addr})
			}
		}
	}
	return onChain, relevant, nil
}
