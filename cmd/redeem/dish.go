package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"redeem.dev/kit/client"
	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

type groupsFile struct {
	Groups []struct {
		ID      string   `yaml:"id"`
		Root    string   `yaml:"root"`
		Members []string `yaml:"members"`
	} `yaml:"groups"`
}

// loadGroups reads a recipe's ingredient groups. A group without a root
// commits to its listed members.
func loadGroups(path string) ([]client.IngredientGroup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read groups")
	}
	var f groupsFile
	if err := yaml.UnmarshalStrict(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parse groups")
	}
	out := make([]client.IngredientGroup, 0, len(f.Groups))
	for _, g := range f.Groups {
		members, err := parseKeys(g.Members)
		if err != nil {
			return nil, errors.Wrapf(err, "group %s", g.ID)
		}
		grp := client.IngredientGroup{ID: g.ID, Members: members}
		if g.Root == "" {
			if grp.Root, err = protocol.MerkleRoot(protocol.MintLeaves(members)); err != nil {
				return nil, errors.Wrapf(err, "group %s", g.ID)
			}
		} else {
			b, err := base58.Decode(g.Root)
			if err != nil || len(b) != 32 {
				return nil, errors.Errorf("group %s: invalid root %q", g.ID, g.Root)
			}
			grp.Root = [32]byte(b)
		}
		out = append(out, grp)
	}
	return out, nil
}

// parseChanges reads group=mint pairs. The mint is optional for removals.
func parseChanges(adds, removes []string) ([]client.IngredientChangeRequest, error) {
	var out []client.IngredientChangeRequest
	for _, s := range adds {
		group, mint, ok := strings.Cut(s, "=")
		if !ok {
			return nil, usageErr("--add wants group=mint, got %q", s)
		}
		k, err := protocol.ParsePubkey(mint)
		if err != nil {
			return nil, usageErr("--add %s: invalid mint: %v", group, err)
		}
		out = append(out, client.IngredientChangeRequest{GroupID: group, TargetAsset: k, Op: client.OpAdd})
	}
	for _, s := range removes {
		group, mint, _ := strings.Cut(s, "=")
		req := client.IngredientChangeRequest{GroupID: group, Op: client.OpRemove}
		if mint != "" {
			k, err := protocol.ParsePubkey(mint)
			if err != nil {
				return nil, usageErr("--remove %s: invalid mint: %v", group, err)
			}
			req.TargetAsset = k
		}
		out = append(out, req)
	}
	return out, nil
}

type dishFlags struct {
	recipe     string
	groupsPath string
	adds       []string
	removes    []string
}

func (f *dishFlags) bind(cmd *cobra.Command, changes bool) {
	cmd.Flags().StringVar(&f.recipe, "recipe", "", "recipe address")
	cmd.Flags().StringVar(&f.groupsPath, "groups", "", "ingredient groups YAML file")
	_ = cmd.MarkFlagRequired("recipe")
	_ = cmd.MarkFlagRequired("groups")
	if changes {
		cmd.Flags().StringArrayVar(&f.adds, "add", nil, "add an ingredient: group=mint (repeatable)")
		cmd.Flags().StringArrayVar(&f.removes, "remove", nil, "recover an ingredient: group[=mint] (repeatable)")
	}
}

type dishContext struct {
	rt      *runtime
	r       *client.Reconciler
	session client.Session
	groups  []client.IngredientGroup
	desired []client.IngredientChangeRequest
}

func (a *app) dishContext(f *dishFlags) (*dishContext, error) {
	recipe, err := protocol.ParsePubkey(f.recipe)
	if err != nil {
		return nil, usageErr("invalid recipe: %v", err)
	}
	groups, err := loadGroups(f.groupsPath)
	if err != nil {
		return nil, err
	}
	desired, err := parseChanges(f.adds, f.removes)
	if err != nil {
		return nil, err
	}
	rt, err := a.runtime()
	if err != nil {
		return nil, err
	}
	session, err := client.NewSession(rt.programs.Fireball, recipe, rt.wallet.Pubkey())
	if err != nil {
		return nil, err
	}
	return &dishContext{
		rt:      rt,
		r:       client.NewReconciler(rt.programs.Fireball, rt.log.Named("reconcile")),
		session: session,
		groups:  groups,
		desired: desired,
	}, nil
}

type planView struct {
	Dish          string       `json:"dish"`
	StartsSession bool         `json:"starts_session"`
	Changes       []changeView `json:"changes"`
	Instructions  int          `json:"instructions"`
	Complete      bool         `json:"complete"`
	Edition       uint64       `json:"edition,omitempty"`
	NewMint       string       `json:"new_mint,omitempty"`
}

type changeView struct {
	Group  string   `json:"group"`
	Op     string   `json:"op"`
	Mint   string   `json:"mint"`
	Escrow string   `json:"escrow"`
	Proof  []string `json:"proof,omitempty"`
}

func viewPlan(dish protocol.Pubkey, p *client.Plan) planView {
	v := planView{Dish: dish.String(), StartsSession: p.StartsSession, Instructions: len(p.Instructions), Complete: p.Complete()}
	for _, c := range p.Changes {
		v.Changes = append(v.Changes, changeView{
			Group:  c.GroupID,
			Op:     c.Op.String(),
			Mint:   c.Mint.String(),
			Escrow: c.Store.String(),
			Proof:  hashStrings(c.Proof),
		})
	}
	return v
}

type yieldView struct {
	MasterMint string  `json:"master_mint"`
	Supply     uint64  `json:"supply"`
	Remaining  *uint64 `json:"remaining,omitempty"`
	MaxSupply  *uint64 `json:"max_supply,omitempty"`
}

func viewYields(yields []client.RecipeYield) []yieldView {
	out := make([]yieldView, 0, len(yields))
	for _, y := range yields {
		v := yieldView{MasterMint: y.MasterMint.String(), Supply: y.Supply}
		if y.Bounded {
			v.Remaining, v.MaxSupply = &y.Remaining, &y.MaxSupply
		}
		out = append(out, v)
	}
	return out
}

// soleYield picks the master mint when a recipe prints exactly one yield.
func soleYield(yields []client.RecipeYield) (protocol.Pubkey, error) {
	switch len(yields) {
	case 0:
		return protocol.Pubkey{}, usageErr("recipe holds no yield master mints")
	case 1:
		return yields[0].MasterMint, nil
	default:
		return protocol.Pubkey{}, usageErr("recipe has %d yields; choose one with --master", len(yields))
	}
}

func (a *app) dishCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dish", Short: "Inspect and edit a recipe dish"}

	var show dishFlags
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "List escrowed ingredients and eligible wallet holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dc, err := a.dishContext(&show)
			if err != nil {
				return err
			}
			defer dc.rt.close()
			onChain, relevant, err := dc.r.FetchWalletIngredients(cmd.Context(), dc.session, dc.rt.node, dc.rt.node, dc.groups)
			if err != nil {
				return err
			}
			type held struct {
				Group string `json:"group"`
				Mint  string `json:"mint"`
			}
			var escrowed, wallet []held
			for _, d := range onChain {
				escrowed = append(escrowed, held{d.GroupID, d.Mint.String()})
			}
			for _, m := range relevant {
				wallet = append(wallet, held{m.GroupID, m.Mint.String()})
			}
			yields, err := dc.r.FetchRecipeYields(cmd.Context(), dc.session, dc.rt.node, dc.rt.node)
			if err != nil {
				return err
			}
			return a.printJSON(map[string]any{
				"dish":     dc.session.Dish.String(),
				"escrowed": escrowed,
				"wallet":   wallet,
				"yields":   viewYields(yields),
			})
		},
	}
	show.bind(showCmd, false)

	var plan dishFlags
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the instructions a dish edit needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dc, err := a.dishContext(&plan)
			if err != nil {
				return err
			}
			defer dc.rt.close()
			p, err := dc.r.Plan(cmd.Context(), dc.desired, dc.session, dc.rt.node, dc.groups)
			if err != nil {
				return err
			}
			return a.printJSON(viewPlan(dc.session.Dish, p))
		},
	}
	plan.bind(planCmd, true)

	var submit dishFlags
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Apply a dish edit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dc, err := a.dishContext(&submit)
			if err != nil {
				return err
			}
			defer dc.rt.close()
			ctx := cmd.Context()
			p, err := dc.r.Plan(ctx, dc.desired, dc.session, dc.rt.node, dc.groups)
			if err != nil {
				return err
			}
			if p.Empty() {
				_, _ = fmt.Fprintln(a.out, "nothing to submit")
				return nil
			}
			bt, err := dc.batcher(ctx)
			if err != nil {
				return err
			}
			batches, err := bt.Batch(p.Instructions, dc.rt.cfg.MaxInstructionsPerBatch)
			if err != nil {
				return err
			}
			return a.signAndSubmit(ctx, dc.rt, batches)
		},
	}
	submit.bind(submitCmd, true)

	var mk dishFlags
	var master string
	makeCmd := &cobra.Command{
		Use:   "make",
		Short: "Apply a dish edit and print the recipe yield",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var masterMint protocol.Pubkey
			if master != "" {
				var err error
				if masterMint, err = protocol.ParsePubkey(master); err != nil {
					return usageErr("invalid master: %v", err)
				}
			}
			dc, err := a.dishContext(&mk)
			if err != nil {
				return err
			}
			defer dc.rt.close()
			ctx := cmd.Context()
			if masterMint.IsZero() {
				yields, err := dc.r.FetchRecipeYields(ctx, dc.session, dc.rt.node, dc.rt.node)
				if err != nil {
					return err
				}
				if masterMint, err = soleYield(yields); err != nil {
					return err
				}
			}
			mint, err := crypto.GenerateKeypair(nil)
			if err != nil {
				return err
			}
			p, err := dc.r.PlanMakeDish(ctx, dc.desired, dc.session, dc.rt.node, dc.groups, masterMint, mint.Pubkey(), dc.rt.node)
			if err != nil {
				return err
			}
			view := viewPlan(dc.session.Dish, p.Plan)
			view.Edition, view.NewMint = p.Edition, p.NewMint.String()
			if err := a.printJSON(view); err != nil {
				return err
			}
			bt, err := dc.batcher(ctx)
			if err != nil {
				return err
			}
			batches, err := client.BatchMakeDish(bt, p, mint)
			if err != nil {
				return err
			}
			return a.signAndSubmit(ctx, dc.rt, batches)
		},
	}
	mk.bind(makeCmd, true)
	makeCmd.Flags().StringVar(&master, "master", "", "master mint of the recipe yield (defaults to the recipe's only yield)")

	cmd.AddCommand(showCmd, planCmd, submitCmd, makeCmd)
	return cmd
}

func (dc *dishContext) batcher(ctx context.Context) (*client.Batcher, error) {
	hash, err := dc.rt.node.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return client.NewBatcher(dc.session.Wallet, hash), nil
}

func (a *app) signAndSubmit(ctx context.Context, rt *runtime, batches []*client.Batch) error {
	signed, err := client.NewLocalWallet(rt.wallet).SignBatches(ctx, batches)
	if err != nil {
		return err
	}
	res, err := rt.submitter().Submit(ctx, signed, client.StopOnFirstFailure, func(i int, o client.BatchOutcome) {
		_, _ = fmt.Fprintf(a.out, "batch %d/%d: %s %s\n", i+1, len(signed), o.Outcome, o.Txid)
	})
	if err != nil {
		var se *client.StageError
		if errors.As(err, &se) && se.LedgerChanged {
			rt.log.Warn("ledger partially updated", zap.Int("failed_batch", se.BatchIndex))
		}
		return err
	}
	_, _ = fmt.Fprintf(a.out, "submitted %d batches\n", len(res.Outcomes))
	return nil
}
