package main

import (
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

func (a *app) keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen <path>",
		Short: "Write a new wallet keypair file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if !force {
				if _, err := crypto.LoadKeypairFile(args[0]); err == nil {
					return usageErr("%s already holds a keypair (use --force)", args[0])
				}
			}
			kp, err := crypto.GenerateKeypair(nil)
			if err != nil {
				return err
			}
			if err := crypto.SaveKeypairFile(args[0], kp); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out, kp.Pubkey())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keypair")
	return cmd
}

func parseKeys(args []string) ([]protocol.Pubkey, error) {
	out := make([]protocol.Pubkey, len(args))
	for i, s := range args {
		k, err := protocol.ParsePubkey(s)
		if err != nil {
			return nil, usageErr("invalid key %q: %v", s, err)
		}
		out[i] = k
	}
	return out, nil
}

func hashStrings(hs [][32]byte) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = base58.Encode(h[:])
	}
	return out
}

func (a *app) merkleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "merkle", Short: "Ingredient group commitments"}

	cmd.AddCommand(&cobra.Command{
		Use:   "root <mint>...",
		Short: "Print the commitment over an ingredient group",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			mints, err := parseKeys(args)
			if err != nil {
				return err
			}
			root, err := protocol.MerkleRoot(protocol.MintLeaves(mints))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out, base58.Encode(root[:]))
			return nil
		},
	})

	var index int
	proof := &cobra.Command{
		Use:   "proof <mint>...",
		Short: "Print the inclusion proof of one group member",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			mints, err := parseKeys(args)
			if err != nil {
				return err
			}
			tree, err := protocol.BuildMerkleTree(protocol.MintLeaves(mints))
			if err != nil {
				return err
			}
			p, err := tree.Proof(index)
			if err != nil {
				return err
			}
			root := tree.Root()
			return a.printJSON(map[string]any{
				"root":  base58.Encode(root[:]),
				"index": index,
				"proof": hashStrings(p),
			})
		},
	}
	proof.Flags().IntVar(&index, "index", 0, "member position")
	cmd.AddCommand(proof)
	return cmd
}

func (a *app) deriveCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "derive", Short: "Derive program addresses"}

	var recipe, wallet string
	var escrows uint64
	dish := &cobra.Command{
		Use:   "dish",
		Short: "Derive a wallet's dish and its ingredient escrows",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			keys, err := parseKeys([]string{recipe, wallet})
			if err != nil {
				return err
			}
			programs, err := a.cfg.Programs()
			if err != nil {
				return err
			}
			addr, bump, err := protocol.DishAddress(programs.Fireball, keys[0], keys[1])
			if err != nil {
				return err
			}
			owner, _, err := protocol.RecipeMintOwnerAddress(programs.Fireball, keys[0])
			if err != nil {
				return err
			}
			stores := make([]string, 0, escrows)
			for g := uint64(0); g < escrows; g++ {
				s, _, err := protocol.IngredientStoreAddress(programs.Fireball, addr, g)
				if err != nil {
					return err
				}
				stores = append(stores, s.String())
			}
			return a.printJSON(map[string]any{
				"dish":         addr.String(),
				"bump":         bump,
				"recipe_owner": owner.String(),
				"escrows":      stores,
			})
		},
	}
	dish.Flags().StringVar(&recipe, "recipe", "", "recipe address")
	dish.Flags().StringVar(&wallet, "wallet", "", "claimant wallet")
	dish.Flags().Uint64Var(&escrows, "escrows", 0, "number of ingredient escrows to list")
	cmd.AddCommand(dish)

	var base, handle, pin string
	claimant := &cobra.Command{
		Use:   "claimant",
		Short: "Derive the pin-gated claimant identity of a handle",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			keys, err := parseKeys([]string{base})
			if err != nil {
				return err
			}
			p, err := strconv.ParseUint(pin, 10, 32)
			if err != nil {
				return usageErr("invalid pin %q", pin)
			}
			programs, err := a.cfg.Programs()
			if err != nil {
				return err
			}
			addr, _, err := protocol.ClaimantAddress(programs.Gumdrop, keys[0], handle, uint32(p))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(a.out, addr)
			return nil
		},
	}
	claimant.Flags().StringVar(&base, "master", "", "master mint of the distribution")
	claimant.Flags().StringVar(&handle, "handle", "", "claimant handle")
	claimant.Flags().StringVar(&pin, "pin", "", "claimant pin")
	cmd.AddCommand(claimant)
	return cmd
}
