package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"

	"redeem.dev/kit/client"
	"redeem.dev/kit/crypto"
	"redeem.dev/kit/protocol"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	base := []string{"--datadir", t.TempDir()}
	code := run(append(base, args...), strings.NewReader(""), &out, &errOut)
	return code, out.String(), errOut.String()
}

func key(label string) protocol.Pubkey {
	return protocol.Pubkey(sha256.Sum256([]byte(label)))
}

func TestConfigPrintsEffectiveValues(t *testing.T) {
	code, out, _ := runCLI(t, "--network", "localnet", "--max-instructions", "4", "config")
	require.Equal(t, 0, code)

	var cfg client.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	require.Equal(t, "localnet", cfg.Network)
	require.Equal(t, 4, cfg.MaxInstructionsPerBatch)
	u, ok := client.NetworkRPCURL("localnet")
	require.True(t, ok)
	require.Equal(t, u, cfg.RPCURL)
}

func TestInvalidConfigIsUsageError(t *testing.T) {
	code, _, errOut := runCLI(t, "--log-level", "loud", "config")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "invalid config")

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: [\n"), 0o600))
	code, _, _ = runCLI(t, "--config", path, "config")
	require.Equal(t, 2, code)
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id.json")
	code, out, _ := runCLI(t, "keygen", path)
	require.Equal(t, 0, code)

	kp, err := crypto.LoadKeypairFile(path)
	require.NoError(t, err)
	require.Equal(t, kp.Pubkey().String(), strings.TrimSpace(out))

	code, _, errOut := runCLI(t, "keygen", path)
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "--force")

	code, out, _ = runCLI(t, "keygen", "--force", path)
	require.Equal(t, 0, code)
	require.NotEqual(t, kp.Pubkey().String(), strings.TrimSpace(out))
}

func TestMerkleRootAndProof(t *testing.T) {
	mints := []protocol.Pubkey{key("a"), key("b"), key("c"), key("d"), key("e")}
	args := make([]string, len(mints))
	for i, m := range mints {
		args[i] = m.String()
	}
	want, err := protocol.MerkleRoot(protocol.MintLeaves(mints))
	require.NoError(t, err)

	code, out, _ := runCLI(t, append([]string{"merkle", "root"}, args...)...)
	require.Equal(t, 0, code)
	require.Equal(t, base58.Encode(want[:]), strings.TrimSpace(out))

	code, out, _ = runCLI(t, append([]string{"merkle", "proof", "--index", "3"}, args...)...)
	require.Equal(t, 0, code)
	var got struct {
		Root  string   `json:"root"`
		Index int      `json:"index"`
		Proof []string `json:"proof"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, base58.Encode(want[:]), got.Root)
	require.Len(t, got.Proof, 3)

	code, _, errOut := runCLI(t, "merkle", "root", "not-a-key")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "invalid key")
}

func TestDeriveDish(t *testing.T) {
	recipe, wallet := key("recipe"), key("wallet")
	code, out, _ := runCLI(t, "derive", "dish", "--recipe", recipe.String(), "--wallet", wallet.String(), "--escrows", "2")
	require.Equal(t, 0, code)

	var got struct {
		Dish    string   `json:"dish"`
		Escrows []string `json:"escrows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	dish, _, err := protocol.DishAddress(protocol.FireballProgramID, recipe, wallet)
	require.NoError(t, err)
	require.Equal(t, dish.String(), got.Dish)
	require.Len(t, got.Escrows, 2)
	store1, _, err := protocol.IngredientStoreAddress(protocol.FireballProgramID, dish, 1)
	require.NoError(t, err)
	require.Equal(t, store1.String(), got.Escrows[1])
}

func TestDeriveClaimant(t *testing.T) {
	master := key("master")
	code, out, _ := runCLI(t, "derive", "claimant", "--master", master.String(), "--handle", "a@example.com", "--pin", "1234")
	require.Equal(t, 0, code)
	want, _, err := protocol.ClaimantAddress(protocol.GumdropProgramID, master, "a@example.com", 1234)
	require.NoError(t, err)
	require.Equal(t, want.String(), strings.TrimSpace(out))

	code, _, _ = runCLI(t, "derive", "claimant", "--master", master.String(), "--handle", "h", "--pin", "abc")
	require.Equal(t, 2, code)
}

func TestLoadGroups(t *testing.T) {
	a, b := key("a"), key("b")
	explicit := [32]byte(key("root"))
	path := filepath.Join(t.TempDir(), "groups.yaml")
	doc := "groups:\n" +
		"  - id: base\n    members: [" + a.String() + ", " + b.String() + "]\n" +
		"  - id: topping\n    root: " + base58.Encode(explicit[:]) + "\n    members: [" + a.String() + "]\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	groups, err := loadGroups(path)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	want, err := protocol.MerkleRoot(protocol.MintLeaves([]protocol.Pubkey{a, b}))
	require.NoError(t, err)
	require.Equal(t, want, groups[0].Root)
	require.Equal(t, explicit, groups[1].Root)

	require.NoError(t, os.WriteFile(path, []byte("groups:\n  - id: x\n    extra: 1\n"), 0o600))
	_, err = loadGroups(path)
	require.Error(t, err)
}

func TestParseChanges(t *testing.T) {
	m := key("mint")
	reqs, err := parseChanges([]string{"base=" + m.String()}, []string{"topping", "side=" + m.String()})
	require.NoError(t, err)
	require.Equal(t, []client.IngredientChangeRequest{
		{GroupID: "base", TargetAsset: m, Op: client.OpAdd},
		{GroupID: "topping", Op: client.OpRemove},
		{GroupID: "side", TargetAsset: m, Op: client.OpRemove},
	}, reqs)

	_, err = parseChanges([]string{"base"}, nil)
	require.Error(t, err)
}

func TestDishBadChangeIsUsageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups: []\n"), 0o600))
	code, _, errOut := runCLI(t, "dish", "plan", "--recipe", key("recipe").String(), "--groups", path, "--add", "base")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "group=mint")
}

func TestClaimNeedsQueryOrResume(t *testing.T) {
	code, _, errOut := runCLI(t, "claim")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "--resume")
}

func TestSoleYield(t *testing.T) {
	_, err := soleYield(nil)
	require.Error(t, err)

	m := key("master")
	got, err := soleYield([]client.RecipeYield{{MasterMint: m}})
	require.NoError(t, err)
	require.Equal(t, m, got)

	_, err = soleYield([]client.RecipeYield{{MasterMint: m}, {MasterMint: key("other")}})
	require.ErrorContains(t, err, "--master")
}

func TestViewYieldsOmitsUnboundedSupply(t *testing.T) {
	views := viewYields([]client.RecipeYield{
		{MasterMint: key("a"), Supply: 4, Remaining: 6, MaxSupply: 10, Bounded: true},
		{MasterMint: key("b"), Supply: 7},
	})
	raw, err := json.Marshal(views)
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"master_mint":"`+key("a").String()+`","supply":4,"remaining":6,"max_supply":10},
		{"master_mint":"`+key("b").String()+`","supply":7}
	]`, string(raw))
}
