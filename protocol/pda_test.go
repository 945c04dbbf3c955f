package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bpfLoader = MustPubkey("BPFLoader1111111111111111111111111111111111")

func TestCreateProgramAddressVectors(t *testing.T) {
	cases := []struct {
		seeds [][]byte
		want  string
	}{
		{[][]byte{{}, {1}}, "3gF2KMe9KiC6FNVBmfg9i267aMPvK37FewCip4eGBFcT"},
		{[][]byte{[]byte("☉")}, "7ytmC1nT1xY4RfxCV2ZgyA7UakC93do5ZdyhdF3EtPj7"},
		{[][]byte{[]byte("Talking"), []byte("Squirrels")}, "HwRVBufQ4haG5XSgpspwKtNd3PC9GM9m1196uJW36vds"},
	}
	for _, tc := range cases {
		got, err := CreateProgramAddress(tc.seeds, bpfLoader)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.String())
		assert.False(t, IsOnCurve(got[:]))
	}
}

func TestFindProgramAddressSkipsOnCurveBumps(t *testing.T) {
	addr, bump, err := FindProgramAddress([][]byte{[]byte("Lil'"), []byte("Bits")}, bpfLoader)
	require.NoError(t, err)
	assert.Equal(t, uint8(254), bump)
	assert.Equal(t, "4aTjbsz52PNDhsj7mvsKmSKJebAtt5nNxyiNZTkfJZgh", addr.String())

	_, err = CreateProgramAddress([][]byte{[]byte("Lil'"), []byte("Bits"), {255}}, bpfLoader)
	assert.True(t, HasCode(err, ERR_ON_CURVE))
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	recipe := Pubkey{7}
	claimant := Pubkey{8}
	a1, b1, err := DishAddress(FireballProgramID, recipe, claimant)
	require.NoError(t, err)
	a2, b2, err := DishAddress(FireballProgramID, recipe, claimant)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)

	other, _, err := DishAddress(FireballProgramID, recipe, Pubkey{9})
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)
}

func TestAccountKindsAreDistinct(t *testing.T) {
	recipe := Pubkey{1}
	dish, _, err := DishAddress(FireballProgramID, recipe, Pubkey{2})
	require.NoError(t, err)
	store0, _, err := IngredientStoreAddress(FireballProgramID, dish, 0)
	require.NoError(t, err)
	store1, _, err := IngredientStoreAddress(FireballProgramID, dish, 1)
	require.NoError(t, err)
	owner, _, err := RecipeMintOwnerAddress(FireballProgramID, recipe)
	require.NoError(t, err)

	seen := map[Pubkey]string{}
	for name, k := range map[string]Pubkey{"dish": dish, "store0": store0, "store1": store1, "owner": owner} {
		prev, dup := seen[k]
		require.False(t, dup, "%s collides with %s", name, prev)
		seen[k] = name
	}
}

func TestSeedLimits(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{make([]byte, 33)}, bpfLoader)
	assert.True(t, HasCode(err, ERR_SEEDS_TOO_LONG))

	many := make([][]byte, MaxSeeds)
	_, _, err = FindProgramAddress(many, bpfLoader)
	assert.True(t, HasCode(err, ERR_SEEDS_TOO_LONG), "bump needs a free slot")

	_, err = CreateProgramAddress(make([][]byte, MaxSeeds+1), bpfLoader)
	assert.True(t, HasCode(err, ERR_SEEDS_TOO_LONG))
}

func TestClaimantAddressChunksHandle(t *testing.T) {
	master := Pubkey{3}
	addr, seeds, err := ClaimantAddress(GumdropProgramID, master, "alice@example.com", 4242)
	require.NoError(t, err)
	require.Len(t, seeds, 3)
	assert.Equal(t, master[:], seeds[0], "seeded with the master mint")
	want, _, err := FindProgramAddress([][]byte{master[:], []byte("alice@example.com"), {0x92, 0x10, 0, 0}}, GumdropProgramID)
	require.NoError(t, err)
	assert.Equal(t, want, addr)
	assert.Equal(t, []byte("alice@example.com"), seeds[1])
	assert.Equal(t, []byte{0x92, 0x10, 0, 0}, seeds[2])

	again, _, err := ClaimantAddress(GumdropProgramID, master, "alice@example.com", 4242)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	other, _, err := ClaimantAddress(GumdropProgramID, master, "alice@example.com", 4243)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)

	long := strings.Repeat("x", 70)
	_, _, err = ClaimantAddress(GumdropProgramID, master, long, 1)
	require.NoError(t, err, "70-byte handle splits into three seeds")
}

func TestChunkSeed(t *testing.T) {
	assert.Empty(t, ChunkSeed(nil, 32))
	chunks := ChunkSeed(make([]byte, 65), 32)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 1)
}

func TestPubkeyParse(t *testing.T) {
	k, err := ParsePubkey(TokenProgramID.String())
	require.NoError(t, err)
	assert.Equal(t, TokenProgramID, k)
	assert.True(t, IsOnCurve(TokenProgramID[:]))

	_, err = ParsePubkey("not-base58-0OIl")
	assert.True(t, HasCode(err, ERR_PARSE))
	_, err = ParsePubkey("1111")
	assert.True(t, HasCode(err, ERR_PARSE))
	assert.Equal(t, "11111111111111111111111111111111", DefaultPubkey.String())
}
