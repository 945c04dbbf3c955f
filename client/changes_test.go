package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redeem.dev/kit/protocol"
)

func TestChangeListAddReplaces(t *testing.T) {
	cl := NewChangeList(nil)
	replaced, err := cl.Add("hat", testKey("m1"))
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = cl.Add("hat", testKey("m1"))
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = cl.Add("hat", testKey("m2"))
	require.NoError(t, err)
	assert.True(t, replaced)

	reqs := cl.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, testKey("m2"), reqs[0].TargetAsset)
	assert.Equal(t, OpAdd, reqs[0].Op)
}

func TestChangeListRejectsOnChainAdd(t *testing.T) {
	cl := NewChangeList([]DishIngredient{{GroupIndex: 0, GroupID: "hat", Mint: testKey("m1")}})
	_, err := cl.Add("hat", testKey("m2"))
	requireCode(t, err, protocol.ERR_ALREADY_PRESENT)
	assert.Zero(t, cl.Len())
}

func TestChangeListRecover(t *testing.T) {
	cl := NewChangeList([]DishIngredient{{GroupIndex: 1, GroupID: "shoe", Mint: testKey("s1")}})

	requireCode(t, cl.Recover("hat"), protocol.ERR_NOTHING_TO_RECOVER)

	require.NoError(t, cl.Recover("shoe"))
	require.NoError(t, cl.Recover("shoe"))
	reqs := cl.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, IngredientChangeRequest{GroupID: "shoe", TargetAsset: testKey("s1"), Op: OpRemove}, reqs[0])
}

func TestChangeListConflicts(t *testing.T) {
	cl := NewChangeList([]DishIngredient{{GroupID: "shoe", Mint: testKey("s1")}})
	_, err := cl.Add("hat", testKey("h1"))
	require.NoError(t, err)
	require.NoError(t, cl.Recover("shoe"))
	assert.Equal(t, 2, cl.Len())

	requireCode(t, cl.Cancel("glove"), protocol.ERR_INVALID_STATE)
	require.NoError(t, cl.Cancel("hat"))
	reqs := cl.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "shoe", reqs[0].GroupID)

	cl.Reset()
	assert.Zero(t, cl.Len())
}

func TestChangeListRequestsIsCopy(t *testing.T) {
	cl := NewChangeList(nil)
	_, err := cl.Add("hat", testKey("h1"))
	require.NoError(t, err)
	reqs := cl.Requests()
	reqs[0].GroupID = "mutated"
	assert.Equal(t, "hat", cl.Requests()[0].GroupID)
}
