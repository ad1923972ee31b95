package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
)

func testAssets() []types.Asset {
	return []types.Asset{
		{Denom: "uatom", Strategies: []types.Strategy{
			{ID: "atom-staking", Name: "Atom Staking"},
			{ID: "atom-lp", Name: "Atom LP"},
		}},
		{Denom: "uusdc", Strategies: []types.Strategy{
			{ID: "usdc-lending", Name: "USDC Lending"},
		}},
	}
}

func testAdapters(assets []types.Asset) map[string]strategy.Strategy {
	bank := token.NewInMemoryBank()
	adapters := make(map[string]strategy.Strategy)
	for _, asset := range assets {
		for _, st := range asset.Strategies {
			adapters[st.ID] = strategy.NewSimulated(st.ID, asset.Denom, bank, 0)
		}
	}
	return adapters
}

func TestNewValidatesConfiguration(t *testing.T) {
	assets := testAssets()
	reg, err := New(assets, testAdapters(assets))
	require.NoError(t, err)
	assert.Equal(t, 2, reg.AssetCount())
	assert.Equal(t, 0, reg.IndexOf("uatom"))
	assert.Equal(t, 1, reg.IndexOf("uusdc"))
	assert.Equal(t, -1, reg.IndexOf("uosmo"))
}

func TestNewRejectsEmptyRegistry(t *testing.T) {
	_, err := New(nil, nil)
	require.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestNewRejectsMissingAdapter(t *testing.T) {
	assets := testAssets()
	adapters := testAdapters(assets)
	delete(adapters, "usdc-lending")

	_, err := New(assets, adapters)
	require.ErrorIs(t, err, types.ErrStrategyNotFound)
}

func TestNewRejectsAssetMismatch(t *testing.T) {
	assets := testAssets()
	adapters := testAdapters(assets)
	// Bind an adapter declaring the wrong underlying asset.
	adapters["usdc-lending"] = strategy.NewSimulated("usdc-lending", "uatom", token.NewInMemoryBank(), 0)

	_, err := New(assets, adapters)
	require.ErrorIs(t, err, types.ErrWrongAssetAddress)
}

func TestNewRejectsDuplicates(t *testing.T) {
	assets := testAssets()
	assets[1].Denom = "uatom"
	_, err := New(assets, testAdapters(testAssets()))
	require.ErrorIs(t, err, types.ErrNotInitialized)

	assets = testAssets()
	assets[1].Strategies[0].ID = "atom-staking"
	_, err = New(assets, testAdapters(testAssets()))
	require.ErrorIs(t, err, types.ErrNotInitialized)
}

func TestSetPaused(t *testing.T) {
	assets := testAssets()
	reg, err := New(assets, testAdapters(assets))
	require.NoError(t, err)

	denom, err := reg.SetPaused("atom-lp", true)
	require.NoError(t, err)
	assert.Equal(t, "uatom", denom)

	paused, err := reg.IsPaused("atom-lp")
	require.NoError(t, err)
	assert.True(t, paused)

	_, err = reg.SetPaused("nope", true)
	require.ErrorIs(t, err, types.ErrStrategyNotFound)
}

func TestFindStrategy(t *testing.T) {
	assets := testAssets()
	reg, err := New(assets, testAdapters(assets))
	require.NoError(t, err)

	asset, st, idx, err := reg.FindStrategy("usdc-lending")
	require.NoError(t, err)
	assert.Equal(t, "uusdc", asset.Denom)
	assert.Equal(t, "usdc-lending", st.ID)
	assert.Equal(t, 1, idx)

	_, _, _, err = reg.FindStrategy("missing")
	require.ErrorIs(t, err, types.ErrStrategyNotFound)
}

func TestAssetsSnapshotIsDefensive(t *testing.T) {
	assets := testAssets()
	reg, err := New(assets, testAdapters(assets))
	require.NoError(t, err)

	snapshot := reg.Assets()
	snapshot[0].Strategies[0].Paused = true

	paused, err := reg.IsPaused("atom-staking")
	require.NoError(t, err)
	assert.False(t, paused)
}
