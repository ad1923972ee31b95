package ledger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
)

const vaultAddr = "vault"

func setup(t *testing.T) (*Ledger, *token.InMemoryBank, map[string]*strategy.Simulated) {
	t.Helper()

	bank := token.NewInMemoryBank()
	sims := map[string]*strategy.Simulated{
		"atom-staking": strategy.NewSimulated("atom-staking", "uatom", bank, 0),
		"atom-lp":      strategy.NewSimulated("atom-lp", "uatom", bank, 0),
		"usdc-lending": strategy.NewSimulated("usdc-lending", "uusdc", bank, 0),
	}
	assets := []types.Asset{
		{Denom: "uatom", Strategies: []types.Strategy{
			{ID: "atom-staking", Name: "Atom Staking"},
			{ID: "atom-lp", Name: "Atom LP"},
		}},
		{Denom: "uusdc", Strategies: []types.Strategy{
			{ID: "usdc-lending", Name: "USDC Lending"},
		}},
	}
	adapters := make(map[string]strategy.Strategy, len(sims))
	for id, sim := range sims {
		adapters[id] = sim
	}
	reg, err := registry.New(assets, adapters)
	require.NoError(t, err)

	return New(reg, bank, vaultAddr), bank, sims
}

func TestTotalManagedFundsAggregates(t *testing.T) {
	l, bank, sims := setup(t)

	require.NoError(t, bank.Mint("uatom", vaultAddr, sdkmath.NewInt(1000)))
	require.NoError(t, bank.Mint("uusdc", vaultAddr, sdkmath.NewInt(500)))
	require.NoError(t, sims["atom-staking"].Deposit(sdkmath.NewInt(300), vaultAddr))
	require.NoError(t, sims["atom-lp"].Deposit(sdkmath.NewInt(200), vaultAddr))

	funds, err := l.TotalManagedFunds()
	require.NoError(t, err)
	require.Len(t, funds, 2)

	atom := funds[0]
	assert.Equal(t, "uatom", atom.Asset)
	assert.Equal(t, "500", atom.Idle.String())
	assert.Equal(t, "500", atom.Invested.String())
	assert.Equal(t, "1000", atom.Total.String())
	require.Len(t, atom.StrategyAllocations, 2)
	assert.Equal(t, "atom-staking", atom.StrategyAllocations[0].StrategyID)
	assert.Equal(t, "300", atom.StrategyAllocations[0].Amount.String())
	assert.Equal(t, "200", atom.StrategyAllocations[1].Amount.String())

	usdc := funds[1]
	assert.Equal(t, "500", usdc.Idle.String())
	assert.True(t, usdc.Invested.IsZero())
	assert.Equal(t, "500", usdc.Total.String())
}

func TestIdlePlusInvestedEqualsTotal(t *testing.T) {
	l, bank, sims := setup(t)

	require.NoError(t, bank.Mint("uatom", vaultAddr, sdkmath.NewInt(98765)))
	require.NoError(t, sims["atom-staking"].Deposit(sdkmath.NewInt(12345), vaultAddr))

	funds, err := l.TotalManagedFunds()
	require.NoError(t, err)
	for _, f := range funds {
		assert.Equal(t, f.Total.String(), f.Idle.Add(f.Invested).String(), "asset %s", f.Asset)
	}
}

func TestAssetFundsUnknownDenom(t *testing.T) {
	l, _, _ := setup(t)

	_, err := l.AssetFunds("uosmo")
	require.ErrorIs(t, err, types.ErrWrongAssetAddress)
}

func TestFundViews(t *testing.T) {
	l, bank, sims := setup(t)

	require.NoError(t, bank.Mint("uatom", vaultAddr, sdkmath.NewInt(100)))
	require.NoError(t, sims["atom-staking"].Deposit(sdkmath.NewInt(40), vaultAddr))

	idle, err := l.CurrentIdleFunds()
	require.NoError(t, err)
	assert.Equal(t, "60", idle["uatom"].String())
	assert.True(t, idle["uusdc"].IsZero())

	invested, err := l.CurrentInvestedFunds()
	require.NoError(t, err)
	assert.Equal(t, "40", invested["uatom"].String())
	assert.True(t, invested["uusdc"].IsZero())
}

func TestYieldShowsUpInInvested(t *testing.T) {
	bank := token.NewInMemoryBank()
	sim := strategy.NewSimulated("atom-staking", "uatom", bank, 100)
	reg, err := registry.New(
		[]types.Asset{{Denom: "uatom", Strategies: []types.Strategy{{ID: "atom-staking", Name: "Atom Staking"}}}},
		map[string]strategy.Strategy{"atom-staking": sim},
	)
	require.NoError(t, err)
	l := New(reg, bank, vaultAddr)

	require.NoError(t, bank.Mint("uatom", vaultAddr, sdkmath.NewInt(10_000)))
	require.NoError(t, sim.Deposit(sdkmath.NewInt(10_000), vaultAddr))
	_, err = sim.Harvest(vaultAddr)
	require.NoError(t, err)

	funds, err := l.AssetFunds("uatom")
	require.NoError(t, err)
	assert.Equal(t, "10100", funds.Invested.String())
	assert.Equal(t, "10100", funds.Total.String())
}
