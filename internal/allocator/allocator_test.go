package allocator

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

func fundsWithAllocations(denom string, idle int64, strategyBalances ...int64) types.AssetFunds {
	invested := sdkmath.ZeroInt()
	allocations := make([]types.StrategyAllocation, len(strategyBalances))
	for i, bal := range strategyBalances {
		allocations[i] = types.StrategyAllocation{
			StrategyID: denom + "-s",
			Amount:     sdkmath.NewInt(bal),
		}
		invested = invested.Add(sdkmath.NewInt(bal))
	}
	return types.AssetFunds{
		Asset:               denom,
		Idle:                sdkmath.NewInt(idle),
		Invested:            invested,
		Total:               sdkmath.NewInt(idle).Add(invested),
		StrategyAllocations: allocations,
	}
}

func TestGeneratePlanProportional(t *testing.T) {
	funds := []types.AssetFunds{fundsWithAllocations("uatom", 0, 300, 700)}

	plan, err := GeneratePlan(funds, []sdkmath.Int{sdkmath.NewInt(1000)})
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	require.NotNil(t, plan.Allocations[0])

	amounts := plan.Allocations[0].StrategyAmounts
	assert.Equal(t, "300", amounts[0].String())
	assert.Equal(t, "700", amounts[1].String())
}

func TestGeneratePlanLastStrategyAbsorbsRemainder(t *testing.T) {
	// 100 split over 3:3:3 invested: floor gives 33/33, last takes 34.
	funds := []types.AssetFunds{fundsWithAllocations("uatom", 0, 3, 3, 3)}

	plan, err := GeneratePlan(funds, []sdkmath.Int{sdkmath.NewInt(100)})
	require.NoError(t, err)
	require.NotNil(t, plan.Allocations[0])

	amounts := plan.Allocations[0].StrategyAmounts
	assert.Equal(t, "33", amounts[0].String())
	assert.Equal(t, "33", amounts[1].String())
	assert.Equal(t, "34", amounts[2].String())

	total := sdkmath.ZeroInt()
	for _, a := range amounts {
		total = total.Add(a)
	}
	assert.Equal(t, "100", total.String())
}

func TestGeneratePlanSkipsUninvestedAssets(t *testing.T) {
	funds := []types.AssetFunds{
		fundsWithAllocations("uatom", 500, 0, 0), // nothing invested
		fundsWithAllocations("uusdc", 0, 100),
	}

	plan, err := GeneratePlan(funds, []sdkmath.Int{sdkmath.NewInt(100), sdkmath.NewInt(50)})
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)

	// First investment routing is an explicit caller decision.
	assert.Nil(t, plan.Allocations[0])
	require.NotNil(t, plan.Allocations[1])
	assert.Equal(t, "50", plan.Allocations[1].StrategyAmounts[0].String())
}

func TestGeneratePlanSkipsZeroAmounts(t *testing.T) {
	funds := []types.AssetFunds{fundsWithAllocations("uatom", 0, 100)}

	plan, err := GeneratePlan(funds, []sdkmath.Int{sdkmath.ZeroInt()})
	require.NoError(t, err)
	assert.Nil(t, plan.Allocations[0])
}

func TestGeneratePlanRejectsBadInput(t *testing.T) {
	funds := []types.AssetFunds{fundsWithAllocations("uatom", 0, 100)}

	_, err := GeneratePlan(funds, nil)
	require.ErrorIs(t, err, types.ErrWrongAmountsLength)

	_, err = GeneratePlan(funds, []sdkmath.Int{sdkmath.NewInt(-1)})
	require.ErrorIs(t, err, types.ErrNegativeNotAllowed)

	_, err = GeneratePlan(funds, []sdkmath.Int{{}})
	require.ErrorIs(t, err, types.ErrNegativeNotAllowed)
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	bank := token.NewInMemoryBank()
	assets := []types.Asset{
		{Denom: "uatom", Strategies: []types.Strategy{
			{ID: "atom-staking", Name: "Atom Staking"},
			{ID: "atom-lp", Name: "Atom LP", Paused: true},
		}},
		{Denom: "uusdc", Strategies: []types.Strategy{
			{ID: "usdc-lending", Name: "USDC Lending"},
		}},
	}
	adapters := map[string]strategy.Strategy{
		"atom-staking": strategy.NewSimulated("atom-staking", "uatom", bank, 0),
		"atom-lp":      strategy.NewSimulated("atom-lp", "uatom", bank, 0),
		"usdc-lending": strategy.NewSimulated("usdc-lending", "uusdc", bank, 0),
	}
	reg, err := registry.New(assets, adapters)
	require.NoError(t, err)
	return reg
}

func TestValidateAcceptsWellFormedAllocations(t *testing.T) {
	reg := testRegistry(t)

	err := Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.NewInt(100), sdkmath.ZeroInt()}},
		{Asset: "uusdc", StrategyAmounts: []sdkmath.Int{sdkmath.NewInt(50)}},
	})
	require.NoError(t, err)
}

func TestValidateRejectsWrongCount(t *testing.T) {
	reg := testRegistry(t)

	err := Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt(), sdkmath.ZeroInt()}},
	})
	require.ErrorIs(t, err, types.ErrWrongInvestmentLength)
}

func TestValidateRejectsDenomMismatch(t *testing.T) {
	reg := testRegistry(t)

	err := Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uusdc", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt(), sdkmath.ZeroInt()}},
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt()}},
	})
	require.ErrorIs(t, err, types.ErrWrongAssetAddress)
}

func TestValidateRejectsWrongStrategyCount(t *testing.T) {
	reg := testRegistry(t)

	err := Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt()}},
		{Asset: "uusdc", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt()}},
	})
	require.ErrorIs(t, err, types.ErrWrongStrategiesLength)
}

func TestValidateRejectsPausedStrategyInvestment(t *testing.T) {
	reg := testRegistry(t)

	// atom-lp is paused; a positive amount targeting it must fail.
	err := Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt(), sdkmath.NewInt(1)}},
		{Asset: "uusdc", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt()}},
	})
	require.ErrorIs(t, err, types.ErrStrategyPaused)

	// A zero amount against a paused strategy is fine.
	err = Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.NewInt(5), sdkmath.ZeroInt()}},
		{Asset: "uusdc", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt()}},
	})
	require.NoError(t, err)
}

func TestValidateRejectsNegativeAmount(t *testing.T) {
	reg := testRegistry(t)

	err := Validate(reg, []types.AssetInvestmentAllocation{
		{Asset: "uatom", StrategyAmounts: []sdkmath.Int{sdkmath.NewInt(-1), sdkmath.ZeroInt()}},
		{Asset: "uusdc", StrategyAmounts: []sdkmath.Int{sdkmath.ZeroInt()}},
	})
	require.ErrorIs(t, err, types.ErrNegativeNotAllowed)
}
