/*

This file contains the investment allocator: it distributes newly idle capital
across an asset's strategies proportionally to their existing allocation, and
validates caller-supplied allocations against the registry before execution.

Rounding policy: every strategy but the last receives floor(amount * share /
invested); the last strategy in configured order absorbs the remainder so the
allocation sums to the input exactly. This tie-break is externally observable
and preserved deliberately.

*/

package allocator

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/utils"
)

var allocLogger = logger.GetForComponent("investment_allocator")

// GeneratePlan produces a proportional investment plan for the given per-asset
// amounts. amounts is aligned with funds (registry order). Assets with no
// prior investment get a nil entry: routing a first investment is an explicit
// caller decision, never automatic.
func GeneratePlan(funds []types.AssetFunds, amounts []sdkmath.Int) (*types.InvestmentPlan, error) {
	if len(amounts) != len(funds) {
		return nil, fmt.Errorf("%w: assets %d, amounts %d", types.ErrWrongAmountsLength, len(funds), len(amounts))
	}

	plan := &types.InvestmentPlan{Allocations: make([]*types.AssetInvestmentAllocation, len(funds))}
	for i, f := range funds {
		amount := amounts[i]
		if amount.IsNil() || amount.IsNegative() {
			return nil, fmt.Errorf("%w: asset %s", types.ErrNegativeNotAllowed, f.Asset)
		}
		if amount.IsZero() || f.Invested.IsZero() {
			continue
		}

		allocation, err := proRata(f, amount)
		if err != nil {
			return nil, err
		}
		plan.Allocations[i] = allocation
	}
	return plan, nil
}

// proRata splits amount across the asset's strategies by their live invested
// balances; the last strategy takes the remainder.
func proRata(f types.AssetFunds, amount sdkmath.Int) (*types.AssetInvestmentAllocation, error) {
	n := len(f.StrategyAllocations)
	strategyAmounts := make([]sdkmath.Int, n)

	distributed := sdkmath.ZeroInt()
	for j, sa := range f.StrategyAllocations {
		if j == n-1 {
			strategyAmounts[j] = amount.Sub(distributed)
			break
		}
		share, err := utils.MulDiv(amount, sa.Amount, f.Invested)
		if err != nil {
			return nil, err
		}
		strategyAmounts[j] = share
		distributed = distributed.Add(share)
	}

	allocLogger.Debug().
		Str("asset", f.Asset).
		Str("amount", amount.String()).
		Msg("Generated pro-rata allocation")

	return &types.AssetInvestmentAllocation{Asset: f.Asset, StrategyAmounts: strategyAmounts}, nil
}

// Validate checks caller-supplied allocations against the registry before any
// execution: one entry per registered asset in order, matching denoms,
// matching strategy counts, non-negative amounts, and no nonzero amount
// targeting a paused strategy.
func Validate(reg *registry.Registry, allocations []types.AssetInvestmentAllocation) error {
	assets := reg.Assets()
	if len(allocations) != len(assets) {
		return fmt.Errorf("%w: assets %d, allocations %d", types.ErrWrongInvestmentLength, len(assets), len(allocations))
	}

	for i, allocation := range allocations {
		asset := assets[i]
		if allocation.Asset != asset.Denom {
			return fmt.Errorf("%w: position %d expects %s, got %s", types.ErrWrongAssetAddress, i, asset.Denom, allocation.Asset)
		}
		if len(allocation.StrategyAmounts) != len(asset.Strategies) {
			return fmt.Errorf("%w: asset %s has %d strategies, got %d amounts",
				types.ErrWrongStrategiesLength, asset.Denom, len(asset.Strategies), len(allocation.StrategyAmounts))
		}
		for j, amount := range allocation.StrategyAmounts {
			if amount.IsNil() || amount.IsNegative() {
				return fmt.Errorf("%w: asset %s strategy %s", types.ErrNegativeNotAllowed, asset.Denom, asset.Strategies[j].ID)
			}
			if amount.IsPositive() && asset.Strategies[j].Paused {
				return fmt.Errorf("%w: %s", types.ErrStrategyPaused, asset.Strategies[j].ID)
			}
		}
	}
	return nil
}
