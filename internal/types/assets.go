/*

This file contains the static registry types (assets and their ordered strategy
lists) and the derived fund-ledger figures reported per asset.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Strategy is one yield source registered under an asset. The position of a
// strategy inside Asset.Strategies is significant and never changes after
// initialization; entries are paused rather than removed.
type Strategy struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Paused bool   `json:"paused"`
}

// Asset is one entry of the vault's static registry: an underlying denom plus
// its ordered strategies.
type Asset struct {
	Denom      string     `json:"denom"`
	Strategies []Strategy `json:"strategies"`
}

// StrategyByID returns the index of the strategy with the given ID, or -1.
func (a Asset) StrategyByID(id string) int {
	for i, s := range a.Strategies {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// StrategyAllocation is the live balance one strategy holds on behalf of the
// vault, in underlying asset units.
type StrategyAllocation struct {
	StrategyID string      `json:"strategy_id"`
	Amount     sdkmath.Int `json:"amount"`
}

// AssetFunds is the per-asset fund-ledger entry: idle balance held directly by
// the vault plus the live balance of every registered strategy. It is derived
// fresh on every read and never cached.
//
// Invariants: Idle + Invested == Total and sum(StrategyAllocations) == Invested.
type AssetFunds struct {
	Asset               string               `json:"asset"`
	Total               sdkmath.Int          `json:"total_amount"`
	Idle                sdkmath.Int          `json:"idle_amount"`
	Invested            sdkmath.Int          `json:"invested_amount"`
	StrategyAllocations []StrategyAllocation `json:"strategy_allocations"`
}
