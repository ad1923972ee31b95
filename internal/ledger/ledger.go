/*

This file contains the Fund Ledger: the derived read model aggregating, per
asset, the vault's idle balance and every strategy's live balance. Figures are
recomputed from live collaborator queries on every read; nothing is cached, so
there is no staleness to invalidate, only a per-call aggregation cost.

*/

package ledger

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/token"
	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/utils"
)

var ledgerLogger = logger.GetForComponent("fund_ledger")

// Ledger aggregates live balances into per-asset fund figures.
type Ledger struct {
	registry  *registry.Registry
	bank      token.Bank
	vaultAddr string
}

// New creates a fund ledger over the given registry and bank.
func New(reg *registry.Registry, bank token.Bank, vaultAddr string) *Ledger {
	return &Ledger{registry: reg, bank: bank, vaultAddr: vaultAddr}
}

// TotalManagedFunds returns one entry per registered asset, in registry order.
func (l *Ledger) TotalManagedFunds() ([]types.AssetFunds, error) {
	assets := l.registry.Assets()
	funds := make([]types.AssetFunds, 0, len(assets))
	for _, asset := range assets {
		af, err := l.assetFunds(asset)
		if err != nil {
			return nil, err
		}
		funds = append(funds, af)
	}
	return funds, nil
}

// AssetFunds aggregates the figures for one asset denom.
func (l *Ledger) AssetFunds(denom string) (types.AssetFunds, error) {
	i := l.registry.IndexOf(denom)
	if i < 0 {
		return types.AssetFunds{}, fmt.Errorf("%w: %s", types.ErrWrongAssetAddress, denom)
	}
	asset, err := l.registry.AssetAt(i)
	if err != nil {
		return types.AssetFunds{}, err
	}
	return l.assetFunds(asset)
}

func (l *Ledger) assetFunds(asset types.Asset) (types.AssetFunds, error) {
	idle := l.bank.Balance(asset.Denom, l.vaultAddr)

	invested := sdkmath.ZeroInt()
	allocations := make([]types.StrategyAllocation, 0, len(asset.Strategies))
	for _, st := range asset.Strategies {
		adapter, err := l.registry.Adapter(st.ID)
		if err != nil {
			return types.AssetFunds{}, err
		}
		balance, err := adapter.Balance(l.vaultAddr)
		if err != nil {
			return types.AssetFunds{}, fmt.Errorf("strategy %s balance query: %w", st.ID, err)
		}
		invested, err = utils.CheckedAdd(invested, balance)
		if err != nil {
			return types.AssetFunds{}, err
		}
		allocations = append(allocations, types.StrategyAllocation{StrategyID: st.ID, Amount: balance})
	}

	total, err := utils.CheckedAdd(idle, invested)
	if err != nil {
		return types.AssetFunds{}, err
	}

	ledgerLogger.Debug().
		Str("asset", asset.Denom).
		Str("idle", idle.String()).
		Str("invested", invested.String()).
		Msg("Aggregated asset funds")

	return types.AssetFunds{
		Asset:               asset.Denom,
		Total:               total,
		Idle:                idle,
		Invested:            invested,
		StrategyAllocations: allocations,
	}, nil
}

// CurrentIdleFunds returns only the idle component per asset.
func (l *Ledger) CurrentIdleFunds() (map[string]sdkmath.Int, error) {
	funds, err := l.TotalManagedFunds()
	if err != nil {
		return nil, err
	}
	idle := make(map[string]sdkmath.Int, len(funds))
	for _, f := range funds {
		idle[f.Asset] = f.Idle
	}
	return idle, nil
}

// CurrentInvestedFunds returns only the invested component per asset.
func (l *Ledger) CurrentInvestedFunds() (map[string]sdkmath.Int, error) {
	funds, err := l.TotalManagedFunds()
	if err != nil {
		return nil, err
	}
	invested := make(map[string]sdkmath.Int, len(funds))
	for _, f := range funds {
		invested[f.Asset] = f.Invested
	}
	return invested, nil
}
