/*

This file contains the deposit solver: given the per-asset managed funds, the
caller's desired and minimum amount vectors, and the current share supply, it
computes how much of each asset the vault actually takes and how many shares to
mint.

Multi-asset proportional deposit with per-asset minimums has no closed form
when minimums bind, so the solver scans candidate "enforced" assets in registry
order: the candidate's desired amount is taken as authoritative and every other
asset's amount follows from the managed-funds ratio. The scan order is
externally observable behavior and must not change.

*/

package solver

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/utils"
)

// MinimumLiquidity is the fixed share quantity minted to the vault itself on
// the first deposit and never withdrawable. It pins the share price against
// first-depositor manipulation.
var MinimumLiquidity = sdkmath.NewInt(1000)

var solverLogger = logger.GetForComponent("deposit_solver")

// Result is the solver's output for a feasible deposit.
type Result struct {
	Amounts      []sdkmath.Int // per asset, registry order
	SharesToMint sdkmath.Int   // total shares for this deposit (caller + locked portion at bootstrap)
	Bootstrap    bool          // true when this is the vault's first deposit
}

// OptimalAmounts computes the per-asset deposit amounts and shares to mint.
//
// Bootstrap (totalSupply == 0): every desired amount is taken as-is and shares
// equal their sum; assets are treated as 1:1 fungible in share terms, the
// first depositor sets the ratio.
//
// Steady state: for each candidate enforced index i in order, amounts[j] =
// managed[j].Total * desired[i] / managed[i].Total. A candidate forcing
// amounts[j] > desired[j] for any j is infeasible and the scan moves on; a
// candidate whose amounts[j] falls below amountsMin[j] fails the whole call
// with ErrInsufficientAmount; a concrete minimum violation is not an
// infeasibility to route around.
func OptimalAmounts(managed []types.AssetFunds, amountsDesired, amountsMin []sdkmath.Int, totalSupply sdkmath.Int) (*Result, error) {
	if err := validateVectors(managed, amountsDesired, amountsMin); err != nil {
		return nil, err
	}

	if totalSupply.IsZero() {
		return bootstrap(amountsDesired)
	}

	for i := range managed {
		if amountsDesired[i].IsZero() {
			// A zero desired amount cannot anchor a nonzero ratio.
			continue
		}
		if managed[i].Total.IsZero() {
			return nil, fmt.Errorf("%w: asset %s", types.ErrInsufficientManagedFunds, managed[i].Asset)
		}

		amounts, feasible, err := tryEnforcedAsset(managed, amountsDesired, amountsMin, i)
		if err != nil {
			return nil, err
		}
		if !feasible {
			continue
		}

		shares, err := utils.MulDiv(totalSupply, amountsDesired[i], managed[i].Total)
		if err != nil {
			return nil, err
		}

		solverLogger.Debug().
			Int("enforcedAsset", i).
			Str("shares", shares.String()).
			Msg("Feasible deposit ratio found")

		return &Result{Amounts: amounts, SharesToMint: shares}, nil
	}

	return nil, types.ErrNoOptimalAmounts
}

// bootstrap handles the first deposit: amounts pass through unchanged and
// shares equal their sum.
func bootstrap(amountsDesired []sdkmath.Int) (*Result, error) {
	total, err := utils.SumInts(amountsDesired)
	if err != nil {
		return nil, err
	}
	if total.LTE(MinimumLiquidity) {
		return nil, fmt.Errorf("%w: first deposit must exceed minimum liquidity %s",
			types.ErrInsufficientAmount, MinimumLiquidity)
	}

	amounts := append([]sdkmath.Int(nil), amountsDesired...)
	return &Result{Amounts: amounts, SharesToMint: total, Bootstrap: true}, nil
}

// tryEnforcedAsset computes the full amount vector with asset i as the ratio
// base. Returns feasible == false when some other asset would be forced above
// its desired amount.
func tryEnforcedAsset(managed []types.AssetFunds, amountsDesired, amountsMin []sdkmath.Int, i int) ([]sdkmath.Int, bool, error) {
	amounts := make([]sdkmath.Int, len(managed))
	for j := range managed {
		if j == i {
			amounts[j] = amountsDesired[i]
			continue
		}

		optimal, err := utils.MulDiv(managed[j].Total, amountsDesired[i], managed[i].Total)
		if err != nil {
			return nil, false, err
		}

		if optimal.GT(amountsDesired[j]) {
			// Would force more of asset j than the caller offered.
			return nil, false, nil
		}
		if optimal.LT(amountsMin[j]) {
			return nil, false, fmt.Errorf("%w: asset %s needs %s, minimum is %s",
				types.ErrInsufficientAmount, managed[j].Asset, optimal, amountsMin[j])
		}
		amounts[j] = optimal
	}
	return amounts, true, nil
}

func validateVectors(managed []types.AssetFunds, amountsDesired, amountsMin []sdkmath.Int) error {
	if len(amountsDesired) != len(managed) || len(amountsMin) != len(managed) {
		return fmt.Errorf("%w: assets %d, desired %d, min %d",
			types.ErrWrongAmountsLength, len(managed), len(amountsDesired), len(amountsMin))
	}
	for i := range amountsDesired {
		if amountsDesired[i].IsNil() || amountsMin[i].IsNil() {
			return fmt.Errorf("%w: nil amount at index %d", types.ErrArithmetic, i)
		}
		if amountsDesired[i].IsNegative() || amountsMin[i].IsNegative() {
			return fmt.Errorf("%w: index %d", types.ErrNegativeNotAllowed, i)
		}
	}
	return nil
}
