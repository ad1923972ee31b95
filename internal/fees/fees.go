/*

This file contains time-based fee accrual. Fees are assessed as pure share
dilution: new shares are minted to the fee collector before any operation that
reads a share-to-asset ratio, so the ratio every caller sees is already net of
fees.

*/

package fees

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/utils"
)

const (
	// MaxBps is the basis-point denominator.
	MaxBps = 10_000
	// SecondsPerYear is the annualization constant for fee rates.
	SecondsPerYear = 31_536_000
)

// SharesToMint computes the dilution shares for an elapsed period:
//
//	fees = rate * supply * elapsed / (SecondsPerYear * MaxBps - rate * elapsed)
//
// so that after minting, the collector owns exactly rate * elapsed / year of
// the supply. rateBps combines the protocol and vault rates. Zero elapsed time
// mints zero shares, making back-to-back accrual idempotent.
func SharesToMint(totalSupply sdkmath.Int, rateBps uint64, elapsed time.Duration) (sdkmath.Int, error) {
	if rateBps >= MaxBps {
		return sdkmath.Int{}, fmt.Errorf("%w: fee rate %d bps is not below %d", types.ErrArithmetic, rateBps, MaxBps)
	}
	seconds := int64(elapsed / time.Second)
	if seconds < 0 {
		return sdkmath.Int{}, fmt.Errorf("%w: negative elapsed time", types.ErrArithmetic)
	}
	if seconds == 0 || rateBps == 0 || totalSupply.IsZero() {
		return sdkmath.ZeroInt(), nil
	}

	rate := sdkmath.NewIntFromUint64(rateBps)
	elapsedInt := sdkmath.NewInt(seconds)

	rateElapsed := rate.Mul(elapsedInt)
	denominator := sdkmath.NewInt(SecondsPerYear).MulRaw(MaxBps).Sub(rateElapsed)
	if !denominator.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("%w: accrual period too long for fee rate %d bps", types.ErrArithmetic, rateBps)
	}

	return utils.MulDiv(totalSupply, rateElapsed, denominator)
}

// CombinedRateBps adds the protocol and vault rates, rejecting a total at or
// above 100%.
func CombinedRateBps(protocolBps, vaultBps uint64) (uint64, error) {
	total := protocolBps + vaultBps
	if total >= MaxBps {
		return 0, fmt.Errorf("%w: combined fee rate %d bps is not below %d", types.ErrArithmetic, total, MaxBps)
	}
	return total, nil
}
