/*

This file contains the withdrawal engine. Shares are burned first, fixing the
proportion for the call, then each asset is paid through a waterfall: idle
funds first, then a pro-rata draw-down across the asset's non-paused
strategies by live invested balance, with the last strategy absorbing the
rounding remainder. The multi-step payout is deliberately non-atomic: a
failing strategy withdrawal aborts the call but amounts already paid stay paid.

*/

package vault

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/meridian-fi/mvm/internal/metrics"
	"github.com/meridian-fi/mvm/internal/types"
	"github.com/meridian-fi/mvm/internal/utils"
)

// Withdraw burns shares and pays the requester their proportional slice of
// every asset's managed funds. minAmountsOut is checked against the computed
// payouts before any state changes.
func (s *Service) Withdraw(ctx context.Context, shares sdkmath.Int, minAmountsOut []sdkmath.Int, requester string) ([]sdk.Coin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.newRecord(types.OpWithdraw, requester)
	payouts, err := s.withdraw(shares, minAmountsOut, requester, &record)
	s.finishRecord(&record, err)
	metrics.ObserveOperation(types.OpWithdraw, err)
	s.publishFundMetrics()
	return payouts, err
}

func (s *Service) withdraw(shares sdkmath.Int, minAmountsOut []sdkmath.Int, requester string, record *types.OperationRecord) ([]sdk.Coin, error) {
	if shares.IsNil() || shares.IsNegative() {
		return nil, fmt.Errorf("%w: shares to burn", types.ErrNegativeNotAllowed)
	}
	if shares.IsZero() {
		return nil, fmt.Errorf("%w: shares to burn must be positive", types.ErrInsufficientAmount)
	}
	if len(minAmountsOut) != s.registry.AssetCount() {
		return nil, fmt.Errorf("%w: assets %d, min amounts %d",
			types.ErrWrongAmountsLength, s.registry.AssetCount(), len(minAmountsOut))
	}

	opLog := s.opLogger(types.OpWithdraw)
	if _, err := s.accrueLocked(opLog); err != nil {
		return nil, err
	}

	supply := s.bank.Supply(s.shareDenom)
	if shares.GT(supply) {
		return nil, fmt.Errorf("%w: burning %s of %s", types.ErrAmountOverTotalSupply, shares, supply)
	}
	balance := s.bank.Balance(s.shareDenom, requester)
	if shares.GT(balance) {
		return nil, fmt.Errorf("%w: requester holds %s shares, burning %s", types.ErrInsufficientBalance, balance, shares)
	}

	funds, err := s.ledger.TotalManagedFunds()
	if err != nil {
		return nil, err
	}

	// Compute every payout against the pre-burn supply and check minimums
	// before mutating anything.
	required := make([]sdkmath.Int, len(funds))
	for i, f := range funds {
		required[i], err = utils.MulDiv(f.Total, shares, supply)
		if err != nil {
			return nil, err
		}
		if required[i].LT(minAmountsOut[i]) {
			return nil, fmt.Errorf("%w: asset %s pays %s, minimum is %s",
				types.ErrInsufficientAmount, f.Asset, required[i], minAmountsOut[i])
		}
	}

	// Burning first fixes the proportion used for this call.
	if err := s.bank.Burn(s.shareDenom, requester, shares); err != nil {
		return nil, fmt.Errorf("burning shares: %w", err)
	}
	record.SharesDelta = shares.Neg()

	payouts := make([]sdk.Coin, 0, len(funds))
	for i, f := range funds {
		if required[i].IsZero() {
			payouts = append(payouts, sdk.Coin{Denom: f.Asset, Amount: sdkmath.ZeroInt()})
			continue
		}
		if err := s.payAsset(f, required[i], requester, record); err != nil {
			return payouts, err
		}
		payouts = append(payouts, sdk.Coin{Denom: f.Asset, Amount: required[i]})
	}

	opLog.Info().
		Str("requester", requester).
		Str("sharesBurned", shares.String()).
		Msg("Withdrawal completed")

	return payouts, nil
}

// payAsset covers one asset's required payout: idle first, then the strategy
// waterfall, then a single transfer to the requester.
func (s *Service) payAsset(f types.AssetFunds, required sdkmath.Int, requester string, record *types.OperationRecord) error {
	if f.Idle.LT(required) {
		remaining := required.Sub(f.Idle)
		if err := s.drawFromStrategies(f, remaining, record); err != nil {
			return err
		}
	}

	if err := s.bank.Send(f.Asset, s.vaultAddr, requester, required); err != nil {
		return fmt.Errorf("paying %s %s: %w", required, f.Asset, err)
	}
	record.Steps = append(record.Steps, types.StepReceipt{
		StepIndex: len(record.Steps),
		Kind:      "TRANSFER_OUT",
		Asset:     f.Asset,
		Requested: required,
		Actual:    required,
		Success:   true,
		Timestamp: s.now(),
	})
	return nil
}

// drawFromStrategies pulls the idle shortfall out of the asset's non-paused
// strategies pro-rata by live balance; the last one absorbs the rounding
// remainder so the draws sum to remaining exactly.
func (s *Service) drawFromStrategies(f types.AssetFunds, remaining sdkmath.Int, record *types.OperationRecord) error {
	i := s.registry.IndexOf(f.Asset)
	asset, err := s.registry.AssetAt(i)
	if err != nil {
		return err
	}

	type draw struct {
		strategyID string
		balance    sdkmath.Int
	}
	active := make([]draw, 0, len(asset.Strategies))
	totalInvested := sdkmath.ZeroInt()
	for j, st := range asset.Strategies {
		if st.Paused {
			continue
		}
		balance := f.StrategyAllocations[j].Amount
		if balance.IsZero() {
			continue
		}
		active = append(active, draw{strategyID: st.ID, balance: balance})
		totalInvested = totalInvested.Add(balance)
	}

	if totalInvested.IsZero() {
		return fmt.Errorf("%w: %s has no active invested funds for remaining %s",
			types.ErrInsufficientBalance, f.Asset, remaining)
	}

	distributed := sdkmath.ZeroInt()
	for k, d := range active {
		var take sdkmath.Int
		if k == len(active)-1 {
			take = remaining.Sub(distributed)
		} else {
			take, err = utils.MulDiv(remaining, d.balance, totalInvested)
			if err != nil {
				return err
			}
		}
		if take.IsZero() {
			continue
		}

		receipt := types.StepReceipt{
			StepIndex:  len(record.Steps),
			Kind:       string(types.InstructionWithdraw),
			Asset:      f.Asset,
			StrategyID: d.strategyID,
			Requested:  take,
			Actual:     sdkmath.ZeroInt(),
			Timestamp:  s.now(),
		}

		adapter, err := s.registry.Adapter(d.strategyID)
		if err != nil {
			receipt.Message = err.Error()
			record.Steps = append(record.Steps, receipt)
			return err
		}
		if err := adapter.Withdraw(take, s.vaultAddr); err != nil {
			receipt.Message = err.Error()
			record.Steps = append(record.Steps, receipt)
			return fmt.Errorf("%w: %s: %v", types.ErrStrategyWithdraw, d.strategyID, err)
		}

		receipt.Actual = take
		receipt.Success = true
		record.Steps = append(record.Steps, receipt)
		distributed = distributed.Add(take)
	}

	return nil
}
