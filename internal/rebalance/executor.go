/*

This file contains the rebalance executor: a strictly sequential processor for
an ordered batch of typed instructions. Each instruction is validated
structurally immediately before it executes; a malformed instruction aborts the
whole call, but instructions already executed stay applied: the batch is
deliberately non-atomic and the per-step receipts make the boundary observable.

*/

package rebalance

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/meridian-fi/mvm/internal/logger"
	"github.com/meridian-fi/mvm/internal/registry"
	"github.com/meridian-fi/mvm/internal/strategy"
	"github.com/meridian-fi/mvm/internal/types"
)

// Executor runs rebalance instruction batches against the vault's strategies
// and the swap engine. All asset movement is on behalf of the vault account.
type Executor struct {
	registry  *registry.Registry
	dex       strategy.SwapEngine
	vaultAddr string
	now       func() time.Time
	log       zerolog.Logger
}

// New creates an executor. now may be nil and defaults to time.Now.
func New(reg *registry.Registry, dex strategy.SwapEngine, vaultAddr string, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{
		registry:  reg,
		dex:       dex,
		vaultAddr: vaultAddr,
		now:       now,
		log:       logger.GetForComponent("rebalance_executor"),
	}
}

// Execute processes instructions in order. The returned receipts cover every
// step attempted, including the failing one; on error, receipts for steps
// executed before the failure describe state that remains applied.
func (e *Executor) Execute(instructions []types.Instruction) ([]types.StepReceipt, error) {
	if len(instructions) == 0 {
		return nil, types.ErrNoInstructions
	}

	receipts := make([]types.StepReceipt, 0, len(instructions))
	for i, instruction := range instructions {
		receipt, err := e.executeOne(i, instruction)
		receipts = append(receipts, receipt)
		if err != nil {
			e.log.Error().Err(err).Int("step", i).Str("type", string(instruction.Type)).
				Msg("Rebalance batch aborted; earlier steps remain applied")
			return receipts, err
		}
	}

	e.log.Info().Int("steps", len(receipts)).Msg("Rebalance batch completed")
	return receipts, nil
}

func (e *Executor) executeOne(index int, in types.Instruction) (types.StepReceipt, error) {
	receipt := types.StepReceipt{
		StepIndex: index,
		Kind:      string(in.Type),
		Timestamp: e.now(),
		Requested: sdkmath.ZeroInt(),
		Actual:    sdkmath.ZeroInt(),
	}

	switch in.Type {
	case types.InstructionWithdraw:
		return e.execStrategyMove(receipt, in, false)
	case types.InstructionInvest:
		return e.execStrategyMove(receipt, in, true)
	case types.InstructionSwapExactIn:
		return e.execSwap(receipt, in, true)
	case types.InstructionSwapExactOut:
		return e.execSwap(receipt, in, false)
	case types.InstructionZapper:
		// Reserved variant: accepted and logged, no effect.
		receipt.Success = true
		receipt.Message = "zapper instruction is a no-op"
		return receipt, nil
	default:
		receipt.Message = fmt.Sprintf("unknown instruction type %q", in.Type)
		return receipt, fmt.Errorf("%w: %s", types.ErrMissingInstructionData, receipt.Message)
	}
}

// execStrategyMove handles WITHDRAW (strategy -> idle) and INVEST (idle ->
// strategy) instructions.
func (e *Executor) execStrategyMove(receipt types.StepReceipt, in types.Instruction, invest bool) (types.StepReceipt, error) {
	if in.StrategyID == "" || in.Amount == nil || in.Amount.IsNil() {
		receipt.Message = "strategy and amount are required"
		return receipt, fmt.Errorf("%w: %s instruction needs strategy and amount", types.ErrMissingInstructionData, in.Type)
	}
	amount := *in.Amount
	receipt.StrategyID = in.StrategyID
	receipt.Requested = amount

	if amount.IsNegative() {
		receipt.Message = "negative amount"
		return receipt, fmt.Errorf("%w: %s", types.ErrNegativeNotAllowed, in.StrategyID)
	}

	asset, st, _, err := e.registry.FindStrategy(in.StrategyID)
	if err != nil {
		receipt.Message = err.Error()
		return receipt, err
	}
	receipt.Asset = asset.Denom

	adapter, err := e.registry.Adapter(in.StrategyID)
	if err != nil {
		receipt.Message = err.Error()
		return receipt, err
	}

	if invest {
		if st.Paused && amount.IsPositive() {
			receipt.Message = "strategy is paused"
			return receipt, fmt.Errorf("%w: %s", types.ErrStrategyPaused, in.StrategyID)
		}
		if amount.IsPositive() {
			if err := adapter.Deposit(amount, e.vaultAddr); err != nil {
				receipt.Message = err.Error()
				return receipt, fmt.Errorf("invest into %s: %w", in.StrategyID, err)
			}
		}
	} else if amount.IsPositive() {
		if err := adapter.Withdraw(amount, e.vaultAddr); err != nil {
			receipt.Message = err.Error()
			return receipt, fmt.Errorf("%w: %s: %v", types.ErrStrategyWithdraw, in.StrategyID, err)
		}
	}

	receipt.Actual = amount
	receipt.Success = true
	return receipt, nil
}

func (e *Executor) execSwap(receipt types.StepReceipt, in types.Instruction, exactIn bool) (types.StepReceipt, error) {
	if in.Swap == nil || in.Swap.TokenIn == "" || in.Swap.TokenOut == "" || in.Swap.Amount.IsNil() {
		receipt.Message = "swap details are required"
		return receipt, fmt.Errorf("%w: %s instruction needs swap details", types.ErrMissingInstructionData, in.Type)
	}
	swap := in.Swap
	receipt.Asset = swap.TokenIn
	receipt.Requested = swap.Amount

	var achieved sdkmath.Int
	var err error
	if exactIn {
		achieved, err = e.dex.SwapExactIn(swap.TokenIn, swap.TokenOut, swap.Amount, swap.BoundAmount, swap.Deadline, e.vaultAddr)
	} else {
		achieved, err = e.dex.SwapExactOut(swap.TokenIn, swap.TokenOut, swap.Amount, swap.BoundAmount, swap.Deadline, e.vaultAddr)
	}
	if err != nil {
		receipt.Message = err.Error()
		return receipt, fmt.Errorf("swap %s -> %s: %w", swap.TokenIn, swap.TokenOut, err)
	}

	receipt.Actual = achieved
	receipt.Success = true
	return receipt, nil
}
