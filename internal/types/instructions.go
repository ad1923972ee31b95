/*

This file contains the transient value objects consumed by the rebalance
executor and the investment allocator, plus the per-step receipts every
multi-step entry point produces so callers can observe exactly which step of a
non-atomic batch failed.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// InstructionType tags the variants of a rebalance instruction.
type InstructionType string

const (
	InstructionWithdraw     InstructionType = "WITHDRAW"
	InstructionInvest       InstructionType = "INVEST"
	InstructionSwapExactIn  InstructionType = "SWAP_EXACT_IN"
	InstructionSwapExactOut InstructionType = "SWAP_EXACT_OUT"
	InstructionZapper       InstructionType = "ZAPPER"
)

// SwapDetails carries the parameters of a SWAP_EXACT_IN / SWAP_EXACT_OUT
// instruction. BoundAmount is the minimum-out for exact-in swaps and the
// maximum-in for exact-out swaps. Deadline is a unix timestamp enforced by the
// swap engine.
type SwapDetails struct {
	TokenIn     string      `json:"token_in"`
	TokenOut    string      `json:"token_out"`
	Amount      sdkmath.Int `json:"amount"`
	BoundAmount sdkmath.Int `json:"bound_amount"`
	Deadline    int64       `json:"deadline"`
}

// Instruction is one typed sub-operation within an ordered rebalance batch.
// StrategyID and Amount are required for WITHDRAW and INVEST; Swap is required
// for the swap variants. Pointer fields distinguish missing data from zero
// values.
type Instruction struct {
	Type       InstructionType `json:"type"`
	StrategyID string          `json:"strategy_id,omitempty"`
	Amount     *sdkmath.Int    `json:"amount,omitempty"`
	Swap       *SwapDetails    `json:"swap,omitempty"`
}

// AssetInvestmentAllocation instructs the vault to move idle funds of one
// asset into its strategies. StrategyAmounts is aligned with the registry's
// configured strategy order for that asset.
type AssetInvestmentAllocation struct {
	Asset           string        `json:"asset"`
	StrategyAmounts []sdkmath.Int `json:"strategy_amounts"`
}

// InvestmentPlan is the allocator's output: one entry per registered asset, in
// registry order. A nil entry means the asset has no prior investment and
// nothing is routed automatically.
type InvestmentPlan struct {
	Allocations []*AssetInvestmentAllocation `json:"allocations"`
}

// StepReceipt records the outcome of a single external call within a
// multi-step operation. Receipts for steps executed before a mid-batch failure
// are retained; the engine never rolls them back.
type StepReceipt struct {
	StepIndex  int         `json:"step_index"`
	Kind       string      `json:"kind"`
	Asset      string      `json:"asset,omitempty"`
	StrategyID string      `json:"strategy_id,omitempty"`
	Requested  sdkmath.Int `json:"requested_amount"`
	Actual     sdkmath.Int `json:"actual_amount"`
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// OperationRecord is the persisted trace of one entry-point call.
type OperationRecord struct {
	RecordID    int64         `json:"record_id,omitempty"`
	OperationID string        `json:"operation_id"`
	Kind        string        `json:"kind"`
	Caller      string        `json:"caller,omitempty"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	SharesDelta sdkmath.Int   `json:"shares_delta"`
	Steps       []StepReceipt `json:"steps,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Operation kinds recorded in OperationRecord.Kind.
const (
	OpDeposit   = "DEPOSIT"
	OpWithdraw  = "WITHDRAW"
	OpInvest    = "INVEST"
	OpRebalance = "REBALANCE"
	OpAccrual   = "FEE_ACCRUAL"
	OpRescue    = "RESCUE"
)
