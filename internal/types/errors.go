/*

This file defines the closed error taxonomy for the vault engine. Every failure
surfaced by an entry point is one of these sentinels (possibly wrapped with
context via fmt.Errorf and %w), so callers can branch with errors.Is.

*/

package types

import "errors"

var (
	// Input validation
	ErrWrongAmountsLength    = errors.New("amounts length does not match asset count")
	ErrNegativeNotAllowed    = errors.New("negative amount not allowed")
	ErrWrongAssetAddress     = errors.New("asset does not match registry entry")
	ErrWrongStrategiesLength = errors.New("strategy amounts length does not match configured strategies")
	ErrWrongInvestmentLength = errors.New("investment allocations length does not match asset count")

	// Solver / accounting
	ErrInsufficientAmount       = errors.New("amount below caller minimum")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientManagedFunds = errors.New("managed funds are zero for ratio base")
	ErrNoOptimalAmounts         = errors.New("no feasible deposit ratio found")
	ErrAmountOverTotalSupply    = errors.New("amount exceeds total share supply")
	ErrArithmetic               = errors.New("arithmetic error")

	// Strategy interaction
	ErrStrategyPaused   = errors.New("strategy is paused")
	ErrStrategyWithdraw = errors.New("strategy withdrawal failed")
	ErrStrategyNotFound = errors.New("strategy not found")

	// Rebalance instructions
	ErrMissingInstructionData = errors.New("instruction is missing required data")
	ErrNoInstructions         = errors.New("instruction list is empty")

	// Access / lifecycle
	ErrUnauthorized   = errors.New("caller is not authorized")
	ErrNotInitialized = errors.New("vault is not initialized")
)
