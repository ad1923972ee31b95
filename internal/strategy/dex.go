/*

This file defines the swap collaborator used by the rebalance executor and a
fixed-rate in-process implementation for local mode and tests.

*/

package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/meridian-fi/mvm/internal/token"
)

var (
	ErrDeadlineExceeded = errors.New("swap deadline exceeded")
	ErrNoRoute          = errors.New("no swap route for token pair")
	ErrSlippageBound    = errors.New("swap bound amount violated")
)

// SwapEngine is the DEX collaborator. Amounts are exact on one side and
// bounded on the other; deadline is a unix timestamp.
type SwapEngine interface {
	// SwapExactIn trades amountIn of tokenIn for tokenOut, requiring at least
	// minOut. Returns the achieved output amount.
	SwapExactIn(tokenIn, tokenOut string, amountIn, minOut sdkmath.Int, deadline int64, holder string) (sdkmath.Int, error)
	// SwapExactOut trades tokenIn for exactly amountOut of tokenOut, spending
	// at most maxIn. Returns the spent input amount.
	SwapExactOut(tokenIn, tokenOut string, amountOut, maxIn sdkmath.Int, deadline int64, holder string) (sdkmath.Int, error)
}

// FixedRateDex swaps at configured rational rates against its own reserve
// account, minting output liquidity on demand. Rates are expressed as
// out-per-in fractions.
type FixedRateDex struct {
	mu      sync.RWMutex
	bank    token.Bank
	account string
	now     func() time.Time
	rates   map[string]rate // "in/out" -> rate
}

type rate struct {
	num sdkmath.Int
	den sdkmath.Int
}

// NewFixedRateDex creates a dex with no routes; add them with SetRate.
func NewFixedRateDex(bank token.Bank, now func() time.Time) *FixedRateDex {
	if now == nil {
		now = time.Now
	}
	return &FixedRateDex{
		bank:    bank,
		account: "dex/reserve",
		now:     now,
		rates:   make(map[string]rate),
	}
}

// SetRate configures tokenIn -> tokenOut at num/den output units per input unit.
func (d *FixedRateDex) SetRate(tokenIn, tokenOut string, num, den int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rates[tokenIn+"/"+tokenOut] = rate{num: sdkmath.NewInt(num), den: sdkmath.NewInt(den)}
}

func (d *FixedRateDex) SwapExactIn(tokenIn, tokenOut string, amountIn, minOut sdkmath.Int, deadline int64, holder string) (sdkmath.Int, error) {
	r, err := d.route(tokenIn, tokenOut, deadline)
	if err != nil {
		return sdkmath.Int{}, err
	}

	amountOut := amountIn.Mul(r.num).Quo(r.den)
	if !minOut.IsNil() && amountOut.LT(minOut) {
		return sdkmath.Int{}, fmt.Errorf("%w: out %s < min %s", ErrSlippageBound, amountOut, minOut)
	}
	if err := d.settle(tokenIn, tokenOut, amountIn, amountOut, holder); err != nil {
		return sdkmath.Int{}, err
	}
	return amountOut, nil
}

func (d *FixedRateDex) SwapExactOut(tokenIn, tokenOut string, amountOut, maxIn sdkmath.Int, deadline int64, holder string) (sdkmath.Int, error) {
	r, err := d.route(tokenIn, tokenOut, deadline)
	if err != nil {
		return sdkmath.Int{}, err
	}

	// Ceiling division so the dex never under-charges.
	amountIn := amountOut.Mul(r.den).Add(r.num.SubRaw(1)).Quo(r.num)
	if !maxIn.IsNil() && amountIn.GT(maxIn) {
		return sdkmath.Int{}, fmt.Errorf("%w: in %s > max %s", ErrSlippageBound, amountIn, maxIn)
	}
	if err := d.settle(tokenIn, tokenOut, amountIn, amountOut, holder); err != nil {
		return sdkmath.Int{}, err
	}
	return amountIn, nil
}

func (d *FixedRateDex) route(tokenIn, tokenOut string, deadline int64) (rate, error) {
	if deadline > 0 && d.now().Unix() > deadline {
		return rate{}, ErrDeadlineExceeded
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.rates[tokenIn+"/"+tokenOut]
	if !ok {
		return rate{}, fmt.Errorf("%w: %s -> %s", ErrNoRoute, tokenIn, tokenOut)
	}
	return r, nil
}

func (d *FixedRateDex) settle(tokenIn, tokenOut string, amountIn, amountOut sdkmath.Int, holder string) error {
	if err := d.bank.Send(tokenIn, holder, d.account, amountIn); err != nil {
		return fmt.Errorf("dex settle input: %w", err)
	}
	if amountOut.IsPositive() {
		if err := d.bank.Mint(tokenOut, holder, amountOut); err != nil {
			return fmt.Errorf("dex settle output: %w", err)
		}
	}
	return nil
}
