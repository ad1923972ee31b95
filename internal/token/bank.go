/*

This file defines the fungible-ledger collaborator used for both vault shares
and underlying assets. The engine only ever talks to the Bank interface; the
in-memory implementation backs local mode and the test suite, while production
deployments plug in an adapter to their token infrastructure.

*/

package token

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrEmptyAccount      = errors.New("account cannot be empty")
)

// Bank is the fungible-token collaborator. Operations are atomic and never
// silently fail: any violation is an explicit error.
type Bank interface {
	// Balance returns the holder's balance of denom. Unknown accounts hold zero.
	Balance(denom, holder string) sdkmath.Int
	// Supply returns the total minted minus burned amount of denom.
	Supply(denom string) sdkmath.Int
	// Send moves amount of denom between accounts.
	Send(denom, from, to string, amount sdkmath.Int) error
	// Mint creates amount of denom in the recipient's account.
	Mint(denom, to string, amount sdkmath.Int) error
	// Burn destroys amount of denom from the holder's account.
	Burn(denom, from string, amount sdkmath.Int) error
}

// InMemoryBank is a thread-safe in-process Bank.
type InMemoryBank struct {
	mu       sync.RWMutex
	balances map[string]map[string]sdkmath.Int // denom -> holder -> amount
	supplies map[string]sdkmath.Int
}

// NewInMemoryBank creates an empty bank.
func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{
		balances: make(map[string]map[string]sdkmath.Int),
		supplies: make(map[string]sdkmath.Int),
	}
}

func (b *InMemoryBank) Balance(denom, holder string) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if holders, ok := b.balances[denom]; ok {
		if bal, ok := holders[holder]; ok {
			return bal
		}
	}
	return sdkmath.ZeroInt()
}

func (b *InMemoryBank) Supply(denom string) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if supply, ok := b.supplies[denom]; ok {
		return supply
	}
	return sdkmath.ZeroInt()
}

func (b *InMemoryBank) Send(denom, from, to string, amount sdkmath.Int) error {
	if err := validateTransfer(from, to, amount); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.balanceLocked(denom, from)
	if fromBal.LT(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientFunds, from, fromBal, denom, amount)
	}
	b.setLocked(denom, from, fromBal.Sub(amount))
	b.setLocked(denom, to, b.balanceLocked(denom, to).Add(amount))
	return nil
}

func (b *InMemoryBank) Mint(denom, to string, amount sdkmath.Int) error {
	if to == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.setLocked(denom, to, b.balanceLocked(denom, to).Add(amount))
	supply := sdkmath.ZeroInt()
	if s, ok := b.supplies[denom]; ok {
		supply = s
	}
	b.supplies[denom] = supply.Add(amount)
	return nil
}

func (b *InMemoryBank) Burn(denom, from string, amount sdkmath.Int) error {
	if from == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fromBal := b.balanceLocked(denom, from)
	if fromBal.LT(amount) {
		return fmt.Errorf("%w: %s has %s %s, cannot burn %s", ErrInsufficientFunds, from, fromBal, denom, amount)
	}
	b.setLocked(denom, from, fromBal.Sub(amount))
	b.supplies[denom] = b.supplies[denom].Sub(amount)
	return nil
}

func (b *InMemoryBank) balanceLocked(denom, holder string) sdkmath.Int {
	if holders, ok := b.balances[denom]; ok {
		if bal, ok := holders[holder]; ok {
			return bal
		}
	}
	return sdkmath.ZeroInt()
}

func (b *InMemoryBank) setLocked(denom, holder string, amount sdkmath.Int) {
	holders, ok := b.balances[denom]
	if !ok {
		holders = make(map[string]sdkmath.Int)
		b.balances[denom] = holders
	}
	holders[holder] = amount
}

func validateTransfer(from, to string, amount sdkmath.Int) error {
	if from == "" || to == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}
